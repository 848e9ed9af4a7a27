package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosanma1/pipeforge/internal/config"
)

func TestPlanOrdersDependenciesFirst(t *testing.T) {
	g := FromEdges(map[string][]string{
		"all":        {"publish"},
		"publish":    {"base-image"},
		"base-image": {"frontend"},
		"frontend":   nil,
	})

	plan, err := g.Plan("all")
	require.NoError(t, err)
	assert.Equal(t, []string{"frontend", "base-image", "publish", "all"}, plan)
}

func TestPlanOnlyIncludesClosure(t *testing.T) {
	g := FromEdges(map[string][]string{
		"all":        {"publish"},
		"publish":    {"base-image"},
		"base-image": {"frontend"},
		"frontend":   nil,
		"docs":       nil,
	})

	plan, err := g.Plan("base-image")
	require.NoError(t, err)
	assert.Equal(t, []string{"frontend", "base-image"}, plan)
}

func TestPlanBreaksTiesByName(t *testing.T) {
	g := FromEdges(map[string][]string{
		"app":   {"zeta", "alpha", "mid"},
		"zeta":  nil,
		"alpha": nil,
		"mid":   {"alpha"},
	})

	for i := 0; i < 10; i++ {
		plan, err := g.Plan("app")
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta", "app"}, plan)
	}
}

func TestPlanMultipleTargetsDeduplicates(t *testing.T) {
	g := FromEdges(map[string][]string{
		"a":    {"base"},
		"b":    {"base"},
		"base": nil,
	})

	plan, err := g.Plan("b", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "a", "b"}, plan)
}

func TestPlanRejectsCycles(t *testing.T) {
	tests := []struct {
		name  string
		start string
		edges map[string][]string
		want  string
	}{
		{
			name:  "self dependency",
			start: "a",
			edges: map[string][]string{"a": {"a"}},
			want:  "a -> a",
		},
		{
			name:  "three node cycle",
			start: "all",
			edges: map[string][]string{
				"all": {"a"},
				"a":   {"b"},
				"b":   {"c"},
				"c":   {"a"},
			},
			want: "a -> b -> c -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEdges(tt.edges).Plan(tt.start)
			require.ErrorIs(t, err, ErrCycle)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPlanRejectsUnknownTargets(t *testing.T) {
	g := FromEdges(map[string][]string{
		"a": {"missing"},
	})

	_, err := g.Plan("nope")
	require.ErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), `"nope"`)

	_, err = g.Plan("a")
	require.ErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), `required by "a"`)
}

func TestNewFromPipeline(t *testing.T) {
	p, err := config.Parse([]byte(`
name: shop
targets:
  ui:
    kind: frontend
  api-image:
    kind: image
    copy:
      - artifact: ui
        dest: static
  release:
    kind: publish
    image: api-image
    repository: ghcr.io/acme/api
  all:
    kind: group
    depends: [release]
`))
	require.NoError(t, err)

	plan, err := New(p).Plan(p.Default)
	require.NoError(t, err)
	assert.Equal(t, []string{"ui", "api-image", "release", "all"}, plan)
}
