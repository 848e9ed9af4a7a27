package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/graph"
	"github.com/dosanma1/pipeforge/internal/registry"
)

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "canceled", err: fmt.Errorf("run canceled: %w", context.Canceled), want: ""},
		{name: "missing tool", err: fmt.Errorf("failed to run command: %w", exec.ErrNotFound), want: "not installed"},
		{name: "docker daemon", err: errors.New("Cannot connect to the Docker daemon at unix:///var/run/docker.sock"), want: "not running"},
		{name: "auth", err: fmt.Errorf("%w: publish: %w", ErrStageFailed, registry.ErrAuth), want: "PIPEFORGE_REGISTRY_USER"},
		{name: "push", err: registry.ErrPush, want: "not retried"},
		{name: "manifest", err: builder.ErrManifestMissing, want: "lock file"},
		{name: "empty", err: artifact.ErrEmptyArtifact, want: "output"},
		{name: "artifact", err: artifact.ErrNotFound, want: "pipeforge build frontend"},
		{name: "cycle", err: graph.ErrCycle, want: "pipeforge plan"},
		{name: "no target", err: ErrNoTarget, want: "default"},
		{name: "other", err: errors.New("boom"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hint(tt.err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}
