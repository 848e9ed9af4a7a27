package builder

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/Dockerfile.tmpl
var templatesFS embed.FS

// DockerfileName is the name of the rendered Dockerfile inside an assembled
// build context.
const DockerfileName = "Dockerfile.pipeforge"

var dockerfileTmpl = template.Must(
	template.New("Dockerfile.tmpl").
		Funcs(template.FuncMap{"quote": dockerQuote, "json": jsonArray}).
		ParseFS(templatesFS, "templates/Dockerfile.tmpl"),
)

var dockerQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

// dockerQuote double-quotes s for ENV and LABEL. Backslashes, quotes and
// dollar signs are escaped so Docker keeps the value literally instead of
// expanding variables.
func dockerQuote(s string) string {
	return `"` + dockerQuoter.Replace(s) + `"`
}

// jsonArray renders the exec form of an instruction, e.g. ["a","b"].
func jsonArray(elems ...string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DockerfileSpec is the input of RenderDockerfile. Paths in Copies are
// relative to the build context.
type DockerfileSpec struct {
	Target       string
	From         string
	Workdir      string
	Env          map[string]string
	Args         []string
	Requirements string
	Install      string
	Copies       []DockerfileCopy
	Expose       []int
	Cmd          []string
	Labels       map[string]string
}

// DockerfileCopy is one COPY instruction.
type DockerfileCopy struct {
	Src  string
	Dest string
}

type keyValue struct {
	Key   string
	Value string
}

// RenderDockerfile renders the image Dockerfile. Env and labels are emitted in
// key order so identical specs render identical files.
func RenderDockerfile(spec DockerfileSpec) ([]byte, error) {
	cmd, err := jsonArray(spec.Cmd...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CMD: %w", err)
	}

	args := append([]string(nil), spec.Args...)
	sort.Strings(args)

	data := struct {
		DockerfileSpec
		Args   []string
		Env    []keyValue
		Labels []keyValue
		Cmd    string
	}{
		DockerfileSpec: spec,
		Args:           args,
		Env:            sortedPairs(spec.Env),
		Labels:         sortedPairs(spec.Labels),
		Cmd:            cmd,
	}

	var buf bytes.Buffer
	if err := dockerfileTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buf.Bytes(), nil
}

func sortedPairs(m map[string]string) []keyValue {
	pairs := make([]keyValue, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, keyValue{Key: k, Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}
