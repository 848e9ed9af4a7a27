package executil

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner records commands instead of executing them. Handlers keyed by
// a command prefix (e.g. "docker build") can fail a call or produce output.
type FakeRunner struct {
	mu       sync.Mutex
	Calls    []*Cmd
	handlers []fakeHandler
}

type fakeHandler struct {
	prefix string
	fn     func(*Cmd) ([]byte, error)
}

// On registers fn for every command whose "name args..." line starts with
// prefix. Later registrations take priority.
func (f *FakeRunner) On(prefix string, fn func(*Cmd) ([]byte, error)) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fakeHandler{prefix: prefix, fn: fn})
	return f
}

func (f *FakeRunner) Run(ctx context.Context, c *Cmd) error {
	out, err := f.Output(ctx, c)
	if err == nil && c.Stdout != nil && len(out) > 0 {
		_, err = c.Stdout.Write(out)
	}
	return err
}

func (f *FakeRunner) Output(ctx context.Context, c *Cmd) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, c)
	handlers := append([]fakeHandler(nil), f.handlers...)
	f.mu.Unlock()

	line := Line(c)
	for i := len(handlers) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, handlers[i].prefix) {
			return handlers[i].fn(c)
		}
	}
	return nil, nil
}

// Lines returns the recorded commands as unredacted "name args..." lines.
func (f *FakeRunner) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		lines[i] = Line(c)
	}
	return lines
}

// Line joins a command name and its raw arguments with spaces.
func Line(c *Cmd) string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}
