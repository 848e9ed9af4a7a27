// Package executil runs external commands for pipeline stages.
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// Redacted replaces secret values in printed command lines.
const Redacted = "REDACTED"

// Cmd describes a single external command.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the process environment.
	Env map[string]string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Secrets are literal values that must never appear in printed output.
	Secrets []string
}

// Command is shorthand for a Cmd with no extra settings.
func Command(name string, args ...string) *Cmd {
	return &Cmd{Name: name, Args: args}
}

// String renders the command line with secrets redacted.
func (c *Cmd) String() string {
	line := c.Name
	if len(c.Args) > 0 {
		line += " " + QuoteArgs(RedactArgs(c.Args))
	}
	for _, s := range c.Secrets {
		if s != "" {
			line = strings.ReplaceAll(line, s, Redacted)
		}
	}
	return line
}

// Runner executes commands. Stage builders depend on this interface so tests
// can record invocations without spawning processes.
type Runner interface {
	Run(ctx context.Context, cmd *Cmd) error
	Output(ctx context.Context, cmd *Cmd) ([]byte, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	// DryRun prints commands instead of executing them.
	DryRun bool
	// Out receives dry-run lines. Defaults to os.Stdout.
	Out    io.Writer
	Logger *slog.Logger
}

// NewRunner returns an ExecRunner.
func NewRunner(dryRun bool, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{DryRun: dryRun, Out: os.Stdout, Logger: logger}
}

// Run executes cmd with its output wired to cmd.Stdout/Stderr, falling back
// to the process streams.
func (r *ExecRunner) Run(ctx context.Context, c *Cmd) error {
	if r.DryRun {
		r.printDry(c)
		return nil
	}

	cmd := r.command(ctx, c)
	cmd.Stdout = orDefault(c.Stdout, os.Stdout)
	cmd.Stderr = orDefault(c.Stderr, os.Stderr)

	r.Logger.Debug("running command", "cmd", c.String(), "dir", c.Dir)
	return wrapErr(ctx, c, cmd.Run())
}

// Output executes cmd and returns its stdout. In dry-run mode nothing runs
// and the output is empty.
func (r *ExecRunner) Output(ctx context.Context, c *Cmd) ([]byte, error) {
	if r.DryRun {
		r.printDry(c)
		return nil, nil
	}

	var stdout bytes.Buffer
	cmd := r.command(ctx, c)
	cmd.Stdout = &stdout
	cmd.Stderr = orDefault(c.Stderr, os.Stderr)

	r.Logger.Debug("running command", "cmd", c.String(), "dir", c.Dir)
	if err := wrapErr(ctx, c, cmd.Run()); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) command(ctx context.Context, c *Cmd) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), EnvList(c.Env)...)
	}
	return cmd
}

func (r *ExecRunner) printDry(c *Cmd) {
	out := orDefault(r.Out, os.Stdout)
	if c.Dir != "" {
		fmt.Fprintf(out, "[DRY RUN in %s] %s\n", c.Dir, c.String())
		return
	}
	fmt.Fprintf(out, "[DRY RUN] %s\n", c.String())
}

func wrapErr(ctx context.Context, c *Cmd, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("command canceled: %s: %w", c.String(), ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("command failed (exit=%d): %s: %w", exitErr.ExitCode(), c.String(), err)
	}
	return fmt.Errorf("failed to run command: %s: %w", c.String(), err)
}

func orDefault(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}

// Split parses a command string with shell word rules.
func Split(command string) ([]string, error) {
	words, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return words, nil
}

// Parse turns a command string into a Cmd.
func Parse(command string) (*Cmd, error) {
	words, err := Split(command)
	if err != nil {
		return nil, err
	}
	return Command(words[0], words[1:]...), nil
}

// EnvList converts an env map into sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// QuoteArgs returns a printable, shell-safe representation of args.
func QuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'`$\\*?[]{}()<>|&;") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

// RedactArgs masks values of secret-looking --build-arg pairs and password
// flags. The -p shorthand only means password for a login subcommand;
// elsewhere (docker run -p) it is a port mapping.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	login := len(out) > 0 && out[0] == "login"
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == "--build-arg" && i+1 < len(out):
			out[i+1] = redactPair(out[i+1])
			i++
		case strings.HasPrefix(out[i], "--build-arg="):
			out[i] = "--build-arg=" + redactPair(strings.TrimPrefix(out[i], "--build-arg="))
		case (out[i] == "--password" || (login && out[i] == "-p")) && i+1 < len(out):
			out[i+1] = Redacted
			i++
		case strings.HasPrefix(out[i], "--password="):
			out[i] = "--password=" + Redacted
		}
	}
	return out
}

func redactPair(kv string) string {
	eq := strings.IndexByte(kv, '=')
	if eq <= 0 {
		return kv
	}
	key, val := kv[:eq], kv[eq+1:]
	if val != "" && IsSecretKey(key) {
		return key + "=" + Redacted
	}
	return kv
}

// IsSecretKey reports whether a variable name looks like it holds a secret.
func IsSecretKey(key string) bool {
	k := strings.ToUpper(key)
	for _, marker := range []string{"PASSWORD", "PASSWD", "TOKEN", "SECRET", "CREDENTIAL", "API_KEY", "PRIVATE_KEY"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	switch k {
	case "DOCKER_AUTH_CONFIG", "AWS_SECRET_ACCESS_KEY", "KUBECONFIG":
		return true
	}
	return false
}
