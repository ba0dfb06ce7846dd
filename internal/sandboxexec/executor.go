package sandboxexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// scriptTimeout is the wall-clock budget for one submitted script,
// measured from subprocess start.
const scriptTimeout = 10 * time.Second

// stdinHelperTemplate is prepended to a script when the caller piped stdin through,
// exposing it as a small lazily-evaluated binding.
const stdinHelperTemplate = `const input = (() => {
  const raw = %s;
  return {
    raw: () => raw,
    text: () => raw,
    lines: () => raw.split("\n"),
    json: () => JSON.parse(raw),
  };
})();
`

// Request is one script to execute.
type Request struct {
	// ClientModuleURL is the importable URL of the synthesized client
	// module, already versioned (e.g. "http://127.0.0.1:7337/client.ts?v=4").
	ClientModuleURL string
	// Script is the user-authored script body, verbatim.
	Script string
	// Stdin, if non-empty, is piped through as the `input` binding.
	Stdin string
}

// Result is the outcome of one Execute call.
type Result struct {
	Success   bool
	Output    string
	Warnings  string
	Error     string
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Executor spawns the configured script runtime once per script.
type Executor struct {
	// Command is the interpreter invocation, e.g. ["node"] or ["deno", "run"].
	// The temp script path is appended as the final argument.
	Command []string
	// WorkDir is where temp script files are written; defaults to os.TempDir().
	WorkDir string
}

// New creates an Executor that spawns command per script.
func New(command []string, workDir string) *Executor {
	return &Executor{Command: command, WorkDir: workDir}
}

// Execute writes req's combined source to a temp file, spawns the
// configured runtime against it with a network-only, filesystem- and
// env-free subprocess, and waits up to scriptTimeout for it to finish.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	start := time.Now()

	path, err := e.writeTempScript(req)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to prepare script: %v", err)}
	}
	defer os.Remove(path)

	runCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	args := append(append([]string{}, e.Command[1:]...), path)
	cmd := exec.CommandContext(runCtx, e.Command[0], args...)
	cmd.Dir = filepath.Dir(path)
	// No filesystem or environment passthrough: the subprocess inherits
	// nothing from the parent's environment. Network access is whatever
	// the configured runtime permits by default; this process does not
	// add further OS-level sandboxing of its own (spec.md frames that as
	// an external concern of the configured script runtime binary).
	cmd.Env = []string{}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			Success:  false,
			Error:    "Script execution timeout (10 seconds)",
			Output:   stdout.String(),
			TimedOut: true,
			Duration: duration,
		}
	}

	out, stdoutTruncated := LimitOutput(stdout.Bytes())
	errOut, stderrTruncated := LimitOutput(stderr.Bytes())

	if runErr != nil {
		errMsg := errOut
		if len(errMsg) == 0 {
			errMsg = []byte(runErr.Error())
		}
		return Result{
			Success:   false,
			Error:     string(errMsg),
			Output:    string(out),
			Truncated: stdoutTruncated || stderrTruncated,
			Duration:  duration,
		}
	}

	return Result{
		Success:   true,
		Output:    string(out),
		Warnings:  string(errOut),
		Truncated: stdoutTruncated || stderrTruncated,
		Duration:  duration,
	}
}

func (e *Executor) writeTempScript(req Request) (string, error) {
	dir := e.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "import { tools } from %q;\n", req.ClientModuleURL)
	if req.Stdin != "" {
		fmt.Fprintf(&buf, stdinHelperTemplate, jsonQuote(req.Stdin))
	}
	buf.WriteString("\n// --- script body ---\n")
	buf.WriteString(req.Script)

	name := fmt.Sprintf("lootbox-run-%s.ts", uuid.NewString())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// jsonQuote renders s as a double-quoted JS string literal.
func jsonQuote(s string) string {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return buf.String()
}
