// Package sandbox validates a generated program before it is listed:
// size bounds, a forbidden-pattern static scan, a syntax check, and
// restricted, time-boxed execution. Grounded on
// original_source/src/user/sandbox.py. Generated programs in this
// implementation are small Go source files (see internal/proggen), so the
// syntax check uses go/parser and execution uses `go run` under os/exec in
// place of the original's compile()+subprocess.run(["python3", ...]).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	minSize = 100
	maxSize = 50 * 1024
	timeout = 5 * time.Second
)

// forbiddenPatterns names substrings a generated program must not contain.
// Grounded on sandbox.py's FORBIDDEN_IMPORTS, adapted to the Go standard
// library packages with equivalent capabilities.
var forbiddenPatterns = []string{
	"os/exec",
	"os.Remove",
	"os.RemoveAll",
	"net.Dial",
	"net/http",
	"syscall",
	"unsafe",
	"plugin.Open",
}

// Result reports why a candidate program was accepted or rejected.
type Result struct {
	Accepted bool
	Reason   string
	Stdout   string
}

// Test runs the full validation pipeline against source.
func Test(ctx context.Context, source string) Result {
	if len(source) < minSize {
		return Result{Reason: fmt.Sprintf("source too small: %d bytes < %d", len(source), minSize)}
	}
	if len(source) > maxSize {
		return Result{Reason: fmt.Sprintf("source too large: %d bytes > %d", len(source), maxSize)}
	}

	for _, pattern := range forbiddenPatterns {
		if strings.Contains(source, pattern) {
			return Result{Reason: fmt.Sprintf("forbidden pattern: %s", pattern)}
		}
	}

	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "candidate.go", source, parser.AllErrors); err != nil {
		return Result{Reason: fmt.Sprintf("syntax error: %v", err)}
	}

	stdout, err := execute(ctx, source)
	if err != nil {
		return Result{Reason: fmt.Sprintf("execution failed: %v", err)}
	}
	if strings.TrimSpace(stdout) == "" {
		return Result{Reason: "no output produced"}
	}

	return Result{Accepted: true, Stdout: stdout}
}

// execute writes source to a temp file and runs it with `go run` in a
// time-boxed child process with a scrubbed environment.
func execute(ctx context.Context, source string) (string, error) {
	dir, err := os.MkdirTemp("", "zapempire-sandbox-")
	if err != nil {
		return "", fmt.Errorf("create sandbox dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "candidate.go")
	if err := os.WriteFile(srcPath, []byte(source), 0600); err != nil {
		return "", fmt.Errorf("write candidate source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "go", "run", srcPath)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "HOME=" + dir, "GOCACHE=" + filepath.Join(dir, "gocache")}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timed out after %s", timeout)
		}
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
