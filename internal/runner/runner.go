package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/logger"
)

// ExecRunner runs commands as blocking child processes. Inherited output
// goes to Stdout/Stderr; captured output is combined into Result.Output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Env    []string
}

func New() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ExecRunner) Run(ctx context.Context, cmd domain.Command) (domain.Result, error) {
	log := logger.Logger()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(r.Env) > 0 {
		c.Env = append(os.Environ(), r.Env...)
	}

	var out bytes.Buffer
	if cmd.Capture {
		c.Stdout = &out
		c.Stderr = &out
	} else {
		c.Stdout = r.Stdout
		c.Stderr = r.Stderr
	}

	if cmd.Dir != "" {
		log.Debugf("exec: [%s] in %s", Describe(cmd), cmd.Dir)
	} else {
		log.Debugf("exec: [%s]", Describe(cmd))
	}

	err := c.Run()
	res := domain.Result{Output: out.String()}

	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		log.Debugf("exec: [%s] exited with %d", Describe(cmd), res.ExitCode)
		return res, nil
	}

	if errors.Is(err, exec.ErrNotFound) || (errors.Is(err, fs.ErrNotExist) && dirExists(cmd.Dir)) {
		return res, fmt.Errorf("%w: %s", domain.ErrToolMissing, cmd.Name)
	}

	return res, fmt.Errorf("failed to start %s: %w", cmd.Name, err)
}

// dirExists is true for the empty dir, which means the current directory.
func dirExists(dir string) bool {
	if dir == "" {
		return true
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Describe renders a command line for logs.
func Describe(cmd domain.Command) string {
	parts := make([]string, 0, len(cmd.Args)+1)
	parts = append(parts, cmd.Name)
	for _, a := range cmd.Args {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
