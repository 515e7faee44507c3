package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"go.uber.org/zap"
)

// execResult carries what the router needs to report an external
// command: captured output plus either an exit code or an
// infrastructure error (binary not found, context canceled).
type execResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// runExternal hands an unrecognized command to the host. dir is the
// working directory, empty to inherit the process's own.
func runExternal(ctx context.Context, dir, name string, args []string, log *zap.Logger) execResult {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := execResult{Stdout: stdout.String(), Stderr: stderr.String()}

	switch {
	case err == nil:
		log.Debug("external command done", zap.String("binary", name))
	case ctx.Err() != nil:
		res.Err = ctx.Err()
		log.Debug("external command canceled", zap.String("binary", name))
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran and chose its exit code; not an error of ours.
			res.ExitCode = exitErr.ExitCode()
			log.Debug("external command exited non-zero",
				zap.String("binary", name),
				zap.Int("exit_code", res.ExitCode))
		} else {
			res.Err = err
			log.Debug("external command failed",
				zap.String("binary", name),
				zap.Error(err))
		}
	}
	return res
}
