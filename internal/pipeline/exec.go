package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

// runCommand executes an external binary and streams its combined
// stdout/stderr line by line into the job's log sink, so a concurrent
// reader of /job/{id} sees subprocess progress as it happens. The
// stream is fully drained before returning, even on failure.
func runCommand(ctx context.Context, logs *job.LogSink, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			logs.Info(scanner.Text())
		}
	}()

	err := cmd.Run()
	pw.Close()
	<-done

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("command timed out: %s %s: %w", name, strings.Join(args, " "), ctxErr)
		}
		return fmt.Errorf("command failed: %s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
