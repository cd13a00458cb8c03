package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args []string, onStderr func(line string)) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command, streaming stderr lines to onStderr as they
// arrive and capturing stdout, stderr and the exit code.
func (r *execRunner) Run(ctx context.Context, dir, name string, args []string, onStderr func(line string)) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout

	pipe, err := cmd.StderrPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, err
	}
	if err := cmd.Start(); err != nil {
		return commandResult{ExitCode: -1}, err
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanConsoleLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		stderr.WriteString(line)
		stderr.WriteByte('\n')
		if onStderr != nil {
			onStderr(line)
		}
	}
	// Wait must not run before the pipe is drained.
	_, _ = io.Copy(io.Discard, pipe)

	err = cmd.Wait()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// scanConsoleLines splits on both \n and \r; ffmpeg rewrites its status
// line in place with carriage returns.
func scanConsoleLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
