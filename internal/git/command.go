package git

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// CommandExecutor runs commands as child processes of the system git binary.
type CommandExecutor struct {
	// Program is the binary to execute. Defaults to "git" when empty.
	Program string

	// Env is appended to the environment inherited from the current process.
	// Values placed here are never passed as arguments, so they are not
	// subject to argument censoring.
	Env []string
}

// NewCommandExecutor returns an Executor backed by the given binary.
func NewCommandExecutor(program string) *CommandExecutor {
	return &CommandExecutor{Program: program}
}

func (e *CommandExecutor) program() string {
	if e.Program == "" {
		return "git"
	}
	return e.Program
}

func (e *CommandExecutor) Exec(ctx context.Context, command Command) (Output, error) {
	program := e.program()
	args := append([]string(nil), command.Args...)

	cmd := exec.Command(program, args...)
	cmd.Dir = command.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Output{}, &SpawnError{Program: program, Args: args, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return collect(cmd, &stdout, &stderr), ctx.Err()
	case err := <-done:
		out := collect(cmd, &stdout, &stderr)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &CommandError{Program: program, Args: args, Output: out, Err: err}
		}
		return out, &SpawnError{Program: program, Args: args, Err: err}
	}
}

func collect(cmd *exec.Cmd, stdout, stderr *bytes.Buffer) Output {
	out := Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	return out
}
