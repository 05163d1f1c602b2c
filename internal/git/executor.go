package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is a single git invocation. Args exclude the program name.
type Command struct {
	// Dir is the working directory of the process. Empty means the
	// current directory of the calling process.
	Dir  string
	Args []string
}

// Output captures everything a finished process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs git commands and reports their output.
//
// Implementations return *SpawnError when the process could not be launched
// or its output could not be collected, and *CommandError when the process
// ran to completion with a non-zero exit status.
type Executor interface {
	Exec(ctx context.Context, cmd Command) (Output, error)
}

// SpawnError reports that a process could not be started or waited on.
type SpawnError struct {
	Program string
	Args    []string
	Err     error
}

func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("spawn %s: %v", renderCommand(e.Program, e.Args), e.Err)
}

func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CommandError reports that a process ran and exited unsuccessfully.
type CommandError struct {
	Program string
	Args    []string
	Output  Output
	Err     error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: exit status %d", renderCommand(e.Program, e.Args), e.Output.ExitCode)
	if stderr := strings.TrimSpace(string(e.Output.Stderr)); stderr != "" {
		msg += "\n" + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Subcommand returns the first argument of the failed invocation.
func (e *CommandError) Subcommand() string {
	if e == nil || len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}

// IsCommandError reports whether err carries a non-zero exit status.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// IsSpawnError reports whether err means the process never completed.
func IsSpawnError(err error) bool {
	var spawnErr *SpawnError
	return errors.As(err, &spawnErr)
}

func renderCommand(program string, args []string) string {
	if program == "" {
		program = "git"
	}
	return shellquote.Join(append([]string{program}, args...)...)
}
