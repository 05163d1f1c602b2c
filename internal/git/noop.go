package git

import (
	"context"
	"log/slog"
)

// NewNoopExecutor returns an Executor that runs nothing and reports success
// for every command. Dry runs use it so the workflow can be traced without
// touching a repository.
func NewNoopExecutor(log *slog.Logger) Executor {
	return &noopExecutor{log: log}
}

type noopExecutor struct {
	log *slog.Logger
}

func (e *noopExecutor) Exec(_ context.Context, cmd Command) (Output, error) {
	if e.log != nil {
		e.log.Info("dry run: skipping git", "command", renderCommand("git", cmd.Args))
	}
	return Output{}, nil
}
