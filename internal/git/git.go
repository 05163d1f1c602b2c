package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Config describes a Git handle. Zero-valued fields are defaulted by New.
type Config struct {
	// Owner and Repo name the repository. They derive Dir when Dir is empty.
	Owner string
	Repo  string

	// Dir is the working directory of the clone. Defaults to
	// <cwd>/<owner>/<repo>, or <tmp>/<owner>/<repo> when the current
	// directory cannot be determined.
	Dir string

	// Censor rewrites every argument before it reaches Executor. Defaults to NoCensor.
	Censor Censor

	// Executor runs the commands. Defaults to a CommandExecutor for "git".
	Executor Executor

	// Identity resolves the committer on every commit. Defaults to EnvIdentity.
	Identity IdentityProvider

	Log *slog.Logger
}

// Git is a handle on one working-directory clone. Operations on a handle
// must be issued sequentially.
type Git struct {
	dir      string
	censor   Censor
	exec     Executor
	identity IdentityProvider
	log      *slog.Logger
}

// New finalizes cfg and creates the working directory.
func New(cfg Config) (*Git, error) {
	dir := cfg.Dir
	if dir == "" {
		if cfg.Owner == "" || cfg.Repo == "" {
			return nil, fmt.Errorf("owner and repo are required when no directory is given")
		}
		base, err := os.Getwd()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, cfg.Owner, cfg.Repo)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory %s: %w", abs, err)
	}

	censor := cfg.Censor
	if censor == nil {
		censor = NoCensor
	}
	executor := cfg.Executor
	if executor == nil {
		executor = NewCommandExecutor("git")
	}
	identity := cfg.Identity
	if identity == nil {
		identity = EnvIdentity{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Git{
		dir:      abs,
		censor:   censor,
		exec:     NewCensoringExecutor(censor, executor),
		identity: identity,
		log:      log.With("dir", abs),
	}, nil
}

// Directory returns the absolute path of the working directory.
func (g *Git) Directory() string {
	return g.dir
}

func (g *Git) run(ctx context.Context, args ...string) (Output, error) {
	g.log.Debug("running git", "command", renderCommand("git", g.censorAll(args)))
	return g.exec.Exec(ctx, Command{Dir: g.dir, Args: args})
}

func (g *Git) censorAll(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = g.censor(arg)
	}
	return out
}

// Clone clones source into the working directory.
func (g *Git) Clone(ctx context.Context, source string) error {
	g.log.Info("cloning repository", "source", g.censor(source))
	if _, err := g.run(ctx, "clone", source, g.dir); err != nil {
		return fmt.Errorf("clone %s: %w", g.censor(source), err)
	}
	return nil
}

// Checkout switches to an existing ref.
func (g *Git) Checkout(ctx context.Context, ref string) error {
	if _, err := g.run(ctx, "checkout", ref); err != nil {
		return fmt.Errorf("checkout %s: %w", g.censor(ref), err)
	}
	return nil
}

// CheckoutNewBranch creates name at HEAD and switches to it.
func (g *Git) CheckoutNewBranch(ctx context.Context, name string) error {
	if _, err := g.run(ctx, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %s: %w", g.censor(name), err)
	}
	return nil
}

// Commit stages every change and commits it as the resolved identity.
func (g *Git) Commit(ctx context.Context, title, body string) error {
	if _, err := g.run(ctx, "add", "--all"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	id, err := g.identity.Identity(ctx)
	if err != nil {
		return fmt.Errorf("resolve committer identity: %w", err)
	}
	if _, err := g.run(ctx, "commit", "--message", title, "--message", body, "--author", id.String()); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ConfigureIdentity writes the resolved identity into the clone's user.name
// and user.email so that commits made by git itself (am) are attributed.
func (g *Git) ConfigureIdentity(ctx context.Context) error {
	id, err := g.identity.Identity(ctx)
	if err != nil {
		return fmt.Errorf("resolve committer identity: %w", err)
	}
	if err := g.Config(ctx, "user.name", id.Name); err != nil {
		return err
	}
	return g.Config(ctx, "user.email", id.Email)
}

// Push pushes branch to remote, overwriting it when force is set.
func (g *Git) Push(ctx context.Context, remote, branch string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, remote, branch)
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("push %s to %s: %w", g.censor(branch), g.censor(remote), err)
	}
	return nil
}

// Am applies a mailbox patch with a three-way merge. When git ran and
// failed, the partial apply is aborted before the original error is returned.
func (g *Git) Am(ctx context.Context, patchPath string) error {
	_, err := g.run(ctx, "am", "--3way", patchPath)
	if err == nil {
		return nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		g.log.Info("patch did not apply, aborting", "patch", g.censor(patchPath))
		if _, abortErr := g.run(ctx, "am", "--abort"); abortErr != nil {
			g.log.Warn("failed to abort patch apply", "error", abortErr)
		}
	}
	return fmt.Errorf("apply patch %s: %w", g.censor(patchPath), err)
}

// BranchExists reports whether origin has a branch called name. Probe
// failures are logged and reported as false.
func (g *Git) BranchExists(ctx context.Context, name string) bool {
	if _, err := g.run(ctx, "ls-remote", "--exit-code", "--heads", "origin", name); err != nil {
		g.log.Warn("remote branch lookup failed", "branch", g.censor(name), "error", err)
		return false
	}
	return true
}

// Config runs git config with args.
func (g *Git) Config(ctx context.Context, args ...string) error {
	if _, err := g.run(ctx, append([]string{"config"}, args...)...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Clean removes the working directory and everything in it.
func (g *Git) Clean(context.Context) error {
	if err := os.RemoveAll(g.dir); err != nil {
		return fmt.Errorf("remove working directory %s: %w", g.dir, err)
	}
	return nil
}
