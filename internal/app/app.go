package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rancher/cherrypicker-action/internal/event"
	"github.com/rancher/cherrypicker-action/internal/git"
	gh "github.com/rancher/cherrypicker-action/internal/github"
	"github.com/rancher/cherrypicker-action/internal/orchestrator"
)

const defaultServerURL = "https://github.com"

// Runner glues together the orchestrator and supporting services to execute the cherry-pick flow.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	ghFactory gh.Factory
	gitExec   git.Executor // only set for testing via NewRunnerWithDeps
}

// NewRunner constructs a Runner with the supplied configuration.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &Runner{
		cfg:       cfg,
		log:       logger,
		ghFactory: gh.NewRESTFactory(cfg.GitHubBaseURL, cfg.GitHubUploadURL),
	}, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, ghFactory gh.Factory, gitExec git.Executor) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, log: log, ghFactory: ghFactory, gitExec: gitExec}
}

// Run executes the application using the provided context.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("starting cherry-pick run", "dry_run", r.cfg.DryRun, "allow_all", r.cfg.AllowAll)

	eventName := strings.TrimSpace(os.Getenv("GITHUB_EVENT_NAME"))
	eventPath := strings.TrimSpace(os.Getenv("GITHUB_EVENT_PATH"))
	if eventPath == "" {
		return fmt.Errorf("GITHUB_EVENT_PATH is required")
	}

	ev, err := event.ParseFile(eventName, eventPath)
	if errors.Is(err, event.ErrUnsupportedEvent) {
		r.log.Info("ignoring unsupported event", "event_name", eventName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("parse %s event: %w", eventName, err)
	}

	ghClient, err := r.ghFactory.New(ctx, r.cfg.GitHubToken)
	if err != nil {
		return fmt.Errorf("initialize github client: %w", err)
	}

	patchDir := filepath.Join(r.cfg.WorkDir, "patches")
	if err := os.MkdirAll(patchDir, 0o755); err != nil {
		return fmt.Errorf("create patch directory: %w", err)
	}

	server := serverRoot(r.cfg.GitHubBaseURL)
	exec := r.gitExecutor(server)
	censor := git.ChainCensors(git.StripURLCredentials, git.RedactSecrets(r.cfg.GitHubToken))
	identity := git.IdentityChain{
		git.EnvIdentity{},
		git.StaticIdentity{Name: r.cfg.GitUserName, Email: r.cfg.GitUserEmail},
	}
	repoRoot := filepath.Join(r.cfg.WorkDir, "repos")

	orch, err := orchestrator.New(orchestrator.Config{
		AllowAll:                           r.cfg.AllowAll,
		CreateIssueOnConflict:              r.cfg.CreateIssueOnConflict,
		LabelPrefix:                        r.cfg.LabelPrefix,
		PickedLabelPrefix:                  r.cfg.PickedLabelPrefix,
		ExcludeLabels:                      r.cfg.ExcludeLabels,
		CopyIssueNumbersFromSquashedCommit: r.cfg.CopyIssueNumbersFromSquashedCommit,
		DryRun:                             r.cfg.DryRun,
		PatchDir:                           patchDir,
	}, orchestrator.Dependencies{
		GitHub: ghClient,
		NewGit: func(owner, repo string) (*git.Git, error) {
			return git.New(git.Config{
				Dir:      filepath.Join(repoRoot, owner, repo),
				Censor:   censor,
				Executor: exec,
				Identity: identity,
				Log:      r.log,
			})
		},
		RemoteURL: func(owner, repo string) string {
			return fmt.Sprintf("%s/%s/%s.git", server, owner, repo)
		},
		Log: r.log,
	})
	if err != nil {
		return fmt.Errorf("configure orchestrator: %w", err)
	}

	result, err := orch.Handle(ctx, ev)
	if err != nil {
		return fmt.Errorf("handle %s event: %w", ev.Name, err)
	}

	if result.Skipped {
		r.log.Info("skipping cherry-pick", "reason", result.SkippedReason)
	}
	for _, target := range result.Targets {
		r.log.Info("cherry-pick target", "branch", target.Target.Branch, "status", target.Status, "reason", target.Reason)
	}

	if err := r.writeStepSummary(result); err != nil {
		r.log.Warn("failed to write step summary", "error", err)
	}
	if err := r.writeGitHubOutputs(result); err != nil {
		r.log.Warn("failed to write action outputs", "error", err)
	}

	if result.Failed() {
		var failed []string
		for _, target := range result.Targets {
			if target.Status == orchestrator.TargetStatusFailed || target.Status == orchestrator.TargetStatusConflict {
				failed = append(failed, target.Target.Branch)
			}
		}
		return fmt.Errorf("cherry-pick failed for %d target(s): %s", len(failed), strings.Join(failed, ", "))
	}

	return nil
}

func (r *Runner) gitExecutor(server string) git.Executor {
	if r.gitExec != nil {
		return r.gitExec
	}
	if r.cfg.DryRun {
		return git.NewNoopExecutor(r.log)
	}
	exec := git.NewCommandExecutor("git")
	exec.Env = gitAuthEnv(server, r.cfg.GitHubToken)
	return exec
}

// gitAuthEnv configures an http extraheader for server so the token never
// appears in a remote URL or argument.
func gitAuthEnv(server, token string) []string {
	if token == "" {
		return nil
	}
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http." + server + "/.extraheader",
		"GIT_CONFIG_VALUE_0=AUTHORIZATION: basic " + basic,
		"GIT_TERMINAL_PROMPT=0",
	}
}

// serverRoot returns scheme://host of the GitHub server that hosts the
// repositories, derived from the API base URL for GitHub Enterprise.
func serverRoot(baseURL string) string {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return defaultServerURL
	}

	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" || strings.EqualFold(parsed.Host, "api.github.com") {
		return defaultServerURL
	}

	return (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host}).String()
}
