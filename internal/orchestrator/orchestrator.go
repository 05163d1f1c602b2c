package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rancher/cherrypicker-action/internal/command"
	"github.com/rancher/cherrypicker-action/internal/event"
	"github.com/rancher/cherrypicker-action/internal/git"
	gh "github.com/rancher/cherrypicker-action/internal/github"
	"github.com/rancher/cherrypicker-action/internal/labels"
)

// TargetStatus classifies the outcome for an individual target branch.
type TargetStatus string

const (
	TargetStatusPending              TargetStatus = "pending"
	TargetStatusLabeled              TargetStatus = "labeled"
	TargetStatusSkippedAlreadyPicked TargetStatus = "skipped_already_picked"
	TargetStatusSkippedMissingBranch TargetStatus = "skipped_missing_branch"
	TargetStatusDryRun               TargetStatus = "dry_run"
	TargetStatusPushed               TargetStatus = "pushed"
	TargetStatusSucceeded            TargetStatus = "succeeded"
	TargetStatusConflict             TargetStatus = "conflict"
	TargetStatusFailed               TargetStatus = "failed"
)

// TargetResult captures the outcome for a single target branch.
type TargetResult struct {
	Target labels.Target
	Status TargetStatus
	Reason string
	// Branch is the cherry-pick branch created for the target.
	Branch string
	// Fork is owner/name of the repository the branch was pushed to.
	Fork           string
	PullRequestURL string
	IssueURL       string
	Err            error
}

// Result summarizes the outcome of handling one event.
type Result struct {
	SourcePR      int
	Targets       []TargetResult
	Invited       string
	Skipped       bool
	SkippedReason string
}

// Failed reports whether any target failed or conflicted.
func (r Result) Failed() bool {
	for _, t := range r.Targets {
		if t.Status == TargetStatusFailed || t.Status == TargetStatusConflict {
			return true
		}
	}
	return false
}

func skipped(format string, args ...any) Result {
	return Result{Skipped: true, SkippedReason: fmt.Sprintf(format, args...)}
}

// ForkEnsurer makes sure forkingUser owns a fork of owner/repo and returns its name.
type ForkEnsurer interface {
	EnsureFork(ctx context.Context, forkingUser, owner, repo string) (string, error)
}

// GitFactory opens a working copy handle for owner/repo.
type GitFactory func(owner, repo string) (*git.Git, error)

// Dependencies are the collaborators the orchestrator drives.
type Dependencies struct {
	GitHub gh.Client
	// Forks defaults to a gh.ForkSynchronizer over GitHub.
	Forks  ForkEnsurer
	NewGit GitFactory
	// Opener is optional. Without it pushed branches are reported as such.
	Opener PullRequestOpener
	// RemoteURL builds clone and push URLs. Defaults to https://github.com/<owner>/<repo>.git.
	RemoteURL func(owner, repo string) string
	Log       *slog.Logger
}

// Orchestrator turns trigger events into cherry-picks.
type Orchestrator struct {
	cfg       Config
	gh        gh.Client
	forks     ForkEnsurer
	newGit    GitFactory
	opener    PullRequestOpener
	remoteURL func(owner, repo string) string
	log       *slog.Logger
}

// New constructs an orchestrator instance.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.GitHub == nil {
		return nil, errors.New("github client is required")
	}
	if deps.NewGit == nil {
		return nil, errors.New("git factory is required")
	}
	if strings.TrimSpace(cfg.LabelPrefix) == "" {
		return nil, errors.New("label prefix is required")
	}
	if strings.TrimSpace(cfg.PickedLabelPrefix) == "" {
		return nil, errors.New("picked label prefix is required")
	}

	log := deps.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	forks := deps.Forks
	if forks == nil {
		forks = gh.NewForkSynchronizer(deps.GitHub, log)
	}
	remoteURL := deps.RemoteURL
	if remoteURL == nil {
		remoteURL = func(owner, repo string) string {
			return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
		}
	}
	if cfg.PatchDir == "" {
		cfg.PatchDir = os.TempDir()
	}

	return &Orchestrator{
		cfg:       cfg,
		gh:        deps.GitHub,
		forks:     forks,
		newGit:    deps.NewGit,
		opener:    deps.Opener,
		remoteURL: remoteURL,
		log:       log,
	}, nil
}

// Handle dispatches a decoded event to its handler.
func (o *Orchestrator) Handle(ctx context.Context, ev event.Event) (Result, error) {
	switch {
	case ev.IssueComment != nil:
		return o.HandleIssueComment(ctx, *ev.IssueComment)
	case ev.PullRequest != nil:
		return o.HandlePullRequest(ctx, *ev.PullRequest)
	default:
		return Result{}, fmt.Errorf("%w: %q", event.ErrUnsupportedEvent, ev.Name)
	}
}

// HandleIssueComment reacts to /cherry-pick commands left on pull requests.
func (o *Orchestrator) HandleIssueComment(ctx context.Context, p event.IssueCommentPayload) (Result, error) {
	if p.Action != event.IssueCommentActionCreated {
		return skipped("comment action %q ignored", p.Action), nil
	}
	if !p.Issue.IsPullRequest {
		return skipped("comment is not on a pull request"), nil
	}

	invite := command.IsInvite(p.Comment.Body)
	branches := command.CherryPickTargets(p.Comment.Body)
	if !invite && len(branches) == 0 {
		return skipped("no cherry-pick command in comment"), nil
	}

	owner, repo, number := p.Repository.Owner, p.Repository.Name, p.Issue.Number
	log := o.log.With("repo", p.Repository.FullName(), "pr", number, "commenter", p.Comment.Author)

	allowed, err := o.authorize(ctx, owner, p.Comment.Author)
	if err != nil {
		return Result{}, err
	}
	if !allowed {
		log.Info("commenter is not allowed to request cherry-picks")
		o.comment(ctx, owner, repo, number, fmt.Sprintf("@%s only members of the %s organization can request cherry-picks.", p.Comment.Author, owner))
		return skipped("%s is not a member of %s", p.Comment.Author, owner), nil
	}

	var res Result
	res.SourcePR = number
	if invite {
		if err := o.invite(ctx, owner, repo, number, p.Comment.Author); err != nil {
			return res, err
		}
		if !o.cfg.DryRun {
			res.Invited = p.Comment.Author
		}
	}
	if len(branches) == 0 {
		return res, nil
	}

	targets := labels.TargetsForBranches(branches, o.cfg.LabelPrefix)
	if err := labels.ValidateTargets(targets); err != nil {
		o.comment(ctx, owner, repo, number, fmt.Sprintf("@%s %v", p.Comment.Author, err))
		return res, err
	}

	pr, err := o.gh.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return res, fmt.Errorf("get pull request #%d: %w", number, err)
	}

	for _, t := range targets {
		o.addLabel(ctx, pr, t.LabelName)
	}

	if !pr.Merged {
		log.Info("pull request not merged yet; targets recorded", "targets", labels.Branches(targets))
		for _, t := range targets {
			res.Targets = append(res.Targets, TargetResult{
				Target: t,
				Status: TargetStatusLabeled,
				Reason: "cherry-pick runs once the pull request is merged",
			})
		}
		return res, nil
	}

	picked := o.process(ctx, pr, targets)
	picked.Invited = res.Invited
	return picked, nil
}

// HandlePullRequest reacts to merged pull requests and to labels added after the merge.
func (o *Orchestrator) HandlePullRequest(ctx context.Context, p event.PullRequestPayload) (Result, error) {
	owner, repo, number := p.Repository.Owner, p.Repository.Name, p.PullRequest.Number

	var requested []string
	switch p.Action {
	case event.PullRequestActionClosed:
		if !p.PullRequest.Merged {
			return skipped("pull request #%d closed without merging", number), nil
		}
	case event.PullRequestActionLabeled:
		if !p.PullRequest.Merged {
			return skipped("pull request #%d is not merged", number), nil
		}
		if _, ok := labels.Match(p.LabelName, o.cfg.LabelPrefix); !ok {
			return skipped("label %q does not request a cherry-pick", p.LabelName), nil
		}
		requested = []string{p.LabelName}
	default:
		return skipped("pull_request action %q ignored", p.Action), nil
	}

	pr, err := o.gh.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return Result{}, fmt.Errorf("get pull request #%d: %w", number, err)
	}
	if requested == nil {
		requested = pr.Labels
	}

	targets, err := labels.CollectTargets(requested, o.cfg.LabelPrefix)
	if err != nil {
		return Result{}, err
	}
	if len(targets) == 0 {
		return skipped("pull request #%d has no %s labels", number, o.cfg.LabelPrefix), nil
	}
	if err := labels.ValidateTargets(targets); err != nil {
		return Result{}, err
	}

	return o.process(ctx, pr, targets), nil
}

func (o *Orchestrator) process(ctx context.Context, pr gh.PullRequest, targets []labels.Target) Result {
	res := Result{SourcePR: pr.Number, Targets: make([]TargetResult, 0, len(targets))}

	pending := 0
	for _, t := range targets {
		tr := TargetResult{Target: t, Status: TargetStatusPending}
		if labels.IsPicked(pr.Labels, o.cfg.PickedLabelPrefix, t.Branch) {
			tr.Status = TargetStatusSkippedAlreadyPicked
			tr.Reason = "already cherry-picked"
		} else {
			pending++
		}
		res.Targets = append(res.Targets, tr)
	}
	if pending == 0 {
		return res
	}

	forkingUser, err := o.gh.AuthenticatedUser(ctx)
	if err != nil {
		err = fmt.Errorf("resolve authenticated user: %w", err)
		for i := range res.Targets {
			if res.Targets[i].Status == TargetStatusPending {
				res.Targets[i] = failed(res.Targets[i], err)
			}
		}
		return res
	}

	issues := o.issueNumbers(ctx, pr)
	for i := range res.Targets {
		if res.Targets[i].Status != TargetStatusPending {
			continue
		}
		res.Targets[i] = o.cherryPick(ctx, forkingUser, pr, res.Targets[i], issues)
	}
	return res
}

func (o *Orchestrator) authorize(ctx context.Context, org, user string) (bool, error) {
	if o.cfg.AllowAll {
		return true, nil
	}
	if user == "" {
		return false, nil
	}
	member, err := o.gh.CheckOrgMembership(ctx, org, user)
	if err != nil {
		return false, fmt.Errorf("check %s membership in %s: %w", user, org, err)
	}
	return member, nil
}

// invite grants user push access to the bot's fork of owner/repo.
func (o *Orchestrator) invite(ctx context.Context, owner, repo string, number int, user string) error {
	if o.cfg.DryRun {
		o.log.Info("dry run: skipping collaborator invite", "user", user)
		return nil
	}

	forkingUser, err := o.gh.AuthenticatedUser(ctx)
	if err != nil {
		return fmt.Errorf("resolve authenticated user: %w", err)
	}
	fork, err := o.forks.EnsureFork(ctx, forkingUser, owner, repo)
	if err != nil {
		return fmt.Errorf("ensure fork of %s/%s: %w", owner, repo, err)
	}
	if err := o.gh.AddCollaborator(ctx, forkingUser, fork, user); err != nil {
		return fmt.Errorf("invite %s to %s/%s: %w", user, forkingUser, fork, err)
	}

	o.comment(ctx, owner, repo, number, fmt.Sprintf("@%s you have been invited to %s/%s.", user, forkingUser, fork))
	return nil
}

func (o *Orchestrator) issueNumbers(ctx context.Context, pr gh.PullRequest) []int {
	if !o.cfg.CopyIssueNumbersFromSquashedCommit || pr.MergeSHA == "" {
		return nil
	}
	msg, err := o.gh.GetCommitMessage(ctx, pr.Owner, pr.Repo, pr.MergeSHA)
	if err != nil {
		o.log.Warn("failed to read merge commit message", "sha", pr.MergeSHA, "error", err)
		return nil
	}
	return command.IssueNumbers(msg)
}

// addLabel ensures the label exists and adds it to the pull request.
// Failures are logged; labels are bookkeeping.
func (o *Orchestrator) addLabel(ctx context.Context, pr gh.PullRequest, name string) {
	log := o.log.With("pr", pr.Number, "label", name)
	if o.cfg.DryRun {
		log.Info("dry run: skipping label")
		return
	}
	if err := o.gh.CreateLabel(ctx, pr.Owner, pr.Repo, gh.Label{Name: name}); err != nil {
		log.Warn("failed to create label", "error", err)
	}
	if err := o.gh.AddLabels(ctx, pr.Owner, pr.Repo, pr.Number, name); err != nil {
		log.Warn("failed to add label", "error", err)
	}
}

func (o *Orchestrator) comment(ctx context.Context, owner, repo string, number int, body string) {
	if o.cfg.DryRun {
		o.log.Info("dry run: skipping comment", "pr", number, "body", body)
		return
	}
	if err := o.gh.CommentOnIssue(ctx, owner, repo, number, body); err != nil {
		o.log.Warn("failed to comment", "pr", number, "error", err)
	}
}

func failed(tr TargetResult, err error) TargetResult {
	tr.Status = TargetStatusFailed
	tr.Reason = err.Error()
	tr.Err = err
	return tr
}
