package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rancher/cherrypicker-action/internal/git"
	gh "github.com/rancher/cherrypicker-action/internal/github"
	"github.com/rancher/cherrypicker-action/internal/labels"
)

// cherryPick applies the merged pull request onto one target branch and pushes
// the result to the bot's fork.
func (o *Orchestrator) cherryPick(ctx context.Context, forkingUser string, pr gh.PullRequest, tr TargetResult, issues []int) TargetResult {
	target := tr.Target
	branch := gh.BranchNameForCherryPick(target.Branch, pr.Number)
	patchPath := gh.PatchPath(o.cfg.PatchDir, pr.Owner, pr.Repo, pr.Number, target.Branch)
	tr.Branch = branch

	log := o.log.With("pr", pr.Number, "target", target.Branch, "branch", branch)
	log.Info("cherry-picking")

	defer func() {
		if err := os.Remove(patchPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove patch", "path", patchPath, "error", err)
		}
	}()

	fork := pr.Repo
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if o.cfg.DryRun {
			log.Info("dry run: skipping fork provisioning")
			return nil
		}
		name, err := o.forks.EnsureFork(gctx, forkingUser, pr.Owner, pr.Repo)
		if err != nil {
			return fmt.Errorf("ensure fork of %s/%s: %w", pr.Owner, pr.Repo, err)
		}
		fork = name
		return nil
	})
	group.Go(func() error {
		return o.downloadPatch(gctx, pr.PatchURL, patchPath)
	})
	if err := group.Wait(); err != nil {
		return failed(tr, err)
	}
	tr.Fork = forkingUser + "/" + fork

	repo, err := o.newGit(pr.Owner, pr.Repo)
	if err != nil {
		return failed(tr, fmt.Errorf("open working copy: %w", err))
	}
	defer func() {
		if err := repo.Clean(ctx); err != nil {
			log.Warn("failed to clean working copy", "dir", repo.Directory(), "error", err)
		}
	}()

	if err := repo.Clone(ctx, o.remoteURL(pr.Owner, pr.Repo)); err != nil {
		return failed(tr, err)
	}
	if !repo.BranchExists(ctx, target.Branch) {
		tr.Status = TargetStatusSkippedMissingBranch
		tr.Reason = fmt.Sprintf("branch %s does not exist in %s/%s", target.Branch, pr.Owner, pr.Repo)
		log.Warn("target branch missing")
		o.comment(ctx, pr.Owner, pr.Repo, pr.Number, fmt.Sprintf("Cannot cherry-pick #%d: branch `%s` does not exist.", pr.Number, target.Branch))
		return tr
	}
	if err := repo.Checkout(ctx, target.Branch); err != nil {
		return failed(tr, err)
	}
	if err := repo.ConfigureIdentity(ctx); err != nil {
		return failed(tr, err)
	}
	if err := repo.CheckoutNewBranch(ctx, branch); err != nil {
		return failed(tr, err)
	}
	if err := repo.Am(ctx, patchPath); err != nil {
		if !git.IsCommandError(err) {
			return failed(tr, err)
		}
		tr.Status = TargetStatusConflict
		tr.Reason = "patch does not apply cleanly"
		tr.Err = err
		log.Warn("cherry-pick conflicts", "error", err)
		tr.IssueURL = o.reportConflict(ctx, pr, target, err)
		return tr
	}

	if o.cfg.DryRun {
		tr.Status = TargetStatusDryRun
		tr.Reason = fmt.Sprintf("would push %s to %s", branch, tr.Fork)
		log.Info("dry run: skipping push", "fork", tr.Fork)
		return tr
	}
	if err := repo.Push(ctx, o.remoteURL(forkingUser, fork), branch, true); err != nil {
		return failed(tr, err)
	}

	tr.Status = TargetStatusPushed
	tr.Reason = fmt.Sprintf("pushed %s to %s", branch, tr.Fork)
	if o.opener == nil {
		log.Info("branch pushed; pull request creation not configured", "fork", tr.Fork)
	} else {
		url, err := o.opener.OpenPullRequest(ctx, o.buildPullRequestRequest(pr, target, forkingUser, branch, issues))
		if err != nil {
			return failed(tr, fmt.Errorf("open pull request: %w", err))
		}
		tr.Status = TargetStatusSucceeded
		tr.PullRequestURL = url
		tr.Reason = "pull request opened"
	}

	o.addLabel(ctx, pr, labels.PickedLabel(o.cfg.PickedLabelPrefix, target.Branch))
	return tr
}

func (o *Orchestrator) downloadPatch(ctx context.Context, url, path string) error {
	if url == "" {
		return errors.New("pull request has no patch url")
	}
	data, err := o.gh.DownloadPatch(ctx, url)
	if err != nil {
		return fmt.Errorf("download patch: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write patch %s: %w", path, err)
	}
	return nil
}

// reportConflict tells the pull request author the patch did not apply. It
// returns the URL of the opened issue, if any.
func (o *Orchestrator) reportConflict(ctx context.Context, pr gh.PullRequest, target labels.Target, amErr error) string {
	body := conflictMessage(pr, target, amErr)
	if !o.cfg.CreateIssueOnConflict {
		o.comment(ctx, pr.Owner, pr.Repo, pr.Number, body)
		return ""
	}
	if o.cfg.DryRun {
		o.log.Info("dry run: skipping conflict issue", "pr", pr.Number, "target", target.Branch)
		return ""
	}

	opts := gh.CreateIssueOptions{
		Title: fmt.Sprintf("Cherry-pick #%d to %s failed", pr.Number, target.Branch),
		Body:  body,
	}
	if pr.Author != "" {
		opts.Assignees = []string{pr.Author}
	}
	issue, err := o.gh.CreateIssue(ctx, pr.Owner, pr.Repo, opts)
	if err != nil {
		o.log.Warn("failed to open conflict issue; commenting instead", "error", err)
		o.comment(ctx, pr.Owner, pr.Repo, pr.Number, body)
		return ""
	}
	return issue.URL
}

func conflictMessage(pr gh.PullRequest, target labels.Target, amErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cherry-pick of #%d onto `%s` failed: the patch does not apply cleanly.\n", pr.Number, target.Branch)
	if pr.Author != "" {
		fmt.Fprintf(&b, "\n@%s please cherry-pick manually.\n", pr.Author)
	}
	var cmdErr *git.CommandError
	if errors.As(amErr, &cmdErr) {
		if out := strings.TrimSpace(string(cmdErr.Output.Stderr)); out != "" {
			fmt.Fprintf(&b, "\n```\n%s\n```\n", out)
		}
	}
	return b.String()
}
