package orchestrator

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/rancher/cherrypicker-action/internal/github"
	"github.com/rancher/cherrypicker-action/internal/labels"
)

// PullRequestOpener opens the pull request proposing a pushed cherry-pick
// branch. It returns the URL of the opened pull request.
type PullRequestOpener interface {
	OpenPullRequest(ctx context.Context, req PullRequestRequest) (string, error)
}

// PullRequestRequest describes a pushed cherry-pick branch awaiting review.
type PullRequestRequest struct {
	// Owner and Repo name the repository the pull request targets.
	Owner string
	Repo  string
	// Base is the target branch, Head is "<fork owner>:<branch>".
	Base  string
	Head  string
	Title string
	Body  string
	// Labels are copied from the source pull request.
	Labels       []string
	IssueNumbers []int
	Source       gh.PullRequest
}

func (o *Orchestrator) buildPullRequestRequest(pr gh.PullRequest, target labels.Target, forkOwner, branch string, issues []int) PullRequestRequest {
	var body strings.Builder
	fmt.Fprintf(&body, "Cherry pick of #%d on `%s`.\n\n", pr.Number, target.Branch)
	fmt.Fprintf(&body, "#%d: %s\n", pr.Number, pr.Title)
	if len(issues) > 0 {
		refs := make([]string, 0, len(issues))
		for _, n := range issues {
			refs = append(refs, fmt.Sprintf("#%d", n))
		}
		fmt.Fprintf(&body, "\nIssues: %s\n", strings.Join(refs, ", "))
	}

	return PullRequestRequest{
		Owner:        pr.Owner,
		Repo:         pr.Repo,
		Base:         target.Branch,
		Head:         forkOwner + ":" + branch,
		Title:        fmt.Sprintf("[%s] %s", target.Branch, pr.Title),
		Body:         body.String(),
		Labels:       o.copiedLabels(pr.Labels),
		IssueNumbers: issues,
		Source:       pr,
	}
}

// copiedLabels drops excluded labels and the bot's own bookkeeping labels.
func (o *Orchestrator) copiedLabels(all []string) []string {
	kept := labels.Exclude(all, o.cfg.ExcludeLabels)
	out := make([]string, 0, len(kept))
	for _, name := range kept {
		if _, ok := labels.Match(name, o.cfg.LabelPrefix); ok {
			continue
		}
		if _, ok := labels.Match(name, o.cfg.PickedLabelPrefix); ok {
			continue
		}
		out = append(out, name)
	}
	return out
}
