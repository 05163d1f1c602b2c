package event

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-github/v55/github"
)

// PullRequestAction enumerates actions we care about from pull_request events.
type PullRequestAction string

const (
	PullRequestActionClosed  PullRequestAction = "closed"
	PullRequestActionLabeled PullRequestAction = "labeled"
)

// PullRequestPayload captures the subset of GitHub pull_request event data used by the action.
type PullRequestPayload struct {
	Action      PullRequestAction
	Repository  Repository
	PullRequest PullRequest
	// LabelName is the label added by a labeled action.
	LabelName string
	Sender    string
}

// PullRequest includes the metadata required for cherry-pick orchestration.
type PullRequest struct {
	Number         int
	State          string
	Labels         []string
	Merged         bool
	MergeCommitSHA string
	Title          string
	Author         string
}

// ParsePullRequestEvent decodes a GitHub pull_request event payload from the provided reader.
func ParsePullRequestEvent(r io.Reader) (PullRequestPayload, error) {
	var raw github.PullRequestEvent
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return PullRequestPayload{}, fmt.Errorf("decode pull_request event: %w", err)
	}

	pr := raw.GetPullRequest()
	payload := PullRequestPayload{
		Action:     PullRequestAction(normalizeAction(raw.GetAction())),
		Repository: repositoryOf(raw.GetRepo()),
		PullRequest: PullRequest{
			Number:         pr.GetNumber(),
			State:          strings.ToLower(pr.GetState()),
			Merged:         pr.GetMerged(),
			MergeCommitSHA: strings.TrimSpace(pr.GetMergeCommitSHA()),
			Title:          pr.GetTitle(),
			Author:         strings.TrimSpace(pr.GetUser().GetLogin()),
		},
		Sender: strings.TrimSpace(raw.GetSender().GetLogin()),
	}

	for _, l := range pr.Labels {
		if name := strings.TrimSpace(l.GetName()); name != "" {
			payload.PullRequest.Labels = append(payload.PullRequest.Labels, name)
		}
	}
	if raw.Label != nil {
		payload.LabelName = strings.TrimSpace(raw.Label.GetName())
	}

	return payload, nil
}
