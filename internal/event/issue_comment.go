package event

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-github/v55/github"
)

// IssueCommentAction enumerates issue_comment actions.
type IssueCommentAction string

const (
	IssueCommentActionCreated IssueCommentAction = "created"
	IssueCommentActionEdited  IssueCommentAction = "edited"
	IssueCommentActionDeleted IssueCommentAction = "deleted"
)

// IssueCommentPayload captures an issue_comment event. Comments on pull
// requests arrive as comments on the backing issue.
type IssueCommentPayload struct {
	Action     IssueCommentAction
	Repository Repository
	Issue      Issue
	Comment    Comment
}

// Issue is the issue or pull request the comment was left on.
type Issue struct {
	Number        int
	State         string
	IsPullRequest bool
}

// Comment is the comment that triggered the event.
type Comment struct {
	ID     int64
	Body   string
	Author string
}

// ParseIssueCommentEvent decodes a GitHub issue_comment event payload.
func ParseIssueCommentEvent(r io.Reader) (IssueCommentPayload, error) {
	var raw github.IssueCommentEvent
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return IssueCommentPayload{}, fmt.Errorf("decode issue_comment event: %w", err)
	}

	issue := raw.GetIssue()
	comment := raw.GetComment()
	author := strings.TrimSpace(comment.GetUser().GetLogin())
	if author == "" {
		author = strings.TrimSpace(raw.GetSender().GetLogin())
	}

	return IssueCommentPayload{
		Action:     IssueCommentAction(normalizeAction(raw.GetAction())),
		Repository: repositoryOf(raw.GetRepo()),
		Issue: Issue{
			Number:        issue.GetNumber(),
			State:         strings.ToLower(issue.GetState()),
			IsPullRequest: issue != nil && issue.IsPullRequest(),
		},
		Comment: Comment{
			ID:     comment.GetID(),
			Body:   comment.GetBody(),
			Author: author,
		},
	}, nil
}
