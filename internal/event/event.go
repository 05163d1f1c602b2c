// Package event decodes the webhook payloads that trigger the action.
package event

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/go-github/v55/github"
)

const (
	NameIssueComment      = "issue_comment"
	NamePullRequest       = "pull_request"
	NamePullRequestTarget = "pull_request_target"
)

// ErrUnsupportedEvent is returned for event names the action does not handle.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Repository identifies the owner/name of the repository where the event originated.
type Repository struct {
	Owner string
	Name  string
}

// FullName returns owner/name.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Event is a decoded trigger. Exactly one payload field is set.
type Event struct {
	Name         string
	IssueComment *IssueCommentPayload
	PullRequest  *PullRequestPayload
}

// Parse decodes the payload of the named event.
func Parse(name string, r io.Reader) (Event, error) {
	name = strings.TrimSpace(name)
	switch name {
	case NameIssueComment:
		p, err := ParseIssueCommentEvent(r)
		if err != nil {
			return Event{}, err
		}
		return Event{Name: name, IssueComment: &p}, nil
	case NamePullRequest, NamePullRequestTarget:
		p, err := ParsePullRequestEvent(r)
		if err != nil {
			return Event{}, err
		}
		return Event{Name: name, PullRequest: &p}, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
}

// ParseFile reads the named event's JSON payload from disk.
func ParseFile(name, path string) (Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return Event{}, fmt.Errorf("open event file: %w", err)
	}
	defer f.Close()

	return Parse(name, f)
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

func repositoryOf(repo *github.Repository) Repository {
	return Repository{
		Owner: strings.TrimSpace(repo.GetOwner().GetLogin()),
		Name:  strings.TrimSpace(repo.GetName()),
	}
}
