package gh

import (
	"context"
	"errors"
)

// Repository is the subset of repository metadata the bot relies on.
type Repository struct {
	Owner          string
	Name           string
	FullName       string
	Fork           bool
	ParentFullName string
	CloneURL       string
}

// PullRequest contains source pull request details needed for cherry-pick operations.
type PullRequest struct {
	Owner    string
	Repo     string
	Number   int
	Title    string
	Body     string
	State    string
	Merged   bool
	MergeSHA string
	PatchURL string
	HTMLURL  string
	Author   string
	Labels   []string
}

// Label describes a repository label. An empty Color is replaced with a
// generated one on creation.
type Label struct {
	Name        string
	Color       string
	Description string
}

// Issue is a created issue.
type Issue struct {
	Number int
	URL    string
}

// CreateIssueOptions defines the metadata of a new issue.
type CreateIssueOptions struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// Client exposes the GitHub operations the cherry-pick workflow requires.
// Implementations are safe for concurrent use.
type Client interface {
	AuthenticatedUser(ctx context.Context) (string, error)
	CreateFork(ctx context.Context, owner, repo string) (Repository, error)
	GetRepository(ctx context.Context, owner, repo string) (Repository, error)
	ListRepositoriesForUser(ctx context.Context, req ListReposRequest) (Page[Repository], error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error)
	GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error)
	CreateLabel(ctx context.Context, owner, repo string, label Label) error
	AddLabels(ctx context.Context, owner, repo string, number int, labels ...string) error
	CommentOnIssue(ctx context.Context, owner, repo string, number int, body string) error
	CreateIssue(ctx context.Context, owner, repo string, input CreateIssueOptions) (Issue, error)
	AddCollaborator(ctx context.Context, owner, repo, username string) error
	CheckOrgMembership(ctx context.Context, org, username string) (bool, error)
	DownloadPatch(ctx context.Context, patchURL string) ([]byte, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed) for the orchestrator.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("github: not found")

// ErrPatchTooLarge indicates a patch exceeded the download size limit.
var ErrPatchTooLarge = errors.New("github: patch too large")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a retryable GitHub
// API failure (for example, a transient network problem or rate-limited request).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
