package gh

import (
	"context"
	"errors"
)

// ErrNoopClient is returned by every call on the noop client.
var ErrNoopClient = errors.New("noop github client not implemented")

// NewNoopFactory returns a Factory that builds noop clients.
func NewNoopFactory() Factory {
	return noopFactory{}
}

type noopFactory struct{}

func (noopFactory) New(context.Context, string) (Client, error) {
	return noopClient{}, nil
}

type noopClient struct{}

func (noopClient) AuthenticatedUser(context.Context) (string, error) {
	return "", ErrNoopClient
}

func (noopClient) CreateFork(context.Context, string, string) (Repository, error) {
	return Repository{}, ErrNoopClient
}

func (noopClient) GetRepository(context.Context, string, string) (Repository, error) {
	return Repository{}, ErrNoopClient
}

func (noopClient) ListRepositoriesForUser(context.Context, ListReposRequest) (Page[Repository], error) {
	return Page[Repository]{}, ErrNoopClient
}

func (noopClient) GetPullRequest(context.Context, string, string, int) (PullRequest, error) {
	return PullRequest{}, ErrNoopClient
}

func (noopClient) GetCommitMessage(context.Context, string, string, string) (string, error) {
	return "", ErrNoopClient
}

func (noopClient) CreateLabel(context.Context, string, string, Label) error {
	return ErrNoopClient
}

func (noopClient) AddLabels(context.Context, string, string, int, ...string) error {
	return ErrNoopClient
}

func (noopClient) CommentOnIssue(context.Context, string, string, int, string) error {
	return ErrNoopClient
}

func (noopClient) CreateIssue(context.Context, string, string, CreateIssueOptions) (Issue, error) {
	return Issue{}, ErrNoopClient
}

func (noopClient) AddCollaborator(context.Context, string, string, string) error {
	return ErrNoopClient
}

func (noopClient) CheckOrgMembership(context.Context, string, string) (bool, error) {
	return false, ErrNoopClient
}

func (noopClient) DownloadPatch(context.Context, string) ([]byte, error) {
	return nil, ErrNoopClient
}
