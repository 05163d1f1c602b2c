package gh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultForkPollInterval = 15 * time.Second
	DefaultForkTimeout      = 6 * time.Minute

	forkListPageSize = 100
)

// ErrForkTimeout is returned when a created fork never became visible.
var ErrForkTimeout = errors.New("timed out waiting for fork")

// Clock abstracts time for the fork wait loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ForkSynchronizer makes sure a user has a fork of a repository, creating it
// and waiting for GitHub to finish provisioning it when needed.
type ForkSynchronizer struct {
	client       Client
	log          *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration
	clock        Clock
}

// ForkOptions overrides ForkSynchronizer defaults. Zero values keep the default.
type ForkOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        Clock
}

// NewForkSynchronizer returns a synchronizer backed by client.
func NewForkSynchronizer(client Client, log *slog.Logger, opts ...ForkOptions) *ForkSynchronizer {
	s := &ForkSynchronizer{
		client:       client,
		log:          log,
		pollInterval: DefaultForkPollInterval,
		timeout:      DefaultForkTimeout,
		clock:        realClock{},
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	for _, o := range opts {
		if o.PollInterval > 0 {
			s.pollInterval = o.PollInterval
		}
		if o.Timeout > 0 {
			s.timeout = o.Timeout
		}
		if o.Clock != nil {
			s.clock = o.Clock
		}
	}
	return s
}

// IsForked reports whether forkingUser owns a fork of owner/repo. The fork
// must carry the repository's name and record owner/repo as its parent.
func (s *ForkSynchronizer) IsForked(ctx context.Context, forkingUser, owner, repo string) (bool, error) {
	repos, err := ListAll[Repository](ctx, RepositoryLister{
		Client:  s.client,
		Request: ListReposRequest{Username: forkingUser, Type: "owner", PerPage: forkListPageSize},
	})
	if err != nil {
		return false, fmt.Errorf("list repositories of %s: %w", forkingUser, err)
	}

	var candidate *Repository
	for i := range repos {
		if repos[i].Fork && strings.EqualFold(repos[i].Name, repo) {
			candidate = &repos[i]
			break
		}
	}
	if candidate == nil {
		return false, nil
	}

	details, err := s.client.GetRepository(ctx, forkingUser, candidate.Name)
	if err != nil {
		return false, fmt.Errorf("get repository %s/%s: %w", forkingUser, candidate.Name, err)
	}
	if details.ParentFullName == "" {
		return false, nil
	}
	return strings.EqualFold(details.ParentFullName, owner+"/"+repo), nil
}

// EnsureFork returns the name of forkingUser's fork of owner/repo, creating
// it and waiting for it to appear when it does not exist yet.
func (s *ForkSynchronizer) EnsureFork(ctx context.Context, forkingUser, owner, repo string) (string, error) {
	forked, err := s.IsForked(ctx, forkingUser, owner, repo)
	if err != nil {
		return "", err
	}
	if forked {
		s.log.Debug("fork already exists", "user", forkingUser, "repo", repo)
		return repo, nil
	}

	s.log.Info("creating fork", "source", owner+"/"+repo, "user", forkingUser)
	fork, err := s.client.CreateFork(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("create fork of %s/%s: %w", owner, repo, err)
	}

	forkOwner, forkName := fork.Owner, fork.Name
	if forkOwner == "" {
		forkOwner = forkingUser
	}
	if forkName == "" {
		forkName = repo
	}
	if err := s.WaitForFork(ctx, forkOwner, forkName); err != nil {
		return "", err
	}
	return forkName, nil
}

// WaitForFork polls owner/repo until GitHub reports it as a fork. Poll
// failures are treated as not ready. Polling stops once another interval
// would pass the timeout.
func (s *ForkSynchronizer) WaitForFork(ctx context.Context, owner, repo string) error {
	deadline := s.clock.Now().Add(s.timeout)
	name := owner + "/" + repo

	for attempt := 1; ; attempt++ {
		r, err := s.client.GetRepository(ctx, owner, repo)
		switch {
		case err != nil:
			s.log.Warn("fork not reachable yet", "repo", name, "attempt", attempt, "error", err)
		case r.Fork:
			s.log.Info("fork is ready", "repo", name, "attempts", attempt)
			return nil
		default:
			s.log.Debug("repository is not a fork yet", "repo", name, "attempt", attempt)
		}

		if s.clock.Now().Add(s.pollInterval).After(deadline) {
			return fmt.Errorf("%w: %s did not appear on GitHub within %s", ErrForkTimeout, name, s.timeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for fork %s: %w", name, ctx.Err())
		case <-s.clock.After(s.pollInterval):
		}
	}
}
