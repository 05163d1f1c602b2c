package gh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	github "github.com/google/go-github/v55/github"
	"github.com/hashicorp/go-retryablehttp"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/oauth2"
)

const (
	defaultUserAgent = "rancher-cherrypicker-action"

	patchDownloadRetries = 3
)

// maxPatchSize bounds downloaded patches. Larger patches are rejected rather
// than truncated.
var maxPatchSize int64 = 32 << 20

// NewRESTFactory returns a GitHub client factory backed by the go-github REST client. When
// base and upload URLs are provided, the factory targets a GitHub Enterprise instance.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client  *github.Client
	patches *retryablehttp.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		uploadURL := f.uploadURL
		if uploadURL == "" {
			return nil, fmt.Errorf("github upload url must be provided when base url is set")
		}

		uploadURLNormalized, err := normalizeGitHubURL(uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	patches := retryablehttp.NewClient()
	patches.HTTPClient = tc
	patches.RetryMax = patchDownloadRetries
	patches.RetryWaitMin = 500 * time.Millisecond
	patches.RetryWaitMax = 5 * time.Second
	patches.Logger = nil

	return &restClient{client: ghClient, patches: patches}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func (c *restClient) AuthenticatedUser(ctx context.Context) (string, error) {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("get authenticated user: %w", classifyGitHubError(err))
	}
	return user.GetLogin(), nil
}

func (c *restClient) CreateFork(ctx context.Context, owner, repo string) (Repository, error) {
	fork, _, err := c.client.Repositories.CreateFork(ctx, owner, repo, &github.RepositoryCreateForkOptions{})
	if err != nil {
		// GitHub answers 202 while the fork is provisioned in the background.
		var accepted *github.AcceptedError
		if !errors.As(err, &accepted) {
			return Repository{}, classifyGitHubError(err)
		}
	}
	if fork == nil {
		return Repository{}, nil
	}
	return toRepository(fork), nil
}

func (c *restClient) GetRepository(ctx context.Context, owner, repo string) (Repository, error) {
	r, resp, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if isNotFound(resp, err) {
			return Repository{}, fmt.Errorf("%s/%s: %w", owner, repo, ErrNotFound)
		}
		return Repository{}, classifyGitHubError(err)
	}
	return toRepository(r), nil
}

func (c *restClient) ListRepositoriesForUser(ctx context.Context, req ListReposRequest) (Page[Repository], error) {
	opts := &github.RepositoryListOptions{
		Type:      req.Type,
		Sort:      req.Sort,
		Direction: req.Direction,
		ListOptions: github.ListOptions{
			Page:    req.Page,
			PerPage: req.PerPage,
		},
	}

	repos, resp, err := c.client.Repositories.List(ctx, req.Username, opts)
	if err != nil {
		return Page[Repository]{}, fmt.Errorf("list repositories: %w", classifyGitHubError(err))
	}

	page := Page[Repository]{Items: make([]Repository, 0, len(repos))}
	for _, r := range repos {
		if r == nil {
			continue
		}
		page.Items = append(page.Items, toRepository(r))
	}
	if resp != nil {
		page.NextPage = resp.NextPage
	}
	return page, nil
}

func toRepository(r *github.Repository) Repository {
	out := Repository{
		Owner:    r.GetOwner().GetLogin(),
		Name:     r.GetName(),
		FullName: r.GetFullName(),
		Fork:     r.GetFork(),
		CloneURL: r.GetCloneURL(),
	}
	if parent := r.GetParent(); parent != nil {
		out.ParentFullName = parent.GetFullName()
	}
	return out
}

func (c *restClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	pr, resp, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		if isNotFound(resp, err) {
			return PullRequest{}, fmt.Errorf("pull request %s/%s#%d: %w", owner, repo, number, ErrNotFound)
		}
		return PullRequest{}, fmt.Errorf("get pull request: %w", classifyGitHubError(err))
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, label := range pr.Labels {
		if label == nil {
			continue
		}
		if name := label.GetName(); name != "" {
			labels = append(labels, name)
		}
	}

	return PullRequest{
		Owner:    owner,
		Repo:     repo,
		Number:   pr.GetNumber(),
		Title:    pr.GetTitle(),
		Body:     pr.GetBody(),
		State:    pr.GetState(),
		Merged:   pr.GetMerged(),
		MergeSHA: pr.GetMergeCommitSHA(),
		PatchURL: pr.GetPatchURL(),
		HTMLURL:  pr.GetHTMLURL(),
		Author:   pr.GetUser().GetLogin(),
		Labels:   labels,
	}, nil
}

func (c *restClient) GetCommitMessage(ctx context.Context, owner, repo, sha string) (string, error) {
	commit, _, err := c.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return "", fmt.Errorf("get commit %s: %w", sha, classifyGitHubError(err))
	}
	return commit.GetCommit().GetMessage(), nil
}

func (c *restClient) CreateLabel(ctx context.Context, owner, repo string, label Label) error {
	color := strings.TrimPrefix(label.Color, "#")
	if color == "" {
		color = strings.TrimPrefix(colorful.FastHappyColor().Hex(), "#")
	}

	_, _, err := c.client.Issues.CreateLabel(ctx, owner, repo, &github.Label{
		Name:        github.String(label.Name),
		Color:       github.String(color),
		Description: github.String(label.Description),
	})
	if err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("create label %s: %w", label.Name, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) AddLabels(ctx context.Context, owner, repo string, number int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	if _, _, err := c.client.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels); err != nil {
		return fmt.Errorf("add labels to #%d: %w", number, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) CommentOnIssue(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.CreateComment(ctx, owner, repo, number, comment); err != nil {
		return fmt.Errorf("create comment: %w", classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) CreateIssue(ctx context.Context, owner, repo string, input CreateIssueOptions) (Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(input.Title),
		Body:  github.String(input.Body),
	}
	if len(input.Labels) > 0 {
		req.Labels = &input.Labels
	}
	if len(input.Assignees) > 0 {
		req.Assignees = &input.Assignees
	}

	issue, _, err := c.client.Issues.Create(ctx, owner, repo, req)
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", classifyGitHubError(err))
	}
	return Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

func (c *restClient) AddCollaborator(ctx context.Context, owner, repo, username string) error {
	if _, _, err := c.client.Repositories.AddCollaborator(ctx, owner, repo, username, &github.RepositoryAddCollaboratorOptions{Permission: "push"}); err != nil {
		return fmt.Errorf("invite %s to %s/%s: %w", username, owner, repo, classifyGitHubError(err))
	}
	return nil
}

func (c *restClient) CheckOrgMembership(ctx context.Context, org, username string) (bool, error) {
	_, resp, err := c.client.Organizations.GetOrgMembership(ctx, username, org)
	if err != nil {
		if isNotFound(resp, err) {
			return false, nil
		}
		return false, classifyGitHubError(err)
	}
	return true, nil
}

func (c *restClient) DownloadPatch(ctx context.Context, patchURL string) ([]byte, error) {
	if patchURL == "" {
		return nil, fmt.Errorf("patch url is empty")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, patchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build patch request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3.patch")

	resp, err := c.patches.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download patch %s: %w", patchURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("download patch %s: unexpected status %s", patchURL, resp.Status)
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", err, ErrNotFound)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPatchSize+1))
	if err != nil {
		return nil, fmt.Errorf("read patch %s: %w", patchURL, err)
	}
	if int64(len(data)) > maxPatchSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrPatchTooLarge, patchURL, maxPatchSize)
	}
	return data, nil
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) {
		if githubErr.Response != nil && githubErr.Response.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}

func isAlreadyExists(err error) bool {
	var githubErr *github.ErrorResponse
	if !errors.As(err, &githubErr) || githubErr.Response == nil {
		return false
	}
	if githubErr.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range githubErr.Errors {
		if e.Code == "already_exists" {
			return true
		}
	}
	return false
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return &retryableError{err: err}
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
