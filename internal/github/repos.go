package gh

import "context"

// ListReposRequest describes one page of a user's repositories. Only Page
// changes while a listing is drained.
type ListReposRequest struct {
	Username  string `json:"username"`
	Type      string `json:"type,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Direction string `json:"direction,omitempty"`
	PerPage   int    `json:"per_page,omitempty"`
	Page      int    `json:"page,omitempty"`
}

// WithPage returns a copy of r for the given page.
func (r ListReposRequest) WithPage(page int) ListReposRequest {
	r.Page = page
	return r
}

// RepositoryLister pages through the repositories of Request.Username.
type RepositoryLister struct {
	Client  Client
	Request ListReposRequest
}

func (l RepositoryLister) ListPage(ctx context.Context, page int) (Page[Repository], error) {
	return l.Client.ListRepositoriesForUser(ctx, l.Request.WithPage(page))
}
