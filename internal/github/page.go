package gh

import (
	"context"
	"fmt"
)

// Page is one chunk of a paged remote collection. NextPage is zero when no
// further page exists.
type Page[T any] struct {
	Items    []T
	NextPage int
}

// Pageable produces any page of a remote collection on demand.
type Pageable[T any] interface {
	ListPage(ctx context.Context, page int) (Page[T], error)
}

// PageFunc adapts a function to Pageable.
type PageFunc[T any] func(ctx context.Context, page int) (Page[T], error)

func (f PageFunc[T]) ListPage(ctx context.Context, page int) (Page[T], error) {
	return f(ctx, page)
}

// ListAll drains p starting at page 0 and returns every item in page order.
// The first page error fails the whole listing and no items are returned.
func ListAll[T any](ctx context.Context, p Pageable[T]) ([]T, error) {
	var items []T
	page := 0
	for {
		result, err := p.ListPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}
		items = append(items, result.Items...)

		// A cursor that does not move forward would never terminate.
		if result.NextPage <= page {
			return items, nil
		}
		page = result.NextPage
	}
}
