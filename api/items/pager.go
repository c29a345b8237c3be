package items

import (
	"context"
	"errors"
	"io"

	"github.com/dataloop-tools/dataloop-go/api/filters"
)

// Pager walks the pages of a filtered item query in server order.
type Pager struct {
	api       *API
	datasetID string
	filters   *filters.Filters
	next      int
	done      bool
}

// Next fetches the next page. It returns io.EOF once all pages were read.
func (p *Pager) Next(ctx context.Context) (*Page, error) {
	if p.done {
		return nil, io.EOF
	}

	page, err := p.api.Query(ctx, p.datasetID, p.filters, p.next)
	if err != nil {
		return nil, err
	}
	p.next++

	if !page.HasNextPage {
		p.done = true
	}
	if len(page.Items) == 0 && page.Number > 0 {
		p.done = true
		return nil, io.EOF
	}
	return page, nil
}

// ForEach calls fn for every matching item across all pages.
func (p *Pager) ForEach(ctx context.Context, fn func(Item) error) error {
	for {
		page, err := p.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
	}
}

// All collects every matching item.
func (p *Pager) All(ctx context.Context) ([]Item, error) {
	var all []Item
	err := p.ForEach(ctx, func(item Item) error {
		all = append(all, item)
		return nil
	})
	return all, err
}
