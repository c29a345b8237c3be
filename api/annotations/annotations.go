package annotations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// New creates a new annotations API client.
func New(client *https.Client) *API {
	return &API{client: client}
}

// Upload sends every annotation of b to its item in one call and returns
// the stored annotations. An empty builder still performs the call.
func (a *API) Upload(ctx context.Context, b *Builder) ([]Annotation, error) {
	if b == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if b.ItemID() == "" {
		return nil, fmt.Errorf("item ID is required")
	}

	payload, err := b.Annotations()
	if err != nil {
		return nil, err
	}

	resp, err := a.client.POST(ctx, "/items/"+url.PathEscape(b.ItemID())+"/annotations", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result []Annotation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return result, nil
}

// List returns all annotations of an item.
func (a *API) List(ctx context.Context, itemID string) (*Collection, error) {
	if itemID == "" {
		return nil, fmt.Errorf("item ID is required")
	}

	resp, err := a.client.GET(ctx, "/items/"+url.PathEscape(itemID)+"/annotations", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result []Annotation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &Collection{ItemID: itemID, Annotations: result}, nil
}
