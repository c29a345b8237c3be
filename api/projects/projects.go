package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// API provides operations for platform projects.
type API struct {
	client *https.Client
}

// New creates a new projects API client.
func New(client *https.Client) *API {
	return &API{client: client}
}

// Get retrieves a project by ID.
//
// Example:
//
//	project, err := client.Projects().Get(ctx, "5f4d...")
func (a *API) Get(ctx context.Context, id string) (*Project, error) {
	if id == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	resp, err := a.client.GET(ctx, "/projects/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result Project
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

// List retrieves the projects visible to the current session.
func (a *API) List(ctx context.Context, params ListParams) ([]Project, error) {
	queryParams := url.Values{}
	if params.Name != "" {
		queryParams.Set("name", params.Name)
	}

	resp, err := a.client.GET(ctx, "/projects", queryParams)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result []Project
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return result, nil
}

// GetByName retrieves the project with the given name. It returns an error
// matching https.ErrNotFound when no project has that name.
//
// Example:
//
//	project, err := client.Projects().GetByName(ctx, "DataloopInterview")
func (a *API) GetByName(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	found, err := a.List(ctx, ListParams{Name: name})
	if err != nil {
		return nil, err
	}

	// the server matches names loosely, so check for an exact match
	for i := range found {
		if found[i].Name == name {
			return &found[i], nil
		}
	}
	return nil, fmt.Errorf("project %q: %w", name, https.ErrNotFound)
}
