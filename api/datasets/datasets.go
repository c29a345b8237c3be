package datasets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// New creates a new datasets API client.
func New(client *https.Client) *API {
	return &API{client: client}
}

// Create creates a new dataset inside a project.
func (a *API) Create(ctx context.Context, params CreateParams) (*Dataset, error) {
	if params.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("dataset name is required")
	}

	resp, err := a.client.POST(ctx, "/projects/"+url.PathEscape(params.ProjectID)+"/datasets", params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result Dataset
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

// Get retrieves a dataset by ID.
func (a *API) Get(ctx context.Context, datasetID string) (*Dataset, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset ID is required")
	}

	resp, err := a.client.GET(ctx, "/datasets/"+url.PathEscape(datasetID), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result Dataset
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

// List returns the datasets of a project.
func (a *API) List(ctx context.Context, projectID string, params ListParams) ([]Dataset, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	queryParams := url.Values{}
	if params.Name != "" {
		queryParams.Set("name", params.Name)
	}

	resp, err := a.client.GET(ctx, "/projects/"+url.PathEscape(projectID)+"/datasets", queryParams)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result []Dataset
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return result, nil
}

// GetByName retrieves a dataset of a project by exact name. It returns an
// error matching https.ErrNotFound when there is none.
func (a *API) GetByName(ctx context.Context, projectID, name string) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("dataset name is required")
	}

	found, err := a.List(ctx, projectID, ListParams{Name: name})
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].Name == name {
			return &found[i], nil
		}
	}
	return nil, fmt.Errorf("dataset %q: %w", name, https.ErrNotFound)
}

// AddLabels registers labels on a dataset and returns the dataset's labels
// as stored by the server.
func (a *API) AddLabels(ctx context.Context, datasetID string, labels []Label) ([]Label, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset ID is required")
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one label is required")
	}
	for _, l := range labels {
		if l.Tag == "" {
			return nil, fmt.Errorf("label tag is required")
		}
	}

	resp, err := a.client.POST(ctx, "/datasets/"+url.PathEscape(datasetID)+"/labels", labels)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result []Label
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return result, nil
}

// Delete deletes a dataset.
func (a *API) Delete(ctx context.Context, datasetID string) error {
	if datasetID == "" {
		return fmt.Errorf("dataset ID is required")
	}

	resp, err := a.client.DELETE(ctx, "/datasets/"+url.PathEscape(datasetID))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return nil
}
