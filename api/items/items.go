package items

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/dataloop-tools/dataloop-go/api/filters"
	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// New creates a new items API client.
func New(client *https.Client) *API {
	return &API{client: client}
}

// Get retrieves an item by ID.
func (a *API) Get(ctx context.Context, itemID string) (*Item, error) {
	if itemID == "" {
		return nil, fmt.Errorf("item ID is required")
	}

	resp, err := a.client.GET(ctx, "/items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result Item
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

// Upload uploads a single file read from r into a dataset.
func (a *API) Upload(ctx context.Context, datasetID string, r io.Reader, params UploadParams) (*Item, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset ID is required")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	remote := params.RemotePath
	if remote == "" {
		remote = "/"
	}

	resp, err := a.client.Multipart(ctx, "/datasets/"+url.PathEscape(datasetID)+"/items",
		map[string]string{"path": remote}, "file", params.Name, r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result Item
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}

// UploadDirectory uploads every regular file under localPath, in lexical
// order, and returns the created items. It stops at the first failure and
// returns the items uploaded so far together with the error.
func (a *API) UploadDirectory(ctx context.Context, datasetID, localPath string, opts UploadDirectoryOptions) ([]Item, error) {
	if localPath == "" {
		return nil, fmt.Errorf("local path is required")
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("upload source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("upload source %s is not a directory", localPath)
	}
	root := opts.RemotePath
	if root == "" {
		root = "/"
	}

	var uploaded []Item
	err = filepath.WalkDir(localPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != localPath && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(localPath, filepath.Dir(p))
		if err != nil {
			return err
		}
		remote := path.Join(root, filepath.ToSlash(rel))

		item, err := a.uploadFile(ctx, datasetID, p, UploadParams{RemotePath: remote, Name: d.Name()})
		if err != nil {
			return fmt.Errorf("upload %s: %w", p, err)
		}
		uploaded = append(uploaded, *item)
		return nil
	})
	return uploaded, err
}

func (a *API) uploadFile(ctx context.Context, datasetID, localFile string, params UploadParams) (*Item, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return a.Upload(ctx, datasetID, f, params)
}

// Query fetches one page of items matching f.
func (a *API) Query(ctx context.Context, datasetID string, f *filters.Filters, page int) (*Page, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset ID is required")
	}
	if f == nil {
		f = filters.New()
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	resp, err := a.client.POST(ctx, "/datasets/"+url.PathEscape(datasetID)+"/query", f.Prepare(page))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result Page
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	result.Number = page

	return &result, nil
}

// List returns a pager over all items matching f. Nothing is fetched until
// the first call to Next.
//
// Example:
//
//	pager := client.Items().List(datasetID, f)
//	for {
//	    page, err := pager.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
func (a *API) List(datasetID string, f *filters.Filters) *Pager {
	return &Pager{api: a, datasetID: datasetID, filters: f}
}

// Update applies values to every item matching f with one bulk call, e.g.
// {"user": {"UTM": "..."}} merges into each item's metadata.
func (a *API) Update(ctx context.Context, datasetID string, f *filters.Filters, values map[string]any) (*BulkUpdateResult, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset ID is required")
	}
	if f == nil {
		return nil, fmt.Errorf("filters are required for a bulk update")
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("update values are required")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	body := bulkUpdateRequest{Query: f.Prepare(0), UpdateValues: values}
	resp, err := a.client.POST(ctx, "/datasets/"+url.PathEscape(datasetID)+"/items/bulk-update", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result BulkUpdateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	return &result, nil
}
