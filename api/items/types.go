// Package items provides upload, query and bulk-update operations on dataset items.
package items

import (
	"fmt"
	"strings"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// API provides methods for interacting with items.
type API struct {
	client *https.Client
}

// Item is an uploaded file with its metadata.
type Item struct {
	ID        string   `json:"id"`
	DatasetID string   `json:"datasetId,omitempty"`
	Name      string   `json:"name"`
	Filename  string   `json:"filename,omitempty"`
	Dir       string   `json:"dir,omitempty"`
	Type      string   `json:"type,omitempty"`
	Hidden    bool     `json:"hidden"`
	Annotated bool     `json:"annotated"`
	CreatedAt string   `json:"createdAt,omitempty"`
	Metadata  Metadata `json:"metadata"`
}

// Metadata splits platform-owned from user-owned metadata.
type Metadata struct {
	System SystemMetadata `json:"system"`
	User   map[string]any `json:"user,omitempty"`
}

// SystemMetadata is filled by the platform after upload. Width and Height
// are only present for images the platform could decode.
type SystemMetadata struct {
	Mimetype     string `json:"mimetype,omitempty"`
	Size         int64  `json:"size,omitempty"`
	OriginalName string `json:"originalname,omitempty"`
	Width        *int   `json:"width,omitempty"`
	Height       *int   `json:"height,omitempty"`
}

// Dimensions returns the image width and height from system metadata.
func (i *Item) Dimensions() (width, height int, err error) {
	sys := i.Metadata.System
	if sys.Width == nil || sys.Height == nil {
		return 0, 0, fmt.Errorf("item %s has no width/height in system metadata", i.ID)
	}
	if *sys.Width < 0 || *sys.Height < 0 {
		return 0, 0, fmt.Errorf("item %s has negative dimensions %dx%d", i.ID, *sys.Width, *sys.Height)
	}
	return *sys.Width, *sys.Height, nil
}

// String describes the item on one line.
func (i Item) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item(id=%s, name=%s, filename=%s", i.ID, i.Name, i.Filename)
	if w, h, err := i.Dimensions(); err == nil {
		fmt.Fprintf(&b, ", size=%dx%d", w, h)
	}
	fmt.Fprintf(&b, ", annotated=%t", i.Annotated)
	if len(i.Metadata.User) > 0 {
		fmt.Fprintf(&b, ", user=%v", i.Metadata.User)
	}
	b.WriteString(")")
	return b.String()
}

// IDs returns the IDs of items, in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}

// Page is one page of a filtered item query.
type Page struct {
	TotalItemsCount int    `json:"totalItemsCount"`
	TotalPagesCount int    `json:"totalPagesCount"`
	HasNextPage     bool   `json:"hasNextPage"`
	Items           []Item `json:"items"`

	// Number is the zero-based page index. It is set by the client.
	Number int `json:"-"`
}

// UploadParams contains parameters for uploading one file.
type UploadParams struct {
	// RemotePath is the dataset directory to upload into. Defaults to "/".
	RemotePath string

	// Name is the remote file name.
	Name string
}

// UploadDirectoryOptions controls UploadDirectory.
type UploadDirectoryOptions struct {
	// RemotePath is the dataset directory to upload into. Defaults to "/".
	RemotePath string

	// Recursive uploads sub-directories, preserving their relative layout.
	Recursive bool
}

// BulkUpdateResult is the response of a bulk metadata update.
type BulkUpdateResult struct {
	Updated int `json:"updated"`
}

type bulkUpdateRequest struct {
	Query        any            `json:"query"`
	UpdateValues map[string]any `json:"updateValues"`
}
