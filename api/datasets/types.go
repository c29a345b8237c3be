// Package datasets provides operations for managing platform datasets and
// their label taxonomy.
package datasets

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// API provides methods for interacting with datasets.
type API struct {
	client *https.Client
}

// Dataset represents a dataset resource from the platform API.
type Dataset struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ProjectID  string  `json:"projectId,omitempty"`
	ItemsCount int     `json:"itemsCount,omitempty"`
	CreatedAt  string  `json:"createdAt,omitempty"`
	Labels     []Label `json:"labels,omitempty"`
}

// Color is an RGB color. It is sent over the wire as "#rrggbb".
type Color [3]uint8

// String returns the "#rrggbb" form.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// MarshalJSON implements json.Marshaler.
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return fmt.Errorf("invalid color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fmt.Errorf("invalid color %q: %w", s, err)
	}
	*c = Color{r, g, b}
	return nil
}

// Label is one entry of a dataset's label taxonomy.
type Label struct {
	Tag   string `json:"tag"`
	Color Color  `json:"color"`
}

// CreateParams contains parameters for creating a dataset.
type CreateParams struct {
	ProjectID string `json:"-"`
	Name      string `json:"name"`
}

// ListParams contains parameters for listing datasets in a project.
type ListParams struct {
	// Name filters datasets by exact name.
	Name string
}
