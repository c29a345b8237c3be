// Package projects provides operations for looking up platform projects.
package projects

// Project represents a project on the platform.
type Project struct {
	// ID is the unique identifier for the project.
	ID string `json:"id"`

	// Name is the human-readable name of the project.
	Name string `json:"name"`

	// Org is the organization that owns the project.
	Org string `json:"org,omitempty"`

	// CreatedAt is the creation timestamp as returned by the server.
	CreatedAt string `json:"createdAt,omitempty"`
}

// ListParams contains parameters for listing projects.
type ListParams struct {
	// Name filters projects by exact name.
	Name string
}
