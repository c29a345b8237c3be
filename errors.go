package dataloop

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// ErrNotFound matches lookup errors of kind NotFound.
var ErrNotFound = errors.New("not found")

// LookupKind classifies why a name lookup failed.
type LookupKind int

const (
	// NotFound means the server answered and the resource does not exist.
	NotFound LookupKind = iota + 1
	// Unauthorized means the session was rejected. Retrying will not help.
	Unauthorized
	// Unavailable covers network failures and server errors. Retrying may help.
	Unavailable
)

func (k LookupKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Unauthorized:
		return "unauthorized"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LookupError is returned when a project or dataset cannot be resolved by name.
type LookupError struct {
	Resource string
	Name     string
	Kind     LookupKind
	Err      error
}

func (e *LookupError) Error() string {
	if e.Kind == NotFound {
		return fmt.Sprintf("%s '%s' not found", e.Resource, e.Name)
	}
	return fmt.Sprintf("%s '%s' lookup failed (%s): %v", e.Resource, e.Name, e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match NotFound lookups only.
func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound && e.Kind == NotFound
}

// Temporary reports whether retrying the lookup may succeed.
func (e *LookupError) Temporary() bool {
	return e.Kind == Unavailable
}

func lookupError(resource, name string, err error) *LookupError {
	kind := Unavailable
	switch code := https.StatusCode(err); {
	case https.IsNotFound(err):
		kind = NotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = Unauthorized
	}
	return &LookupError{Resource: resource, Name: name, Kind: kind, Err: err}
}
