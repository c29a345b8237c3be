// Package annotations provides annotation definitions, a per-item builder
// and the upload/list operations.
package annotations

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dataloop-tools/dataloop-go/internal/https"
)

// API provides methods for interacting with annotations.
type API struct {
	client *https.Client
}

// Annotation types.
const (
	TypeClassification = "class"
	TypePoint          = "point"
)

// Annotation is a labeled shape attached to one item.
type Annotation struct {
	ID          string          `json:"id,omitempty"`
	ItemID      string          `json:"itemId,omitempty"`
	DatasetID   string          `json:"datasetId,omitempty"`
	Type        string          `json:"type"`
	Label       string          `json:"label"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

// PointCoordinates is the coordinate payload of a point annotation.
type PointCoordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point decodes the coordinates of a point annotation.
func (a *Annotation) Point() (PointCoordinates, error) {
	var pc PointCoordinates
	if a.Type != TypePoint {
		return pc, fmt.Errorf("annotation %s is a %q, not a point", a.ID, a.Type)
	}
	if err := json.Unmarshal(a.Coordinates, &pc); err != nil {
		return pc, fmt.Errorf("invalid point coordinates: %w", err)
	}
	return pc, nil
}

// String describes the annotation on one line.
func (a Annotation) String() string {
	switch a.Type {
	case TypePoint:
		if pc, err := a.Point(); err == nil {
			return fmt.Sprintf("Annotation(id=%s, type=point, label=%s, x=%g, y=%g)", a.ID, a.Label, pc.X, pc.Y)
		}
	}
	return fmt.Sprintf("Annotation(id=%s, type=%s, label=%s)", a.ID, a.Type, a.Label)
}

// Collection is the list of annotations of one item.
type Collection struct {
	ItemID      string
	Annotations []Annotation
}

// String renders the collection with one annotation per line.
func (c Collection) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "AnnotationCollection(item=%s, count=%d)", c.ItemID, len(c.Annotations))
	for _, a := range c.Annotations {
		b.WriteString("\n  ")
		b.WriteString(a.String())
	}
	return b.String()
}

// Definition is an annotation shape that a Builder can hold.
type Definition interface {
	Type() string
	LabelName() string
	Coordinates() any
}

// Classification labels the whole item.
type Classification struct {
	Label string
}

func (c Classification) Type() string      { return TypeClassification }
func (c Classification) LabelName() string { return c.Label }
func (c Classification) Coordinates() any  { return nil }

// Point is a single keypoint in pixel coordinates.
type Point struct {
	X, Y  float64
	Label string
}

func (p Point) Type() string      { return TypePoint }
func (p Point) LabelName() string { return p.Label }
func (p Point) Coordinates() any  { return PointCoordinates{X: p.X, Y: p.Y} }
