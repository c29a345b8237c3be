package annotations

import (
	"encoding/json"
	"fmt"
)

// Builder accumulates annotations for one item so they can be uploaded in a
// single call.
type Builder struct {
	itemID      string
	definitions []Definition
}

// NewBuilder returns an empty builder for an item.
func NewBuilder(itemID string) *Builder {
	return &Builder{itemID: itemID}
}

// ItemID returns the item the builder belongs to.
func (b *Builder) ItemID() string {
	return b.itemID
}

// Add appends an annotation definition.
func (b *Builder) Add(def Definition) *Builder {
	b.definitions = append(b.definitions, def)
	return b
}

// Len returns the number of accumulated annotations.
func (b *Builder) Len() int {
	return len(b.definitions)
}

// Definitions returns the accumulated definitions in insertion order.
func (b *Builder) Definitions() []Definition {
	return append([]Definition(nil), b.definitions...)
}

// Annotations renders the accumulated definitions to their wire form.
func (b *Builder) Annotations() ([]Annotation, error) {
	out := make([]Annotation, 0, len(b.definitions))
	for i, def := range b.definitions {
		if def.LabelName() == "" {
			return nil, fmt.Errorf("annotation %d: label is required", i)
		}
		a := Annotation{
			ItemID: b.itemID,
			Type:   def.Type(),
			Label:  def.LabelName(),
		}
		if coords := def.Coordinates(); coords != nil {
			raw, err := json.Marshal(coords)
			if err != nil {
				return nil, fmt.Errorf("annotation %d: %w", i, err)
			}
			a.Coordinates = raw
		}
		out = append(out, a)
	}
	return out, nil
}
