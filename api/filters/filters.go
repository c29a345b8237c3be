// Package filters builds server-side item queries.
//
// A Filters value is a list of (field, operator, values) conditions over a
// resource, optionally joined to a second resource. Conditions are combined
// with a logical AND.
//
//	f := filters.New()
//	f.Add(filters.FieldID, filters.OpIn, []string{"a", "b"})
//	f.AddJoin(filters.FieldLabel, "class1", filters.OpEqual)
package filters

import (
	"encoding/json"
	"fmt"
)

// Operator is a query comparison operator.
type Operator string

// Supported operators.
const (
	OpEqual       Operator = "eq"
	OpNotEqual    Operator = "ne"
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpIn          Operator = "in"
	OpNotIn       Operator = "nin"
	OpExists      Operator = "exists"
	OpGlob        Operator = "glob"
)

// Resource names a queryable collection.
type Resource string

// Known resources.
const (
	ResourceItems       Resource = "items"
	ResourceAnnotations Resource = "annotations"
)

// Well-known fields.
const (
	FieldID        = "id"
	FieldFilename  = "filename"
	FieldDir       = "dir"
	FieldType      = "type"
	FieldHidden    = "hidden"
	FieldAnnotated = "annotated"
	FieldLabel     = "label"
	FieldItemID    = "itemId"
)

// Annotation types usable as join values on FieldType.
const (
	AnnotationTypeClass = "class"
	AnnotationTypePoint = "point"
)

// DefaultPageSize is the page size used when none is set.
const DefaultPageSize = 1000

// Condition is a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Values   any
}

// Filters is a query over a resource with an optional join.
type Filters struct {
	Resource Resource
	PageSize int

	conditions []Condition
	join       []Condition
}

// New returns an item filter that, like the platform default, only matches
// visible files.
func New() *Filters {
	f := &Filters{Resource: ResourceItems, PageSize: DefaultPageSize}
	f.Add(FieldHidden, OpEqual, false)
	f.Add(FieldType, OpEqual, "file")
	return f
}

// Add appends a condition on the filtered resource.
func (f *Filters) Add(field string, op Operator, values any) *Filters {
	f.conditions = append(f.conditions, Condition{Field: field, Operator: op, Values: values})
	return f
}

// AddJoin appends a condition on the joined annotations. An item matches
// when at least one of its annotations satisfies all join conditions.
func (f *Filters) AddJoin(field string, values any, op Operator) *Filters {
	if op == "" {
		op = OpEqual
	}
	f.join = append(f.join, Condition{Field: field, Operator: op, Values: values})
	return f
}

// Conditions returns the resource conditions.
func (f *Filters) Conditions() []Condition {
	return append([]Condition(nil), f.conditions...)
}

// JoinConditions returns the join conditions.
func (f *Filters) JoinConditions() []Condition {
	return append([]Condition(nil), f.join...)
}

// HasJoin reports whether the filter joins annotations.
func (f *Filters) HasJoin() bool {
	return len(f.join) > 0
}

// Validate checks that every condition uses a known operator.
func (f *Filters) Validate() error {
	for _, c := range append(f.Conditions(), f.join...) {
		if c.Field == "" {
			return fmt.Errorf("filter field is required")
		}
		switch c.Operator {
		case OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpExists, OpGlob:
		case OpIn, OpNotIn:
			if c.Values == nil {
				return fmt.Errorf("operator %q on %q requires a list of values", c.Operator, c.Field)
			}
		default:
			return fmt.Errorf("unknown filter operator %q", c.Operator)
		}
	}
	return nil
}

// Query is the wire form of a filter.
type Query struct {
	Resource Resource       `json:"resource"`
	Filter   map[string]any `json:"filter"`
	Join     *Join          `json:"join,omitempty"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// Join is the wire form of a join clause.
type Join struct {
	On     JoinOn         `json:"on"`
	Filter map[string]any `json:"filter"`
}

// JoinOn describes the join keys.
type JoinOn struct {
	Resource Resource `json:"resource"`
	Local    string   `json:"local"`
	Forigen  string   `json:"forigen"`
}

// Prepare renders the query for the given page.
func (f *Filters) Prepare(page int) Query {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := Query{
		Resource: f.Resource,
		Filter:   render(f.conditions),
		Page:     page,
		PageSize: pageSize,
	}
	if f.HasJoin() {
		q.Join = &Join{
			On: JoinOn{
				Resource: ResourceAnnotations,
				Local:    FieldItemID,
				Forigen:  FieldID,
			},
			Filter: render(f.join),
		}
	}
	return q
}

// MarshalJSON renders the first page of the query.
func (f *Filters) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Prepare(0))
}

func render(conds []Condition) map[string]any {
	and := make([]any, 0, len(conds))
	for _, c := range conds {
		var v any
		if c.Operator == OpEqual {
			v = c.Values
		} else {
			v = map[string]any{"$" + string(c.Operator): c.Values}
		}
		and = append(and, map[string]any{c.Field: v})
	}
	return map[string]any{"$and": and}
}
