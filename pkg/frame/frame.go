// Package frame defines the columnar time-series frame model returned by the
// backend, together with the pure functions used to combine and bound frames:
// Merge extends one frame set with the next page, Trim slices a frame to a
// time window.
package frame

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// FieldType tags the kind of values a field holds.
type FieldType string

const (
	// FieldTypeTime holds timestamps (epoch milliseconds or time.Time).
	FieldTypeTime FieldType = "time"

	// FieldTypeNumber holds numeric samples.
	FieldTypeNumber FieldType = "number"

	// FieldTypeString holds string samples.
	FieldTypeString FieldType = "string"

	// FieldTypeOther holds anything else (quality flags, booleans, ...).
	FieldTypeOther FieldType = "other"
)

// TimeFieldName is the name of the field Trim bounds a frame by.
const TimeFieldName = "time"

// Field is one column of a frame.
type Field struct {
	// Name identifies the field within its frame; merge pairs fields by name.
	Name string `json:"name"`

	// Type tags the values.
	Type FieldType `json:"type"`

	// Config is display metadata, carried but never interpreted.
	Config map[string]any `json:"config,omitempty"`

	// Values are index-aligned with every other field of the same frame.
	Values []any `json:"values"`
}

// Len returns the number of values in the field.
func (f *Field) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Values)
}

// Clone returns a copy of the field with its own value slice.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	out := *f
	out.Values = append(make([]any, 0, len(f.Values)), f.Values...)
	return &out
}

// withValues returns a copy of the field's metadata carrying the given values.
func (f *Field) withValues(values []any) *Field {
	out := *f
	out.Values = values
	return &out
}

// CustomMeta is the backend-specific part of frame metadata. A non-empty
// NextToken signals that more pages are available for the frame's target.
type CustomMeta struct {
	NextToken string `json:"nextToken,omitempty"`
	EntryID   string `json:"entryId,omitempty"`
}

// Meta is frame level metadata.
type Meta struct {
	Custom *CustomMeta `json:"custom,omitempty"`
}

// Frame is a named columnar table representing one logical series.
type Frame struct {
	// Name is an optional display label.
	Name string `json:"name,omitempty"`

	// RefID identifies the target that produced the frame.
	RefID string `json:"refId"`

	Fields []*Field `json:"fields"`

	Meta *Meta `json:"meta,omitempty"`
}

// Len returns the row count of the frame.
func (f *Frame) Len() int {
	if f == nil || len(f.Fields) == 0 {
		return 0
	}
	return f.Fields[0].Len()
}

// Key identifies a frame across pages.
type Key struct {
	Name  string
	RefID string
}

// String renders the key for log and error messages.
func (k Key) String() string {
	if k.Name == "" {
		return k.RefID
	}
	return k.Name + "/" + k.RefID
}

// Key returns the identity used to pair frames across pages.
func (f *Frame) Key() Key {
	return Key{Name: f.Name, RefID: f.RefID}
}

// Field returns the field with the given name, or nil.
func (f *Frame) Field(name string) *Field {
	for _, field := range f.Fields {
		if field != nil && field.Name == name {
			return field
		}
	}
	return nil
}

// NextToken returns the continuation cursor and entry id carried in the
// frame's custom metadata.
func (f *Frame) NextToken() (token, entryID string) {
	if f == nil || f.Meta == nil || f.Meta.Custom == nil {
		return "", ""
	}
	return f.Meta.Custom.NextToken, f.Meta.Custom.EntryID
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := *f
	out.Fields = make([]*Field, len(f.Fields))
	for i, field := range f.Fields {
		out.Fields[i] = field.Clone()
	}
	if f.Meta != nil {
		meta := *f.Meta
		if f.Meta.Custom != nil {
			custom := *f.Meta.Custom
			meta.Custom = &custom
		}
		out.Meta = &meta
	}
	return &out
}

// withFields returns a shallow copy of the frame carrying the given fields.
func (f *Frame) withFields(fields []*Field) *Frame {
	out := *f
	out.Fields = fields
	return &out
}

// Validate checks that every field holds exactly Len() values.
func (f *Frame) Validate() error {
	var err error
	n := f.Len()
	for i, field := range f.Fields {
		if field == nil {
			err = multierr.Append(err, fmt.Errorf("frame %q: field %d is nil", f.Key(), i))
			continue
		}
		if field.Len() != n {
			err = multierr.Append(err, fmt.Errorf("frame %q: field %q has %d values, want %d",
				f.Key(), field.Name, field.Len(), n))
		}
	}
	return err
}

// TimeRange bounds a query or a trim. From is exclusive and To inclusive.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t lies inside (From, To].
func (r TimeRange) Contains(t time.Time) bool {
	return t.After(r.From) && !t.After(r.To)
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// String renders the range for logs.
func (r TimeRange) String() string {
	return fmt.Sprintf("(%s, %s]", r.From.UTC().Format(time.RFC3339Nano), r.To.UTC().Format(time.RFC3339Nano))
}
