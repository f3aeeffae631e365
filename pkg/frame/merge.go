package frame

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrSchemaMismatch is returned by Merge when two paired frames do not share
// the same set of field names.
var ErrSchemaMismatch = errors.New("frame schema mismatch")

// Merge returns previous extended by incoming.
//
// Frames are paired by Key. Each field of a paired previous frame is extended
// with the values of the incoming field of the same name; field type and
// config are taken from previous. Frames only in previous are kept as they
// are, frames only in incoming are appended after them in incoming order.
//
// Neither input is modified. A paired frame is rebuilt with fresh value
// slices. Unpaired frames are returned as the input pointers themselves, so
// callers must treat every frame in the result as read-only.
//
// An incoming frame without fields is an empty page and contributes nothing.
// A previous frame without fields takes the schema of its incoming partner.
// Any other pair whose field names differ fails with ErrSchemaMismatch.
func Merge(previous, incoming []*Frame) ([]*Frame, error) {
	if len(incoming) == 0 {
		return previous, nil
	}

	out := make([]*Frame, len(previous), len(previous)+len(incoming))
	copy(out, previous)

	index := make(map[Key]int, len(previous))
	for i, f := range previous {
		if f == nil {
			continue
		}
		if _, dup := index[f.Key()]; !dup {
			index[f.Key()] = i
		}
	}

	for _, in := range incoming {
		if in == nil {
			continue
		}
		i, ok := index[in.Key()]
		if !ok {
			index[in.Key()] = len(out)
			out = append(out, in)
			continue
		}
		merged, err := mergePair(out[i], in)
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}

// mergePair appends the rows of in to prev.
func mergePair(prev, in *Frame) (*Frame, error) {
	if len(in.Fields) == 0 {
		return prev, nil
	}
	if len(prev.Fields) == 0 {
		return prev.withFields(in.Clone().Fields), nil
	}
	if err := checkSchema(prev, in); err != nil {
		return nil, err
	}

	fields := make([]*Field, len(prev.Fields))
	for i, pf := range prev.Fields {
		inf := in.Field(pf.Name)
		values := make([]any, 0, pf.Len()+inf.Len())
		values = append(values, pf.Values...)
		values = append(values, inf.Values...)
		fields[i] = pf.withValues(values)
	}
	return prev.withFields(fields), nil
}

func checkSchema(prev, in *Frame) error {
	var err error
	names := make(map[string]struct{}, len(prev.Fields))
	for _, f := range prev.Fields {
		names[f.Name] = struct{}{}
		if in.Field(f.Name) == nil {
			err = multierr.Append(err, fmt.Errorf("field %q missing from incoming page", f.Name))
		}
	}
	for _, f := range in.Fields {
		if _, ok := names[f.Name]; !ok {
			err = multierr.Append(err, fmt.Errorf("unexpected field %q in incoming page", f.Name))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: frame %q: %v", ErrSchemaMismatch, prev.Key(), err)
	}
	return nil
}
