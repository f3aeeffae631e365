package frame

import (
	"slices"
)

// Trim returns the rows of f whose time lies in r, i.e. after r.From and not
// after r.To. With lastObservation the sample immediately before the window is
// kept as well, so a step line can be drawn from the left edge.
//
// The time field must be monotonic. Frames sorted descending (first timestamp
// greater than the last) are handled and keep their order. A frame without a
// "time" field of time type is returned as is; a frame without fields comes
// back empty.
//
// f is never modified.
func Trim(f *Frame, r TimeRange, lastObservation bool) *Frame {
	if f == nil {
		return nil
	}
	if len(f.Fields) == 0 {
		return f.withFields([]*Field{})
	}

	timeField := f.Field(TimeFieldName)
	if timeField == nil || timeField.Type != FieldTypeTime {
		return f
	}

	times := timeMillis(timeField)
	from, to := r.From.UnixMilli(), r.To.UnixMilli()

	if isDescending(times) {
		return trimDescending(f, times, from, to, lastObservation)
	}

	start, end := window(times, from, to, lastObservation)
	fields := make([]*Field, len(f.Fields))
	for i, field := range f.Fields {
		fields[i] = field.withValues(sliceValues(field.Values, start, end))
	}
	return f.withFields(fields)
}

// TrimAll applies Trim to every frame of a set.
func TrimAll(frames []*Frame, r TimeRange, lastObservation bool) []*Frame {
	if frames == nil {
		return nil
	}
	out := make([]*Frame, 0, len(frames))
	for _, f := range frames {
		if f == nil {
			continue
		}
		out = append(out, Trim(f, r, lastObservation))
	}
	return out
}

// trimDescending applies the ascending window rule to a reversed copy of the
// frame and reverses each sliced field back.
func trimDescending(f *Frame, times []int64, from, to int64, lastObservation bool) *Frame {
	asc := slices.Clone(times)
	slices.Reverse(asc)
	start, end := window(asc, from, to, lastObservation)

	fields := make([]*Field, len(f.Fields))
	for i, field := range f.Fields {
		values := slices.Clone(field.Values)
		slices.Reverse(values)
		values = sliceValues(values, start, end)
		slices.Reverse(values)
		fields[i] = field.withValues(values)
	}
	return f.withFields(fields)
}

// window returns the [start, end) row bounds of (from, to] over ascending times.
func window(times []int64, from, to int64, lastObservation bool) (int, int) {
	start := firstAfter(times, from)
	if lastObservation && start > 0 {
		start--
	}
	end := firstAfter(times, to)
	if end < start {
		end = start
	}
	return start, end
}

// firstAfter returns the index of the first time strictly greater than bound,
// or len(times) when there is none.
func firstAfter(times []int64, bound int64) int {
	for i, t := range times {
		if t > bound {
			return i
		}
	}
	return len(times)
}

func isDescending(times []int64) bool {
	return len(times) > 1 && times[0] > times[len(times)-1]
}

// sliceValues copies values[start:end], tolerating fields shorter than the
// time field.
func sliceValues(values []any, start, end int) []any {
	if start > len(values) {
		start = len(values)
	}
	if end > len(values) {
		end = len(values)
	}
	return append(make([]any, 0, end-start), values[start:end]...)
}
