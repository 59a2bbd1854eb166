package reconcile

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"geo-refresh/core/dataset"
	"geo-refresh/core/utils"
)

// column maps a changeset field to the name read from a dataset. from is empty
// when the dataset lacks the field; the value is then always nil.
type column struct {
	name string
	from string
}

// snapshot is an isolated copy of a dataset projected to the comparison
// columns, indexed by identifier.
type snapshot struct {
	rows  []dataset.Record
	index map[string][]int
}

func takeSnapshot(ctx context.Context, ds dataset.Dataset, cols []column, idField string) (*snapshot, error) {
	read := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.from != "" {
			read = append(read, c.from)
		}
	}

	s := &snapshot{index: make(map[string][]int)}
	err := ds.Scan(ctx, read, func(rec dataset.Record) error {
		row := make(dataset.Record, len(cols))
		for _, c := range cols {
			if c.from == "" {
				row[c.name] = nil
				continue
			}
			row[c.name] = rec[c.from]
		}
		key := idKey(row[idField])
		s.index[key] = append(s.index[key], len(s.rows))
		s.rows = append(s.rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", ds.Path(), err)
	}
	return s, nil
}

// lookup returns the rows whose identifier equals id.
func (s *snapshot) lookup(id any) []dataset.Record {
	idx := s.index[idKey(id)]
	out := make([]dataset.Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.rows[i])
	}
	return out
}

func (s *snapshot) release() {
	s.rows = nil
	s.index = nil
}

// idKey normalizes an identifier so that equal values of compatible types share
// a key. Strings never match numbers. Blank values share the empty key.
func idKey(v any) string {
	if utils.IsBlank(v) {
		return ""
	}
	switch x := v.(type) {
	case string:
		return "s:" + x
	case []byte:
		return "s:" + string(x)
	case float32:
		return floatKey(float64(x))
	case float64:
		return floatKey(x)
	}
	if i, ok := utils.ToInt64(v); ok {
		return "n:" + strconv.FormatInt(i, 10)
	}
	return "s:" + utils.ToString(v)
}

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "n:" + strconv.FormatInt(int64(f), 10)
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}
