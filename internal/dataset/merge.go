package dataset

import (
	"strconv"
)

// joinKey normalizes a key cell so that "100654" and "100654.0" match.
func joinKey(v Value) (string, bool) {
	if v.IsMissing() {
		return "", false
	}
	if i, ok := v.Int(); ok {
		return strconv.FormatInt(i, 10), true
	}
	return v.String(), true
}

// LeftMerge joins every row of `left` with the first row of `right` whose
// `rightKey` equals the row's `leftKey`. Right columns are renamed by
// `rename`, which is used to prefix or suffix colliding names. Rows of
// `left` without a match keep their values and get missing right columns.
func LeftMerge(left, right *Table, leftKey, rightKey string, rename func(column string) string) *Table {
	index := make(map[string]Record, len(right.Rows))
	for _, r := range right.Rows {
		key, ok := joinKey(r.Get(rightKey))
		if !ok {
			continue
		}
		if _, exists := index[key]; exists {
			continue
		}
		index[key] = r
	}

	columns := append([]string{}, left.Columns...)
	type mapping struct{ from, to string }
	var mapped []mapping
	for _, c := range right.Columns {
		if c == rightKey && rightKey == leftKey {
			continue
		}
		name := rename(c)
		if left.HasColumn(name) {
			continue
		}
		columns = append(columns, name)
		mapped = append(mapped, mapping{from: c, to: name})
	}

	rows := make([]Record, len(left.Rows))
	for i, l := range left.Rows {
		out := make(Record, len(columns))
		for k, v := range l {
			out[k] = v
		}
		key, ok := joinKey(l.Get(leftKey))
		match := index[key]
		for _, m := range mapped {
			if ok && match != nil {
				out[m.to] = match.Get(m.from)
			} else {
				out[m.to] = Missing()
			}
		}
		rows[i] = out
	}

	return &Table{Columns: columns, Rows: rows}
}

// Prefix returns a rename func that prepends `prefix` to every column.
func Prefix(prefix string) func(string) string {
	return func(column string) string {
		return prefix + column
	}
}

// SuffixCollisions returns a rename func that appends `suffix` to the
// columns already present in `existing`.
func SuffixCollisions(existing *Table, suffix string) func(string) string {
	return func(column string) string {
		if existing.HasColumn(column) {
			return column + suffix
		}
		return column
	}
}
