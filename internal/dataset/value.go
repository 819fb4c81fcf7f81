package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Value is a single raw cell. The zero Value is missing.
type Value struct {
	raw     string
	present bool
}

// Of wraps a textual cell, an empty (or whitespace only) string is missing.
func Of(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{}
	}
	return Value{raw: s, present: true}
}

func Missing() Value {
	return Value{}
}

// FromJSON converts a value decoded with json.Decoder.UseNumber into a Value,
// json null becomes missing.
func FromJSON(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case string:
		return Of(t)
	case json.Number:
		return Of(t.String())
	case float64:
		return Of(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		if t {
			return Of("1")
		}
		return Of("0")
	default:
		buff, err := json.Marshal(t)
		if err != nil {
			return Of(fmt.Sprint(t))
		}
		return Of(string(buff))
	}
}

func (v Value) IsMissing() bool {
	return !v.present
}

// String returns the raw text of the cell, "" when missing.
func (v Value) String() string {
	return v.raw
}

func (v Value) Float() (float64, bool) {
	if !v.present {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int parses the cell as an integer, accepting integral floats such as
// "100654.0" which appear when a numeric column has been round-tripped
// through a float typed writer.
func (v Value) Int() (int64, bool) {
	if !v.present {
		return 0, false
	}
	s := strings.TrimSpace(v.raw)
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, true
	}
	f, ok := v.Float()
	if !ok || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Record is one raw row keyed by column name (dot-delimited API field paths
// for scorecard data).
type Record map[string]Value

// Get returns the value of `column`, absent columns are missing.
func (r Record) Get(column string) Value {
	return r[column]
}

// Table is an ordered collection of records sharing a column set.
type Table struct {
	Columns []string
	Rows    []Record
}

// NewTable creates a table from records, columns are given in the order they
// should be serialized in, columns present in the rows but not listed are
// appended in sorted order.
func NewTable(columns []string, rows []Record) *Table {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	var extra []string
	for _, r := range rows {
		for c := range r {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			extra = append(extra, c)
		}
	}
	slices.Sort(extra)
	return &Table{Columns: append(out, extra...), Rows: rows}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) HasColumn(column string) bool {
	return slices.Contains(t.Columns, column)
}
