package dataset

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	require.True(t, Of("").IsMissing())
	require.True(t, Of("   ").IsMissing())
	require.True(t, Missing().IsMissing())
	require.True(t, Value{}.IsMissing())
	require.False(t, Of("0").IsMissing())

	i, ok := Of("100654.0").Int()
	require.True(t, ok)
	require.Equal(t, int64(100654), i)

	_, ok = Of("0.5").Int()
	require.False(t, ok)
	_, ok = Of("n/a").Float()
	require.False(t, ok)
	_, ok = Of("NaN").Float()
	require.False(t, ok)

	f, ok := Of(" 0.2431 ").Float()
	require.True(t, ok)
	require.InDelta(t, 0.2431, f, 1e-9)
}

func TestValueIntRange(t *testing.T) {
	i, ok := Of("9223372036854775807").Int()
	require.True(t, ok)
	require.Equal(t, int64(math.MaxInt64), i)

	// 2^63 as a float does not fit
	_, ok = Of("9223372036854775807.0").Int()
	require.False(t, ok)
	_, ok = Of("1e19").Int()
	require.False(t, ok)
	_, ok = Of("-1e19").Int()
	require.False(t, ok)

	i, ok = Of("-9223372036854775808.0").Int()
	require.True(t, ok)
	require.Equal(t, int64(math.MinInt64), i)
}

func TestFromJSON(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"a": 1234567890123, "b": null, "c": "Boston", "d": 0.75, "e": true, "f": [1,2]}`))
	dec.UseNumber()
	var obj map[string]any
	require.NoError(t, dec.Decode(&obj))

	require.Equal(t, "1234567890123", FromJSON(obj["a"]).String())
	require.True(t, FromJSON(obj["b"]).IsMissing())
	require.Equal(t, "Boston", FromJSON(obj["c"]).String())
	require.Equal(t, "0.75", FromJSON(obj["d"]).String())
	require.Equal(t, "1", FromJSON(obj["e"]).String())
	require.Equal(t, "[1,2]", FromJSON(obj["f"]).String())
	require.Equal(t, "2.5", FromJSON(2.5).String())
}

func TestCSVRoundTrip(t *testing.T) {
	table := NewTable(
		[]string{"id", "school.name", "latest.admissions.admission_rate.overall"},
		[]Record{
			{"id": Of("100654"), "school.name": Of("Alabama A & M University"), "latest.admissions.admission_rate.overall": Of("0.684")},
			{"id": Of("100663"), "school.name": Of("University of Alabama at Birmingham, \"UAB\"")},
		},
	)

	var buff bytes.Buffer
	require.NoError(t, WriteCSV(&buff, table))
	require.Equal(t,
		"id,school.name,latest.admissions.admission_rate.overall\n"+
			"100654,Alabama A & M University,0.684\n"+
			"100663,\"University of Alabama at Birmingham, \"\"UAB\"\"\",\n",
		buff.String(),
	)

	decoded, err := ReadCSV(&buff)
	require.NoError(t, err)
	require.Equal(t, table.Columns, decoded.Columns)
	require.Len(t, decoded.Rows, 2)
	require.True(t, decoded.Rows[1].Get("latest.admissions.admission_rate.overall").IsMissing())
	require.Equal(t, "University of Alabama at Birmingham, \"UAB\"", decoded.Rows[1].Get("school.name").String())

	// columns absent from a record are missing too
	require.True(t, decoded.Rows[0].Get("unknown.column").IsMissing())
}

func TestReadCSVShortRowsAndBOM(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("\xEF\xBB\xBFUNITID,INSTNM,HBCU\n100654,Alabama A & M University,1\n100663\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"UNITID", "INSTNM", "HBCU"}, table.Columns)
	require.Len(t, table.Rows, 2)
	require.True(t, table.Rows[1].Get("HBCU").IsMissing())

	empty, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())
}

func TestNewTableColumnOrder(t *testing.T) {
	table := NewTable([]string{"id", "school.name", "id"}, []Record{
		{"id": Of("1"), "zeta": Of("z"), "alpha": Of("a")},
	})
	require.Equal(t, []string{"id", "school.name", "alpha", "zeta"}, table.Columns)
}

func TestLeftMerge(t *testing.T) {
	left := NewTable([]string{"id", "school.name"}, []Record{
		{"id": Of("100654"), "school.name": Of("Alabama A & M University")},
		{"id": Of("100663.0"), "school.name": Of("University of Alabama at Birmingham")},
		{"id": Of("999999"), "school.name": Of("No Match College")},
		{"school.name": Of("No Key College")},
	})
	right := NewTable([]string{"UNITID", "HBCU"}, []Record{
		{"UNITID": Of("100654"), "HBCU": Of("1")},
		{"UNITID": Of("100663"), "HBCU": Of("2")},
		{"UNITID": Of("100663"), "HBCU": Of("1")},
	})

	merged := LeftMerge(left, right, "id", "UNITID", Prefix("ipeds."))
	require.Equal(t, []string{"id", "school.name", "ipeds.UNITID", "ipeds.HBCU"}, merged.Columns)
	require.Len(t, merged.Rows, 4)

	got := make([]string, len(merged.Rows))
	for i, r := range merged.Rows {
		got[i] = r.Get("ipeds.HBCU").String()
	}
	// first match wins for duplicated right keys
	if diff := cmp.Diff([]string{"1", "2", "", ""}, got); diff != "" {
		t.Fatalf("unexpected merged values (-want +got):\n%s", diff)
	}
	require.True(t, merged.Rows[2].Get("ipeds.UNITID").IsMissing())

	// the inputs are not modified
	require.Len(t, left.Rows[0], 2)
}

func TestLeftMergeSuffixCollisions(t *testing.T) {
	hd := NewTable([]string{"UNITID", "INSTNM", "STABBR"}, []Record{
		{"UNITID": Of("1"), "INSTNM": Of("A"), "STABBR": Of("AL")},
	})
	adm := NewTable([]string{"UNITID", "STABBR", "APPLCN"}, []Record{
		{"UNITID": Of("1"), "STABBR": Of("XX"), "APPLCN": Of("1000")},
	})

	merged := LeftMerge(hd, adm, "UNITID", "UNITID", SuffixCollisions(hd, "_ADM"))
	require.Equal(t, []string{"UNITID", "INSTNM", "STABBR", "STABBR_ADM", "APPLCN"}, merged.Columns)
	require.Equal(t, "AL", merged.Rows[0].Get("STABBR").String())
	require.Equal(t, "XX", merged.Rows[0].Get("STABBR_ADM").String())
	require.Equal(t, "1000", merged.Rows[0].Get("APPLCN").String())
}

func TestCSVFile(t *testing.T) {
	path := t.TempDir() + "/nested/dir/out.csv"
	table := NewTable([]string{"a"}, []Record{{"a": Of("1")}})
	require.NoError(t, WriteCSVFile(path, table))

	decoded, err := ReadCSVFile(path)
	require.NoError(t, err)
	require.Equal(t, "1", decoded.Rows[0].Get("a").String())

	_, err = ReadCSVFile(t.TempDir() + "/missing.csv")
	require.Error(t, err)
}
