package validate

import (
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/schools"
	"aplica-pipeline/internal/store"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.November, 2, 8, 30, 15, 0, time.UTC)

func null[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}

func complete(unitid int64, score int) schools.School {
	return schools.School{
		UnitID:            unitid,
		Name:              "College",
		AdmitRate:         null(0.4),
		CostAttendance:    null(int64(25000)),
		DataYear:          schools.DataYear,
		CompletenessScore: score,
		LastUpdated:       now,
	}
}

func setup(t testing.TB, rows ...schools.School) (*store.Store, context.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	s, err := store.OpenMemory(ctx, telemetry.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	if len(rows) > 0 {
		result, err := s.InsertSchools(ctx, rows)
		if err != nil {
			t.Fatal(err)
		}
		if result.Failed > 0 {
			t.Fatalf("%d rows failed to insert", result.Failed)
		}
	}
	return s, ctx
}

func TestEmptyDatabasePasses(t *testing.T) {
	s, ctx := setup(t)

	r, err := Run(ctx, s, "memory", now)
	require.NoError(t, err)
	require.Equal(t, StatusPass, r.Status)
	require.Equal(t, 0, r.Issues)
	require.Equal(t, 0.0, r.Percent(r.Missing.AdmitRate))
	require.False(t, r.Completeness.Avg.Valid)

	var buff bytes.Buffer
	require.NoError(t, WriteReport(&buff, r))
	require.Contains(t, buff.String(), "Average: 0.0\n")
	require.Contains(t, buff.String(), "Range: 0 - 0\n")
}

func TestRun(t *testing.T) {
	var rows []schools.School
	for i := int64(1); i <= 10; i++ {
		rows = append(rows, complete(i, 70))
	}

	s, ctx := setup(t, rows...)
	r, err := Run(ctx, s, "colleges_vtest.db", now)
	require.NoError(t, err)
	require.Equal(t, StatusPass, r.Status)
	require.Equal(t, 10, r.TotalSchools)
	require.Equal(t, []store.Bucket{{Floor: 70, Count: 10}}, r.Histogram)

	// one out of range retention rate, one missing admit rate (under 10%)
	outlier := complete(11, 20)
	outlier.AdmitRate = sql.Null[float64]{}
	outlier.RetentionRate = null(1.4)
	_, err = s.InsertSchools(ctx, []schools.School{outlier})
	require.NoError(t, err)

	r, err = Run(ctx, s, "colleges_vtest.db", now)
	require.NoError(t, err)
	require.Equal(t, StatusWarnings, r.Status)
	require.Equal(t, 1, r.InvalidOutcomeRates)
	require.Equal(t, 1, r.Missing.AdmitRate)
	require.Equal(t, 1, r.Issues)
	require.Equal(t, 1, r.Completeness.Low)

	// two missing costs out of 12 crosses the threshold
	for _, id := range []int64{12, 13} {
		sparse := complete(id, 90)
		sparse.CostAttendance = sql.Null[int64]{}
		_, err = s.InsertSchools(ctx, []schools.School{sparse})
		require.NoError(t, err)
	}
	r, err = Run(ctx, s, "colleges_vtest.db", now)
	require.NoError(t, err)
	require.Equal(t, 2, r.Issues)
	require.Equal(t, 2, r.Completeness.High)
}

type failing struct {
	*store.Store
}

func (failing) OrphanedPrograms(context.Context) (int, error) {
	return 0, errors.New("no such table: programs")
}

func TestRunPropagatesQueryErrors(t *testing.T) {
	s, ctx := setup(t)
	_, err := Run(ctx, failing{s}, "memory", now)
	require.ErrorContains(t, err, "orphaned programs")
}

func TestReport(t *testing.T) {
	r := Result{
		Timestamp:           now,
		Database:            "pipeline/output/colleges_v2024_11.db",
		TotalSchools:        200,
		TotalPrograms:       1500,
		InvalidOutcomeRates: 2,
		Missing:             store.MissingCritical{Total: 200, AdmitRate: 50, Cost: 10},
		Completeness: store.Completeness{
			Avg:  null(41.25),
			Min:  null(5.0),
			Max:  null(55.0),
			Low:  120,
			High: 0,
		},
		Histogram: []store.Bucket{{Floor: 0, Count: 20}, {Floor: 50, Count: 180}},
		Metadata:  map[string]string{"version": "2024_11", "build_id": "abc"},
		Issues:    3,
		Status:    StatusWarnings,
	}

	var buff bytes.Buffer
	require.NoError(t, WriteReport(&buff, r))
	report := buff.String()

	require.True(t, strings.HasPrefix(report, strings.Repeat("=", 60)+"\nAplica Database Validation Report\n"))
	for _, line := range []string{
		"Timestamp: 2024-11-02T08:30:15\n",
		"Database: pipeline/output/colleges_v2024_11.db\n",
		"Total Programs: 1500\n",
		"  Invalid Outcome Rates: 2\n",
		"  Missing Admit Rate: 50 (25.0%)\n",
		"  Average: 41.2\n",
		"  Range: 5 - 55\n",
		"  Low Completeness (<50): 120\n",
		"    0-9   20\n",
		"   50-59  180\n",
		"  build_id: abc\n  version: 2024_11\n",
		"Validation Status: WARNINGS\nIssue Count: 3\n",
	} {
		require.Contains(t, report, line)
	}

	dir := filepath.Join(t.TempDir(), "output")
	path, err := SaveReport(dir, r)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "validation_report_20241102_083015.txt"), path)
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, report, string(saved))

	var console bytes.Buffer
	Render(&console, r)
	require.Contains(t, console.String(), "WARNINGS (3 issues)")
}

func TestFindLatestDatabase(t *testing.T) {
	dir := t.TempDir()

	_, err := FindLatestDatabase(dir)
	require.ErrorIs(t, err, ErrNoDatabase)

	for i, name := range []string{"colleges_v2024_10.db", "colleges_v2024_11.db", "notes.db"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0644))
		mtime := now.Add(time.Duration(i) * time.Hour)
		if name == "colleges_v2024_10.db" {
			mtime = now.Add(24 * time.Hour)
		}
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	latest, err := FindLatestDatabase(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "colleges_v2024_10.db"), latest)
}
