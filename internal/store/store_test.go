package store

import (
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/schools"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.November, 2, 8, 30, 0, 0, time.UTC)

func null[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}

func school(unitid int64, name string, score int) schools.School {
	return schools.School{
		UnitID:            unitid,
		Name:              name,
		State:             null("MA"),
		DataYear:          schools.DataYear,
		CompletenessScore: score,
		LastUpdated:       now,
	}
}

func setup(t testing.TB) (*Store, *telemetry.Recorder, context.Context) {
	tel := telemetry.NewRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	s, err := OpenMemory(ctx, tel)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, tel, ctx
}

func TestStatements(t *testing.T) {
	stmts := Statements()
	// 4 tables and 8 indexes
	require.Len(t, stmts, 12)
	for _, stmt := range stmts {
		require.NotContains(t, stmt, "--")
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	s, _, ctx := setup(t)
	require.NoError(t, s.CreateSchema(ctx))

	var n int
	err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestInsertSchoolsSkipsFailingRows(t *testing.T) {
	s, tel, ctx := setup(t)

	bad := school(3, "Bad Rate College", 20)
	bad.AdmitRate = null(1.5)

	full := school(1, "Full College", 55)
	full.AdmitRate = null(0.25)
	full.CostAttendance = null(int64(31000))
	full.NetPrices[4] = null(int64(22000))
	full.HistoricallyBlack = null(true)

	result, err := s.InsertSchools(ctx, []schools.School{
		full,
		school(2, "Sparse College", 0),
		bad,
		school(1, "Duplicate College", 10),
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, result.Inserted)
	require.Equal(t, 2, result.Failed)
	require.Len(t, tel.Find("warning", report_store_insert_schools), 2)

	count, ok := tel.LastCount(report_store_insert_schools)
	require.True(t, ok)
	require.Equal(t, int64(2), count)

	var (
		hbcu, tribal int
		netPrice     sql.Null[int64]
		admit        sql.Null[float64]
		updated      string
	)
	err = s.DB().QueryRowContext(ctx, `
        SELECT historically_black, tribal_college, net_price_110k_plus, admit_rate, last_updated
        FROM schools WHERE unitid = 1`).Scan(&hbcu, &tribal, &netPrice, &admit, &updated)
	require.NoError(t, err)
	require.Equal(t, 1, hbcu)
	// missing flags fall back to the column default
	require.Equal(t, 0, tribal)
	require.Equal(t, null(int64(22000)), netPrice)
	require.Equal(t, null(0.25), admit)
	require.Equal(t, "2024-11-02T08:30:00Z", updated)

	err = s.DB().QueryRowContext(ctx, `SELECT admit_rate FROM schools WHERE unitid = 2`).Scan(&admit)
	require.NoError(t, err)
	require.False(t, admit.Valid)
}

func TestProgramsAndCategories(t *testing.T) {
	s, tel, ctx := setup(t)

	_, err := s.InsertSchools(ctx, []schools.School{school(1, "A", 10)})
	require.NoError(t, err)
	require.NoError(t, s.SeedMajorCategories(ctx, schools.MajorCategories))
	// seeding twice replaces rows
	require.NoError(t, s.SeedMajorCategories(ctx, schools.MajorCategories))

	var categories int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM major_categories`).Scan(&categories))
	require.Equal(t, len(schools.MajorCategories), categories)

	result, err := s.InsertPrograms(ctx, []schools.Program{
		{UnitID: 1, CIPCode: "11.0701", CIP2: "11", CIP4: "11.07", CIP6: "11.0701", Name: "Computer Science (11.0701)", Category: null("Computer Science"), DegreeLevel: null("Bachelor"), AnnualCompletions: null(int64(120))},
		// foreign keys are enforced
		{UnitID: 999, CIPCode: "52.0201", CIP2: "52", CIP4: "52.02", CIP6: "52.0201", Name: "Business (52.0201)"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Len(t, tel.Find("warning", report_store_insert_programs), 1)

	programs, err := s.CountPrograms(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, programs)

	orphans, err := s.OrphanedPrograms(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, orphans)

	// deleting a school cascades to its programs
	_, err = s.DB().ExecContext(ctx, `DELETE FROM schools WHERE unitid = 1`)
	require.NoError(t, err)
	programs, err = s.CountPrograms(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, programs)
}

func TestMetadata(t *testing.T) {
	s, _, ctx := setup(t)

	id := uuid.New()
	m := Metadata{
		Version:         "2024_11",
		BuildDate:       now,
		BuildID:         id,
		TotalSchools:    2,
		AvgCompleteness: 32.5,
	}
	require.NoError(t, s.WriteMetadata(ctx, m))
	m.TotalSchools = 3
	require.NoError(t, s.WriteMetadata(ctx, m))

	got, err := s.Metadata(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"version":          "2024_11",
		"build_date":       "2024-11-02T08:30:00Z",
		"build_id":         id.String(),
		"total_schools":    "3",
		"avg_completeness": "32.50",
	}, got)
}

func TestAggregates(t *testing.T) {
	s, _, ctx := setup(t)

	{
		summary, err := s.Summary(ctx)
		require.NoError(t, err)
		require.Equal(t, Summary{}, summary)

		stats, err := s.CompletenessStats(ctx, 80, 50)
		require.NoError(t, err)
		require.False(t, stats.Avg.Valid)
		require.False(t, stats.Max.Valid)
	}

	a := school(1, "A", 55)
	a.AdmitRate = null(0.5)
	a.CostAttendance = null(int64(20000))
	b := school(2, "B", 30)
	b.CostAttendance = null(int64(30000))
	b.RetentionRate = null(1.2)
	c := school(3, "C", 0)
	_, err := s.InsertSchools(ctx, []schools.School{a, b, c})
	require.NoError(t, err)

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalSchools)
	require.InDelta(t, 85.0/3, summary.AvgCompleteness, 1e-9)
	require.Equal(t, 1, summary.WithAdmitRate)
	require.Equal(t, 2, summary.WithCost)

	missing, err := s.MissingCritical(ctx)
	require.NoError(t, err)
	require.Equal(t, MissingCritical{Total: 3, AdmitRate: 2, Cost: 1}, missing)

	stats, err := s.CompletenessStats(ctx, 50, 10)
	require.NoError(t, err)
	require.Equal(t, null(0.0), stats.Min)
	require.Equal(t, null(55.0), stats.Max)
	require.Equal(t, 1, stats.High)
	require.Equal(t, 1, stats.Low)

	invalid, err := s.InvalidOutcomeRates(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, invalid)

	invalid, err = s.InvalidAdmitRates(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, invalid)

	invalid, err = s.InvalidSATRanges(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, invalid)

	histogram, err := s.CompletenessHistogram(ctx)
	require.NoError(t, err)
	require.Equal(t, []Bucket{{Floor: 0, Count: 1}, {Floor: 30, Count: 1}, {Floor: 50, Count: 1}}, histogram)
}

func TestOpenRebuildsLocalFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "output", "colleges_vtest.db")

	for i := 0; i < 2; i++ {
		s, err := Open(ctx, Options{Path: path, Rebuild: true}, telemetry.NewRecorder())
		require.NoError(t, err)
		require.NoError(t, s.CreateSchema(ctx))

		n, err := s.CountSchools(ctx)
		require.NoError(t, err)
		// the previous build is gone
		require.Equal(t, 0, n)

		_, err = s.InsertSchools(ctx, []schools.School{school(1, "A", 10)})
		require.NoError(t, err)
		require.NoError(t, s.Optimize(ctx))
		require.NoError(t, s.Close())
	}

	s, err := Open(ctx, Options{Path: path}, telemetry.NewRecorder())
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountSchools(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "colleges_vtest.db")

	_, err := Open(ctx, Options{Path: path, ReadOnly: true}, telemetry.NewRecorder())
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoFileExists(t, path)

	s, err := Open(ctx, Options{Path: path, Rebuild: true}, telemetry.NewRecorder())
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema(ctx))
	_, err = s.InsertSchools(ctx, []schools.School{school(1, "A", 10)})
	require.NoError(t, err)
	require.NoError(t, s.Optimize(ctx))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Path: path, ReadOnly: true}, telemetry.NewRecorder())
	require.NoError(t, err)
	defer s.Close()

	var journal string
	err = s.DB().QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&journal)
	require.NoError(t, err)
	require.Equal(t, "delete", journal)

	n, err := s.CountSchools(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.DB().ExecContext(ctx, `DELETE FROM schools`)
	require.Error(t, err)
	n, err = s.CountSchools(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
