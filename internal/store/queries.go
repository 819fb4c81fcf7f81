package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n sql.Null[int64]
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	if err != nil {
		return 0, err
	}
	return int(n.V), nil
}

func (s *Store) CountSchools(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM schools`)
}

func (s *Store) CountPrograms(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM programs`)
}

// OrphanedPrograms counts programs whose school does not exist.
func (s *Store) OrphanedPrograms(ctx context.Context) (int, error) {
	return s.count(ctx, `
        SELECT COUNT(*) FROM programs p
        LEFT JOIN schools s ON p.unitid = s.unitid
        WHERE s.unitid IS NULL`)
}

// InvalidAdmitRates counts admit rates outside [0, 1].
func (s *Store) InvalidAdmitRates(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM schools WHERE admit_rate < 0 OR admit_rate > 1`)
}

// InvalidOutcomeRates counts schools with a retention or graduation rate
// outside [0, 1].
func (s *Store) InvalidOutcomeRates(ctx context.Context) (int, error) {
	return s.count(ctx, `
        SELECT COUNT(*) FROM schools
        WHERE retention_rate < 0 OR retention_rate > 1
           OR graduation_rate_4yr < 0 OR graduation_rate_4yr > 1
           OR graduation_rate_6yr < 0 OR graduation_rate_6yr > 1`)
}

// InvalidSATRanges counts schools whose 25th percentile exceeds the 75th.
func (s *Store) InvalidSATRanges(ctx context.Context) (int, error) {
	return s.count(ctx, `
        SELECT COUNT(*) FROM schools
        WHERE (sat_math_25 > sat_math_75 OR sat_ebrw_25 > sat_ebrw_75)
          AND sat_math_25 IS NOT NULL AND sat_math_75 IS NOT NULL`)
}

type MissingCritical struct {
	Total     int
	AdmitRate int
	Cost      int
	Name      int
}

func (s *Store) MissingCritical(ctx context.Context) (MissingCritical, error) {
	var total, admit, cost, name sql.Null[int64]
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            SUM(CASE WHEN admit_rate IS NULL THEN 1 ELSE 0 END),
            SUM(CASE WHEN cost_attendance IS NULL THEN 1 ELSE 0 END),
            SUM(CASE WHEN name IS NULL THEN 1 ELSE 0 END)
        FROM schools`).Scan(&total, &admit, &cost, &name)
	if err != nil {
		return MissingCritical{}, err
	}
	return MissingCritical{
		Total:     int(total.V),
		AdmitRate: int(admit.V),
		Cost:      int(cost.V),
		Name:      int(name.V),
	}, nil
}

// Completeness summarizes completeness scores, the aggregates are missing
// on an empty table.
type Completeness struct {
	Avg  sql.Null[float64]
	Min  sql.Null[float64]
	Max  sql.Null[float64]
	High int
	Low  int
}

// CompletenessStats aggregates completeness scores, `high` and `low` are the
// inclusive lower and exclusive upper bounds of the high and low buckets.
func (s *Store) CompletenessStats(ctx context.Context, high, low float64) (Completeness, error) {
	var out Completeness
	var highCount, lowCount sql.Null[int64]
	err := s.db.QueryRowContext(ctx, `
        SELECT
            AVG(completeness_score),
            MIN(completeness_score),
            MAX(completeness_score),
            COUNT(CASE WHEN completeness_score >= ? THEN 1 END),
            COUNT(CASE WHEN completeness_score < ? THEN 1 END)
        FROM schools`, high, low).Scan(&out.Avg, &out.Min, &out.Max, &highCount, &lowCount)
	if err != nil {
		return Completeness{}, err
	}
	out.High = int(highCount.V)
	out.Low = int(lowCount.V)
	return out, nil
}

// Bucket is a 10 point wide completeness score range starting at Floor.
type Bucket struct {
	Floor int
	Count int
}

func (s *Store) CompletenessHistogram(ctx context.Context) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT CAST(completeness_score / 10 AS INTEGER) * 10 AS floor, COUNT(*)
        FROM schools
        WHERE completeness_score IS NOT NULL
        GROUP BY floor
        ORDER BY floor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		err := rows.Scan(&b.Floor, &b.Count)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Metadata returns every database_metadata pair.
func (s *Store) Metadata(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM database_metadata ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key string
		var value sql.Null[string]
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, err
		}
		out[key] = value.V
	}
	return out, rows.Err()
}

// Summary is printed after a database build.
type Summary struct {
	TotalSchools    int
	AvgCompleteness float64
	WithAdmitRate   int
	WithCost        int
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var (
		total, admit, cost sql.Null[int64]
		avg                sql.Null[float64]
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            AVG(completeness_score),
            COUNT(admit_rate),
            COUNT(cost_attendance)
        FROM schools`).Scan(&total, &avg, &admit, &cost)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	return Summary{
		TotalSchools:    int(total.V),
		AvgCompleteness: avg.V,
		WithAdmitRate:   int(admit.V),
		WithCost:        int(cost.V),
	}, nil
}
