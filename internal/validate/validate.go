package validate

import (
	"aplica-pipeline/internal/store"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	HighCompleteness = 80
	LowCompleteness  = 50

	// missing admit rate or cost on more than this share of schools counts
	// as one issue each
	missingThreshold = 0.1
)

type Status string

const (
	StatusPass     Status = "PASS"
	StatusWarnings Status = "WARNINGS"
)

var ErrNoDatabase = errors.New("no database files found in output directory")

// Querier is the subset of the store used by validation.
type Querier interface {
	CountSchools(ctx context.Context) (int, error)
	CountPrograms(ctx context.Context) (int, error)
	OrphanedPrograms(ctx context.Context) (int, error)
	InvalidAdmitRates(ctx context.Context) (int, error)
	InvalidOutcomeRates(ctx context.Context) (int, error)
	InvalidSATRanges(ctx context.Context) (int, error)
	MissingCritical(ctx context.Context) (store.MissingCritical, error)
	CompletenessStats(ctx context.Context, high, low float64) (store.Completeness, error)
	CompletenessHistogram(ctx context.Context) ([]store.Bucket, error)
	Metadata(ctx context.Context) (map[string]string, error)
}

type Result struct {
	Timestamp time.Time
	Database  string

	TotalSchools        int
	TotalPrograms       int
	OrphanedPrograms    int
	InvalidAdmitRates   int
	InvalidOutcomeRates int
	InvalidSATRanges    int

	Missing      store.MissingCritical
	Completeness store.Completeness
	Histogram    []store.Bucket
	Metadata     map[string]string

	Issues int
	Status Status
}

// Percent returns n as a percentage of the total school count, 0 on an
// empty database.
func (r Result) Percent(n int) float64 {
	if r.TotalSchools == 0 {
		return 0
	}
	return float64(n) / float64(r.TotalSchools) * 100
}

// Run executes every check against q. `database` only labels the result.
func Run(ctx context.Context, q Querier, database string, now time.Time) (Result, error) {
	r := Result{Timestamp: now, Database: database}

	counts := []struct {
		name  string
		dest  *int
		query func(context.Context) (int, error)
	}{
		{"total schools", &r.TotalSchools, q.CountSchools},
		{"total programs", &r.TotalPrograms, q.CountPrograms},
		{"orphaned programs", &r.OrphanedPrograms, q.OrphanedPrograms},
		{"invalid admit rates", &r.InvalidAdmitRates, q.InvalidAdmitRates},
		{"invalid outcome rates", &r.InvalidOutcomeRates, q.InvalidOutcomeRates},
		{"invalid sat ranges", &r.InvalidSATRanges, q.InvalidSATRanges},
	}
	for _, c := range counts {
		n, err := c.query(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", c.name, err)
		}
		*c.dest = n
	}

	var err error
	r.Missing, err = q.MissingCritical(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("missing critical: %w", err)
	}
	r.Completeness, err = q.CompletenessStats(ctx, HighCompleteness, LowCompleteness)
	if err != nil {
		return Result{}, fmt.Errorf("completeness: %w", err)
	}
	r.Histogram, err = q.CompletenessHistogram(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("histogram: %w", err)
	}
	r.Metadata, err = q.Metadata(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("metadata: %w", err)
	}

	r.Issues = r.OrphanedPrograms + r.InvalidAdmitRates + r.InvalidSATRanges + r.InvalidOutcomeRates
	limit := float64(r.TotalSchools) * missingThreshold
	if float64(r.Missing.AdmitRate) > limit {
		r.Issues++
	}
	if float64(r.Missing.Cost) > limit {
		r.Issues++
	}

	r.Status = StatusPass
	if r.Issues > 0 {
		r.Status = StatusWarnings
	}
	return r, nil
}

// FindLatestDatabase returns the most recently modified colleges_v*.db in
// dir.
func FindLatestDatabase(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "colleges_v*.db"))
	if err != nil {
		return "", err
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest = path
			latestAt = info.ModTime()
		}
	}
	if latest == "" {
		return "", ErrNoDatabase
	}
	return latest, nil
}
