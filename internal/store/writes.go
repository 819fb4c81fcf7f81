package store

import (
	"aplica-pipeline/internal/schools"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	report_store_insert_schools  = "store.insert-schools"
	report_store_insert_programs = "store.insert-programs"
)

const insertSchool = `
INSERT INTO schools (
    unitid, name, city, state, url, latitude, longitude,
    control, size, setting, locale_code, historically_black, tribal_college,
    admit_rate,
    sat_math_25, sat_math_75, sat_ebrw_25, sat_ebrw_75,
    act_composite_25, act_composite_75, act_english_25, act_english_75, act_math_25, act_math_75,
    cost_attendance, tuition_in_state, tuition_out_state, tuition_private,
    net_price_0_30k, net_price_30_48k, net_price_48_75k, net_price_75_110k, net_price_110k_plus,
    retention_rate, graduation_rate_4yr, graduation_rate_6yr,
    median_earnings_6yr, median_earnings_10yr,
    data_year, completeness_score, last_updated
) VALUES (
    ?, ?, ?, ?, ?, ?, ?,
    ?, ?, ?, ?, COALESCE(?, 0), COALESCE(?, 0),
    ?,
    ?, ?, ?, ?,
    ?, ?, ?, ?, ?, ?,
    ?, ?, ?, ?,
    ?, ?, ?, ?, ?,
    ?, ?, ?,
    ?, ?,
    ?, ?, ?
)`

func schoolArgs(s schools.School) []any {
	return []any{
		s.UnitID, s.Name, s.City, s.State, s.URL, s.Latitude, s.Longitude,
		s.Control, s.Size, s.Setting, s.LocaleCode, s.HistoricallyBlack, s.TribalCollege,
		s.AdmitRate,
		s.SATMath25, s.SATMath75, s.SATEBRW25, s.SATEBRW75,
		s.ACTComposite25, s.ACTComposite75, s.ACTEnglish25, s.ACTEnglish75, s.ACTMath25, s.ACTMath75,
		s.CostAttendance, s.TuitionInState, s.TuitionOutState, s.TuitionPrivate,
		s.NetPrices[0], s.NetPrices[1], s.NetPrices[2], s.NetPrices[3], s.NetPrices[4],
		s.RetentionRate, s.GraduationRate4yr, s.GraduationRate6yr,
		s.MedianEarnings6yr, s.MedianEarnings10yr,
		s.DataYear, s.CompletenessScore, s.LastUpdated.Format(time.RFC3339),
	}
}

// InsertResult counts the rows of a batch insert.
type InsertResult struct {
	// Inserted holds the unit ids (for schools) of the rows that were written.
	Inserted []int64
	Failed   int
}

// InsertSchools writes every school in a single transaction. A row that the
// database refuses (duplicate unit id, failed check constraint) is reported
// and skipped, the rest of the batch is still written.
func (s *Store) InsertSchools(ctx context.Context, list []schools.School) (InsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSchool)
	if err != nil {
		return InsertResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var result InsertResult
	for _, school := range list {
		if err := ctx.Err(); err != nil {
			return InsertResult{}, err
		}
		_, err := stmt.ExecContext(ctx, schoolArgs(school)...)
		if err != nil {
			result.Failed++
			s.tel.ReportWarning(
				report_store_insert_schools,
				fmt.Errorf("unitid %d (%s): %w", school.UnitID, school.Name, err),
			)
			continue
		}
		result.Inserted = append(result.Inserted, school.UnitID)
	}

	err = tx.Commit()
	if err != nil {
		return InsertResult{}, err
	}
	s.tel.ReportCount(report_store_insert_schools, int64(len(result.Inserted)))
	return result, nil
}

const insertProgram = `
INSERT INTO programs (
    unitid, cip_code, cip_2digit, cip_4digit, cip_6digit,
    program_name, program_category, degree_level,
    annual_completions, program_length_years
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertPrograms writes programs in a single transaction, failing rows are
// reported and skipped. Inserted is left empty.
func (s *Store) InsertPrograms(ctx context.Context, programs []schools.Program) (InsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertProgram)
	if err != nil {
		return InsertResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var result InsertResult
	written := 0
	for _, p := range programs {
		if err := ctx.Err(); err != nil {
			return InsertResult{}, err
		}
		_, err := stmt.ExecContext(
			ctx,
			p.UnitID, p.CIPCode, p.CIP2, p.CIP4, p.CIP6,
			p.Name, p.Category, p.DegreeLevel,
			p.AnnualCompletions, p.ProgramLengthYears,
		)
		if err != nil {
			result.Failed++
			s.tel.ReportWarning(
				report_store_insert_programs,
				fmt.Errorf("unitid %d cip %s: %w", p.UnitID, p.CIPCode, err),
			)
			continue
		}
		written++
	}

	err = tx.Commit()
	if err != nil {
		return InsertResult{}, err
	}
	s.tel.ReportCount(report_store_insert_programs, int64(written))
	return result, nil
}

// SeedMajorCategories upserts the major category lookup table.
func (s *Store) SeedMajorCategories(ctx context.Context, categories []schools.MajorCategory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range categories {
		_, err := tx.ExecContext(
			ctx,
			`INSERT OR REPLACE INTO major_categories (cip_code, category_name, description) VALUES (?, ?, ?)`,
			c.CIPCode, c.Name, c.Description,
		)
		if err != nil {
			return fmt.Errorf("seed %s: %w", c.CIPCode, err)
		}
	}
	return tx.Commit()
}

// Metadata describes one database build.
type Metadata struct {
	Version         string
	BuildDate       time.Time
	BuildID         uuid.UUID
	TotalSchools    int
	AvgCompleteness float64
}

func (m Metadata) pairs() [][2]string {
	return [][2]string{
		{"version", m.Version},
		{"build_date", m.BuildDate.Format(time.RFC3339)},
		{"build_id", m.BuildID.String()},
		{"total_schools", strconv.Itoa(m.TotalSchools)},
		{"avg_completeness", strconv.FormatFloat(m.AvgCompleteness, 'f', 2, 64)},
	}
}

func (s *Store) WriteMetadata(ctx context.Context, m Metadata) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, kv := range m.pairs() {
		_, err := tx.ExecContext(
			ctx,
			`INSERT OR REPLACE INTO database_metadata (key, value) VALUES (?, ?)`,
			kv[0], kv[1],
		)
		if err != nil {
			return fmt.Errorf("write metadata %s: %w", kv[0], err)
		}
	}
	return tx.Commit()
}
