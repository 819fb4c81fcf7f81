package schools

import (
	"aplica-pipeline/internal/dataset"
	"aplica-pipeline/internal/scorecard"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrRejected is returned by Map for a record that cannot become a School.
var ErrRejected = errors.New("record rejected")

var ownership = map[int64]string{
	1: "Public",
	2: "Private nonprofit",
	3: "Private for-profit",
}

var locales = map[int64]string{
	11: "City", 12: "City", 13: "City",
	21: "Suburb", 22: "Suburb", 23: "Suburb",
	31: "Town", 32: "Town", 33: "Town",
	41: "Rural", 42: "Rural", 43: "Rural",
}

// ControlLabel translates an ownership code, unknown codes are missing.
func ControlLabel(code int64) (string, bool) {
	label, ok := ownership[code]
	return label, ok
}

// SettingLabel translates a locale code, unknown codes are missing.
func SettingLabel(code int64) (string, bool) {
	label, ok := locales[code]
	return label, ok
}

type parser[T any] func(dataset.Value) (T, bool)

func parseText(v dataset.Value) (string, bool) {
	s := strings.TrimSpace(v.String())
	return s, s != ""
}

func parseFloat(v dataset.Value) (float64, bool) {
	return v.Float()
}

func parseInt(v dataset.Value) (int64, bool) {
	return v.Int()
}

// parseAmount parses counts and dollar amounts, which are published as whole
// numbers but may carry a fraction after passing through float columns.
func parseAmount(v dataset.Value) (int64, bool) {
	f, ok := v.Float()
	if !ok {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func translate(table map[int64]string) parser[string] {
	return func(v dataset.Value) (string, bool) {
		code, ok := v.Int()
		if !ok {
			return "", false
		}
		label, ok := table[code]
		return label, ok
	}
}

// parseFlag parses an IPEDS yes/no code, 1 is yes and 2 is no.
func parseFlag(v dataset.Value) (bool, bool) {
	code, ok := v.Int()
	if !ok {
		return false, false
	}
	switch code {
	case 1:
		return true, true
	case 2:
		return false, true
	}
	return false, false
}

func into[T any](parse parser[T], target func(*School) *sql.Null[T]) func(*School, dataset.Value) {
	return func(s *School, v dataset.Value) {
		out, ok := parse(v)
		if !ok {
			return
		}
		*target(s) = sql.Null[T]{V: out, Valid: true}
	}
}

// Rule maps a canonical column from the first non-missing value of its
// sources.
type Rule struct {
	Column  string
	Sources []string
	apply   func(*School, dataset.Value)
}

func passthrough[T any](column, source string, parse parser[T], target func(*School) *sql.Null[T]) Rule {
	return Rule{Column: column, Sources: []string{source}, apply: into(parse, target)}
}

var netPriceColumns = [BracketCount]string{
	"net_price_0_30k",
	"net_price_30_48k",
	"net_price_48_75k",
	"net_price_75_110k",
	"net_price_110k_plus",
}

// Rules is the mapping from source fields to canonical columns, applied in
// order to every record.
var Rules = buildRules()

func buildRules() []Rule {
	rules := []Rule{
		passthrough("city", "school.city", parseText, func(s *School) *sql.Null[string] { return &s.City }),
		passthrough("state", "school.state", parseText, func(s *School) *sql.Null[string] { return &s.State }),
		passthrough("url", "school.school_url", parseText, func(s *School) *sql.Null[string] { return &s.URL }),
		passthrough("latitude", "location.lat", parseFloat, func(s *School) *sql.Null[float64] { return &s.Latitude }),
		passthrough("longitude", "location.lon", parseFloat, func(s *School) *sql.Null[float64] { return &s.Longitude }),

		passthrough("control", "latest.school.ownership", translate(ownership), func(s *School) *sql.Null[string] { return &s.Control }),
		passthrough("size", "latest.student.size", parseAmount, func(s *School) *sql.Null[int64] { return &s.Size }),
		passthrough("locale_code", "latest.school.locale", parseInt, func(s *School) *sql.Null[int64] { return &s.LocaleCode }),
		passthrough("setting", "latest.school.locale", translate(locales), func(s *School) *sql.Null[string] { return &s.Setting }),
		passthrough("historically_black", "ipeds.HBCU", parseFlag, func(s *School) *sql.Null[bool] { return &s.HistoricallyBlack }),
		passthrough("tribal_college", "ipeds.TRIBAL", parseFlag, func(s *School) *sql.Null[bool] { return &s.TribalCollege }),

		passthrough("admit_rate", "latest.admissions.admission_rate.overall", parseFloat, func(s *School) *sql.Null[float64] { return &s.AdmitRate }),

		passthrough("cost_attendance", "latest.cost.attendance.academic_year", parseAmount, func(s *School) *sql.Null[int64] { return &s.CostAttendance }),
		passthrough("tuition_in_state", "latest.cost.tuition.in_state", parseAmount, func(s *School) *sql.Null[int64] { return &s.TuitionInState }),
		passthrough("tuition_out_state", "latest.cost.tuition.out_of_state", parseAmount, func(s *School) *sql.Null[int64] { return &s.TuitionOutState }),
		// private tuition is the out of state sticker price
		passthrough("tuition_private", "latest.cost.tuition.out_of_state", parseAmount, func(s *School) *sql.Null[int64] { return &s.TuitionPrivate }),
	}

	for i, bracket := range scorecard.IncomeBrackets {
		rules = append(rules, Rule{
			Column: netPriceColumns[i],
			Sources: []string{
				scorecard.PrivateNetPriceField(bracket),
				scorecard.PublicNetPriceField(bracket),
			},
			apply: into(parseAmount, func(s *School) *sql.Null[int64] { return &s.NetPrices[i] }),
		})
	}

	return append(
		rules,
		passthrough("retention_rate", "latest.student.retention_rate.four_year.full_time", parseFloat, func(s *School) *sql.Null[float64] { return &s.RetentionRate }),
		passthrough("graduation_rate_4yr", "latest.completion.completion_rate_4yr_150nt", parseFloat, func(s *School) *sql.Null[float64] { return &s.GraduationRate4yr }),
		passthrough("graduation_rate_6yr", "latest.completion.completion_rate_6yr_150nt", parseFloat, func(s *School) *sql.Null[float64] { return &s.GraduationRate6yr }),
		passthrough("median_earnings_6yr", "latest.earnings.6_yrs_after_entry.median", parseAmount, func(s *School) *sql.Null[int64] { return &s.MedianEarnings6yr }),
		passthrough("median_earnings_10yr", "latest.earnings.10_yrs_after_entry.median", parseAmount, func(s *School) *sql.Null[int64] { return &s.MedianEarnings10yr }),
	)
}

// first returns the first non-missing value of the fallback chain.
func first(rec dataset.Record, sources []string) dataset.Value {
	for _, src := range sources {
		v := rec.Get(src)
		if !v.IsMissing() {
			return v
		}
	}
	return dataset.Missing()
}

// Map converts a raw record into a School and scores it. Records without a
// unit id or name return an error wrapping ErrRejected.
func Map(rec dataset.Record, now time.Time) (School, error) {
	unitid, ok := rec.Get("id").Int()
	if !ok {
		return School{}, fmt.Errorf("%w: missing unitid", ErrRejected)
	}
	name, ok := parseText(rec.Get("school.name"))
	if !ok {
		return School{}, fmt.Errorf("%w: unitid %d: missing name", ErrRejected, unitid)
	}

	school := School{
		UnitID:      unitid,
		Name:        name,
		DataYear:    DataYear,
		LastUpdated: now,
	}
	for _, r := range Rules {
		v := first(rec, r.Sources)
		if v.IsMissing() {
			continue
		}
		r.apply(&school, v)
	}
	school.CompletenessScore = Score(school)
	return school, nil
}

// Rejection is a record Map refused, Row is its 0-indexed position in the
// input.
type Rejection struct {
	Row int
	Err error
}

// MapAll maps every record, len(schools) + len(rejected) == len(records).
func MapAll(records []dataset.Record, now time.Time) (schools []School, rejected []Rejection) {
	schools = make([]School, 0, len(records))
	for i, rec := range records {
		s, err := Map(rec, now)
		if err != nil {
			rejected = append(rejected, Rejection{Row: i, Err: err})
			continue
		}
		schools = append(schools, s)
	}
	return schools, rejected
}
