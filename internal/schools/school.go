package schools

import (
	"database/sql"
	"time"
)

// DataYear is the academic year the latest scorecard release describes.
const DataYear = 2023

// Bracket indexes School.NetPrices.
type Bracket int

const (
	Income0To30k Bracket = iota
	Income30To48k
	Income48To75k
	Income75To110k
	Income110kPlus
)

// BracketCount is the number of income brackets net prices are published for.
const BracketCount = 5

// School is the canonical institution record written to the store.
//
// UnitID and Name are always set on a School returned by Map, every other
// field may be missing. Rates are fractions in [0, 1] as published upstream.
type School struct {
	UnitID int64
	Name   string

	City      sql.Null[string]
	State     sql.Null[string]
	URL       sql.Null[string]
	Latitude  sql.Null[float64]
	Longitude sql.Null[float64]

	Control           sql.Null[string]
	Size              sql.Null[int64]
	Setting           sql.Null[string]
	LocaleCode        sql.Null[int64]
	HistoricallyBlack sql.Null[bool]
	TribalCollege     sql.Null[bool]

	AdmitRate sql.Null[float64]

	// The api only publishes score midpoints, percentiles stay missing
	// rather than being approximated from them.
	SATMath25      sql.Null[int64]
	SATMath75      sql.Null[int64]
	SATEBRW25      sql.Null[int64]
	SATEBRW75      sql.Null[int64]
	ACTComposite25 sql.Null[int64]
	ACTComposite75 sql.Null[int64]
	ACTEnglish25   sql.Null[int64]
	ACTEnglish75   sql.Null[int64]
	ACTMath25      sql.Null[int64]
	ACTMath75      sql.Null[int64]

	CostAttendance  sql.Null[int64]
	TuitionInState  sql.Null[int64]
	TuitionOutState sql.Null[int64]
	TuitionPrivate  sql.Null[int64]
	NetPrices       [BracketCount]sql.Null[int64]

	RetentionRate      sql.Null[float64]
	GraduationRate4yr  sql.Null[float64]
	GraduationRate6yr  sql.Null[float64]
	MedianEarnings6yr  sql.Null[int64]
	MedianEarnings10yr sql.Null[int64]

	DataYear          int
	CompletenessScore int
	LastUpdated       time.Time
}

// HasNetPrice reports whether any income bracket has a net price.
func (s School) HasNetPrice() bool {
	for _, p := range s.NetPrices {
		if p.Valid {
			return true
		}
	}
	return false
}
