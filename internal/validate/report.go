package validate

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// ReportName is the file name of the report saved for r.
func ReportName(r Result) string {
	return fmt.Sprintf("validation_report_%s.txt", r.Timestamp.Format("20060102_150405"))
}

func orZero(v sql.Null[float64]) float64 {
	if !v.Valid {
		return 0
	}
	return v.V
}

// WriteReport writes the plain text report.
func WriteReport(w io.Writer, r Result) error {
	out := bufio.NewWriter(w)
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "Aplica Database Validation Report")
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Timestamp: %s\n", r.Timestamp.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(out, "Database: %s\n\n", r.Database)

	fmt.Fprintln(out, "Validation Checks:")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "Total Schools: %d\n", r.TotalSchools)
	fmt.Fprintf(out, "Total Programs: %d\n\n", r.TotalPrograms)

	fmt.Fprintln(out, "Data Quality Issues:")
	fmt.Fprintf(out, "  Orphaned Programs: %d\n", r.OrphanedPrograms)
	fmt.Fprintf(out, "  Invalid Admit Rates: %d\n", r.InvalidAdmitRates)
	fmt.Fprintf(out, "  Invalid Outcome Rates: %d\n", r.InvalidOutcomeRates)
	fmt.Fprintf(out, "  Invalid SAT Scores: %d\n\n", r.InvalidSATRanges)

	fmt.Fprintln(out, "Missing Critical Data:")
	fmt.Fprintf(out, "  Missing Admit Rate: %d (%.1f%%)\n", r.Missing.AdmitRate, r.Percent(r.Missing.AdmitRate))
	fmt.Fprintf(out, "  Missing Cost: %d (%.1f%%)\n", r.Missing.Cost, r.Percent(r.Missing.Cost))
	fmt.Fprintf(out, "  Missing Name: %d\n\n", r.Missing.Name)

	c := r.Completeness
	fmt.Fprintln(out, "Completeness Scores:")
	fmt.Fprintf(out, "  Average: %.1f\n", orZero(c.Avg))
	fmt.Fprintf(out, "  Range: %.0f - %.0f\n", orZero(c.Min), orZero(c.Max))
	fmt.Fprintf(out, "  High Completeness (≥%d): %d\n", HighCompleteness, c.High)
	fmt.Fprintf(out, "  Low Completeness (<%d): %d\n\n", LowCompleteness, c.Low)

	if len(r.Histogram) > 0 {
		fmt.Fprintln(out, "Completeness Distribution:")
		for _, b := range r.Histogram {
			fmt.Fprintf(out, "  %3d-%-3d %d\n", b.Floor, b.Floor+9, b.Count)
		}
		fmt.Fprintln(out)
	}

	if len(r.Metadata) > 0 {
		fmt.Fprintln(out, "Database Metadata:")
		keys := make([]string, 0, len(r.Metadata))
		for key := range r.Metadata {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  %s: %s\n", key, r.Metadata[key])
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Validation Status: %s\n", r.Status)
	fmt.Fprintf(out, "Issue Count: %d\n", r.Issues)

	return out.Flush()
}

// SaveReport writes the report of r into dir and returns its path.
func SaveReport(dir string, r Result) (string, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ReportName(r))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	err = WriteReport(f, r)
	if err != nil {
		return "", err
	}
	return path, f.Close()
}

// Render prints a console summary of r.
func Render(w io.Writer, r Result) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(r.Database)
	t.AppendHeader(table.Row{"Check", "Value"})

	t.AppendRows([]table.Row{
		{"Total schools", r.TotalSchools},
		{"Total programs", r.TotalPrograms},
		{"Orphaned programs", r.OrphanedPrograms},
		{"Invalid admit rates", r.InvalidAdmitRates},
		{"Invalid outcome rates", r.InvalidOutcomeRates},
		{"Invalid SAT ranges", r.InvalidSATRanges},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Missing admit rate", fmt.Sprintf("%d (%.1f%%)", r.Missing.AdmitRate, r.Percent(r.Missing.AdmitRate))},
		{"Missing cost", fmt.Sprintf("%d (%.1f%%)", r.Missing.Cost, r.Percent(r.Missing.Cost))},
	})
	t.AppendSeparator()

	c := r.Completeness
	t.AppendRows([]table.Row{
		{"Average completeness", fmt.Sprintf("%.1f", orZero(c.Avg))},
		{"Completeness range", fmt.Sprintf("%.0f - %.0f", orZero(c.Min), orZero(c.Max))},
		{fmt.Sprintf("High completeness (≥%d)", HighCompleteness), fmt.Sprintf("%d (%.1f%%)", c.High, r.Percent(c.High))},
		{fmt.Sprintf("Low completeness (<%d)", LowCompleteness), fmt.Sprintf("%d (%.1f%%)", c.Low, r.Percent(c.Low))},
	})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Status", fmt.Sprintf("%s (%d issues)", r.Status, r.Issues)})
	t.Render()
}
