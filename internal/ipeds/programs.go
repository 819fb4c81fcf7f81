package ipeds

import (
	"aplica-pipeline/internal/dataset"
	"aplica-pipeline/internal/schools"
	"database/sql"
)

// ProgramsFromCompletions converts first-major completion rows of schools in
// `include` into programs. Rows with an unparseable CIP code (including the
// 99 all-programs total) are skipped.
func ProgramsFromCompletions(completions *dataset.Table, include map[int64]bool) []schools.Program {
	var out []schools.Program
	for _, row := range completions.Rows {
		unitid, ok := row.Get(KeyColumn).Int()
		if !ok || !include[unitid] {
			continue
		}
		if major, ok := row.Get("MAJORNUM").Int(); ok && major != 1 {
			continue
		}
		cip2, cip4, cip6, err := schools.SplitCIP(row.Get("CIPCODE").String())
		if err != nil || cip2 == "99" {
			continue
		}

		p := schools.Program{
			UnitID:  unitid,
			CIPCode: cip6,
			CIP2:    cip2,
			CIP4:    cip4,
			CIP6:    cip6,
		}
		if name, ok := schools.CategoryOf(cip2); ok {
			p.Category = sql.Null[string]{V: name, Valid: true}
		}
		p.Name = schools.ProgramName(cip6, p.Category)

		if awlevel, ok := row.Get("AWLEVEL").Int(); ok {
			if level, years, ok := schools.DegreeLevel(awlevel); ok {
				p.DegreeLevel = sql.Null[string]{V: level, Valid: true}
				if years > 0 {
					p.ProgramLengthYears = sql.Null[int64]{V: years, Valid: true}
				}
			}
		}
		if total, ok := row.Get("CTOTALT").Int(); ok {
			p.AnnualCompletions = sql.Null[int64]{V: total, Valid: true}
		}
		out = append(out, p)
	}
	return out
}
