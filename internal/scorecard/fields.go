package scorecard

// IncomeBrackets are the upstream income level keys net prices are broken
// down by, in ascending order.
var IncomeBrackets = []string{
	"0-30000",
	"30001-48000",
	"48001-75000",
	"75001-110000",
	"110001-plus",
}

// PrivateNetPriceField returns the private sector net price field of an income bracket.
func PrivateNetPriceField(bracket string) string {
	return "latest.cost.net_price.private.by_income_level." + bracket
}

// PublicNetPriceField returns the public sector net price field of an income bracket.
func PublicNetPriceField(bracket string) string {
	return "latest.cost.net_price.public.by_income_level." + bracket
}

// Fields are the api field paths requested for every school, also the column
// order of the intermediate csv.
var Fields = buildFields()

func buildFields() []string {
	fields := []string{
		// identity
		"id",
		"school.name",
		"school.city",
		"school.state",
		"school.school_url",
		"location.lat",
		"location.lon",

		// size and control
		"latest.student.size",
		"latest.school.ownership",
		"latest.school.locale",

		// admissions
		"latest.admissions.admission_rate.overall",
		"latest.admissions.sat_scores.midpoint.math",
		"latest.admissions.sat_scores.midpoint.critical_reading",
		"latest.admissions.act_scores.midpoint.cumulative",

		// cost
		"latest.cost.attendance.academic_year",
		"latest.cost.tuition.in_state",
		"latest.cost.tuition.out_of_state",
		"latest.cost.avg_net_price.overall",
	}
	for _, bracket := range IncomeBrackets {
		fields = append(fields, PrivateNetPriceField(bracket), PublicNetPriceField(bracket))
	}
	return append(
		fields,
		// outcomes
		"latest.student.retention_rate.four_year.full_time",
		"latest.completion.completion_rate_4yr_150nt",
		"latest.completion.completion_rate_6yr_150nt",
		"latest.earnings.6_yrs_after_entry.median",
		"latest.earnings.10_yrs_after_entry.median",
	)
}
