package schools

// Weight is one signal of the completeness score. A weight without a check
// is declared but not evaluated against any mapped field yet.
type Weight struct {
	Signal string
	Points int
	check  func(School) bool
}

func (w Weight) Wired() bool {
	return w.check != nil
}

// Weights is the completeness weight table, it sums to 100.
var Weights = []Weight{
	{Signal: "hasAdmitRate", Points: 10, check: func(s School) bool { return s.AdmitRate.Valid }},
	{Signal: "hasSATScores", Points: 10, check: func(s School) bool { return s.SATMath25.Valid && s.SATMath75.Valid }},
	{Signal: "hasACTScores", Points: 5, check: func(s School) bool { return s.ACTComposite25.Valid && s.ACTComposite75.Valid }},
	{Signal: "hasTestPolicy", Points: 5},
	{Signal: "hasYieldRate", Points: 5},
	{Signal: "hasAdmissionFactors", Points: 5},
	{Signal: "hasCostData", Points: 10, check: func(s School) bool { return s.CostAttendance.Valid }},
	{Signal: "hasNetPrices", Points: 15, check: School.HasNetPrice},
	{Signal: "hasMeritAidInfo", Points: 5},
	{Signal: "hasRetentionRate", Points: 5, check: func(s School) bool { return s.RetentionRate.Valid }},
	{Signal: "hasGraduationRates", Points: 10, check: func(s School) bool { return s.GraduationRate4yr.Valid || s.GraduationRate6yr.Valid }},
	{Signal: "hasEarningsData", Points: 5, check: func(s School) bool { return s.MedianEarnings6yr.Valid || s.MedianEarnings10yr.Valid }},
	{Signal: "hasFacultyRatio", Points: 3},
	{Signal: "hasClassSizes", Points: 3},
	{Signal: "hasProgramData", Points: 4},
}

// Score is the sum of the points of every satisfied wired weight, clamped to
// [0, 100].
func Score(s School) int {
	score := 0
	for _, w := range Weights {
		if w.Wired() && w.check(s) {
			score += w.Points
		}
	}
	return min(max(score, 0), 100)
}

// MaxScore is the sum of the wired weights. Mapped records stay below it
// since percentile test scores are never supplied.
func MaxScore() int {
	total := 0
	for _, w := range Weights {
		if w.Wired() {
			total += w.Points
		}
	}
	return total
}

// UnwiredSignals lists the declared weights that are not evaluated.
func UnwiredSignals() []string {
	var out []string
	for _, w := range Weights {
		if !w.Wired() {
			out = append(out, w.Signal)
		}
	}
	return out
}
