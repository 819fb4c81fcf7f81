package schools

import (
	"database/sql"
	"fmt"
	"strings"
)

// MajorCategory is a CIP 2-digit program family.
type MajorCategory struct {
	CIPCode     string
	Name        string
	Description string
}

// MajorCategories are the program families the app groups majors by.
var MajorCategories = []MajorCategory{
	{CIPCode: "11", Name: "Computer Science", Description: "Computer and information sciences and support services"},
	{CIPCode: "14", Name: "Engineering", Description: "Engineering"},
	{CIPCode: "52", Name: "Business", Description: "Business, management, marketing and related support services"},
	{CIPCode: "26", Name: "Biology", Description: "Biological and biomedical sciences"},
	{CIPCode: "42", Name: "Psychology", Description: "Psychology"},
	{CIPCode: "51", Name: "Nursing/Health", Description: "Health professions and related programs"},
	{CIPCode: "13", Name: "Education", Description: "Education"},
	{CIPCode: "09", Name: "Communications", Description: "Communication, journalism and related programs"},
	{CIPCode: "45", Name: "Social Sciences", Description: "Social sciences"},
	{CIPCode: "23", Name: "English", Description: "English language and literature/letters"},
	{CIPCode: "27", Name: "Mathematics", Description: "Mathematics and statistics"},
	{CIPCode: "40", Name: "Physical Sciences", Description: "Physical sciences"},
	{CIPCode: "50", Name: "Arts", Description: "Visual and performing arts"},
	{CIPCode: "04", Name: "Architecture", Description: "Architecture and related services"},
	{CIPCode: "22", Name: "Legal", Description: "Legal professions and studies"},
}

// CategoryOf returns the name of the major category of a 2-digit CIP family.
func CategoryOf(cip2 string) (string, bool) {
	for _, c := range MajorCategories {
		if c.CIPCode == cip2 {
			return c.Name, true
		}
	}
	return "", false
}

// Program is one degree program offered by a school.
type Program struct {
	UnitID   int64
	CIPCode  string
	CIP2     string
	CIP4     string
	CIP6     string
	Name     string
	Category sql.Null[string]

	DegreeLevel        sql.Null[string]
	AnnualCompletions  sql.Null[int64]
	ProgramLengthYears sql.Null[int64]
}

// SplitCIP normalizes a CIP code such as "11.0701" or "1.0101" into its
// 2, 4 and 6 digit forms ("11", "11.07", "11.0701").
func SplitCIP(code string) (cip2, cip4, cip6 string, err error) {
	code = strings.TrimSpace(strings.Trim(code, "\"'"))
	family, detail, found := strings.Cut(code, ".")
	if !found || family == "" || len(family) > 2 || !digits(family) || !digits(detail) {
		return "", "", "", fmt.Errorf("invalid cip code %q", code)
	}
	for len(detail) < 4 {
		detail += "0"
	}
	if len(detail) > 4 {
		return "", "", "", fmt.Errorf("invalid cip code %q", code)
	}
	if len(family) == 1 {
		family = "0" + family
	}
	return family, family + "." + detail[:2], family + "." + detail, nil
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DegreeLevel translates an IPEDS award level code.
func DegreeLevel(awlevel int64) (level string, years int64, ok bool) {
	switch awlevel {
	case 1, 2, 4, 20, 21:
		return "Certificate", 0, true
	case 3:
		return "Associate", 2, true
	case 5:
		return "Bachelor", 4, true
	case 6, 8:
		return "Postbaccalaureate Certificate", 0, true
	case 7:
		return "Master", 2, true
	case 17, 18, 19:
		return "Doctorate", 0, true
	}
	return "", 0, false
}

// ProgramName is the display name of a program, the completions data carries
// no titles so the category and code are used.
func ProgramName(cip6 string, category sql.Null[string]) string {
	if category.Valid {
		return fmt.Sprintf("%s (%s)", category.V, cip6)
	}
	return "CIP " + cip6
}
