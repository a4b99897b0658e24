// Package extract turns raw OCR text into prescription fields using ordered
// lists of case-sensitive patterns. OCR output is assumed to preserve the
// original capitalization; names must be capitalized tokens.
package extract

import (
	"regexp"
	"strings"
)

// Mention is a medication line as written, with the dosage kept verbatim.
type Mention struct {
	Name   string `json:"name" bson:"name"`
	Dosage string `json:"dosage" bson:"dosage"`
}

// Fields is the structured view of a prescription. A field that could not be
// found is the empty string; callers must read "" as "not found".
type Fields struct {
	DoctorName    string    `json:"doctor_name" bson:"doctor_name"`
	DoctorLicense string    `json:"doctor_license" bson:"doctor_license"`
	PatientName   string    `json:"patient_name" bson:"patient_name"`
	Date          string    `json:"date" bson:"date"`
	Medications   []Mention `json:"medications" bson:"medications"`
	RawText       string    `json:"raw_text" bson:"raw_text"`
}

const personName = `([A-Z][a-z]+\s+[A-Z][a-z]+)`

var (
	doctorPatterns = mustCompileAll(
		`Dr\.\s+`+personName,
		`Doctor:\s*`+personName,
		`Physician:\s*`+personName,
	)
	licensePatterns = mustCompileAll(
		`License\s*Number\s*:?\s*([A-Z0-9-]+)`,
		`MD\s*License\s*:?\s*([A-Z0-9-]+)`,
		`License\s*#?\s*:?\s*([A-Z0-9-]+)`,
	)
	patientPatterns = mustCompileAll(
		`Patient:\s*`+personName,
		`Name:\s*`+personName,
		`Patient\s*Name:\s*`+personName,
	)
	// The last date pattern is unlabeled: any D/D/YYYY-like triple in the
	// text, including numbers near dosages, can be picked up as the date.
	datePatterns = mustCompileAll(
		`Date:\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`,
		`Prescribed\s*on:\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`,
		`(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`,
	)

	mentionPattern  = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*(\d+\s*(?:mg|g|ml|tablet|capsule)s?)`)
	mentionKeywords = []string{"rx", "prescribe", "medication", "drug"}
)

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

// Extract parses every field from rawText.
func Extract(rawText string) Fields {
	return Fields{
		DoctorName:    DoctorName(rawText),
		DoctorLicense: License(rawText),
		PatientName:   PatientName(rawText),
		Date:          Date(rawText),
		Medications:   Medications(rawText),
		RawText:       rawText,
	}
}

func DoctorName(text string) string  { return firstMatch(doctorPatterns, text) }
func License(text string) string     { return firstMatch(licensePatterns, text) }
func PatientName(text string) string { return firstMatch(patientPatterns, text) }
func Date(text string) string        { return firstMatch(datePatterns, text) }

// firstMatch returns the first capture group of the first pattern that
// matches anywhere in text.
func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// Medications scans only lines that carry a prescribing keyword; medications
// written on lines without one are not reported. At most one mention is
// taken per line.
func Medications(text string) []Mention {
	mentions := []Mention{}
	for _, line := range strings.Split(text, "\n") {
		if !hasKeyword(line) {
			continue
		}
		m := mentionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mentions = append(mentions, Mention{Name: m[1], Dosage: m[2]})
	}
	return mentions
}

func hasKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range mentionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
