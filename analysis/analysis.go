// Package analysis extracts medication/dosage pairs from prescription text
// and flags implausible dosages and missing information.
package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wudi/rxverify/rx"
)

const drugName = `([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`
const dosageUnit = `(mg|g|ml|tablet|capsule)s?`

// Template is one extraction pattern together with the capture-group index of
// each component.
type Template struct {
	Name    string
	Pattern *regexp.Regexp
	NameAt  int
	AmtAt   int
	UnitAt  int
}

// DefaultTemplates are applied in order over the full text. A dosage mention
// satisfying several templates is reported once per template.
func DefaultTemplates() []Template {
	return []Template{
		{
			Name:    "amount-unit-of-name",
			Pattern: regexp.MustCompile(`(\d+)\s*` + dosageUnit + `\s+of\s+` + drugName),
			AmtAt:   1,
			UnitAt:  2,
			NameAt:  3,
		},
		{
			Name:    "name-amount-unit",
			Pattern: regexp.MustCompile(drugName + `\s+(\d+)\s*` + dosageUnit),
			NameAt:  1,
			AmtAt:   2,
			UnitAt:  3,
		},
		{
			Name:    "rx-name-amount-unit",
			Pattern: regexp.MustCompile(`Rx:\s*` + drugName + `\s*(\d+)\s*` + dosageUnit),
			NameAt:  1,
			AmtAt:   2,
			UnitAt:  3,
		},
	}
}

// DosageLimits are the per-unit amounts above which a dosage is flagged.
// Units without a limit are never flagged.
type DosageLimits struct {
	MaxMG int
	MaxG  int
}

// DefaultDosageLimits flags more than 1000 mg or more than 2 g.
func DefaultDosageLimits() DosageLimits {
	return DosageLimits{MaxMG: 1000, MaxG: 2}
}

type requiredField struct {
	name    string
	pattern *regexp.Regexp
}

var requiredFields = []requiredField{
	{"patient", regexp.MustCompile(`patient|name`)},
	{"date", regexp.MustCompile(`date|prescribed`)},
	{"doctor", regexp.MustCompile(`dr\.|doctor|physician`)},
	{"instructions", regexp.MustCompile(`take|use|apply|dosage|frequency`)},
}

// Result is the analyzer output. A Status of rx.StatusError carries a
// Message and no findings.
type Result struct {
	Status         string
	Message        string
	Medications    []rx.Medication
	DosageWarnings []string
	MissingInfo    []string
}

// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	templates []Template
	limits    DosageLimits
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithTemplates replaces the extraction templates.
func WithTemplates(templates ...Template) Option {
	return func(a *Analyzer) { a.templates = append([]Template(nil), templates...) }
}

// WithDosageLimits overrides the dosage thresholds.
func WithDosageLimits(limits DosageLimits) Option {
	return func(a *Analyzer) { a.limits = limits }
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{templates: DefaultTemplates(), limits: DefaultDosageLimits()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs extraction, the dosage check and the missing-information
// check. Blank text yields an error-status result.
func (a *Analyzer) Analyze(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{
			Status:  rx.StatusError,
			Message: "No prescription text provided",
		}
	}
	meds := a.ExtractMedications(text)
	return Result{
		Status:         rx.StatusOK,
		Medications:    meds,
		DosageWarnings: a.CheckDosages(meds),
		MissingInfo:    CheckMissingInformation(text),
	}
}

// ExtractMedications applies every template independently and concatenates
// the matches in template order.
func (a *Analyzer) ExtractMedications(text string) []rx.Medication {
	meds := []rx.Medication{}
	for _, tpl := range a.templates {
		for _, m := range tpl.Pattern.FindAllStringSubmatch(text, -1) {
			// Overflowing amounts saturate at the largest int.
			amount, err := strconv.Atoi(m[tpl.AmtAt])
			if err != nil && !errors.Is(err, strconv.ErrRange) {
				continue
			}
			unit, ok := rx.ParseUnit(m[tpl.UnitAt])
			if !ok {
				continue
			}
			meds = append(meds, rx.Medication{
				Name:   strings.TrimSpace(m[tpl.NameAt]),
				Dosage: rx.Dosage{Amount: amount, Unit: unit},
			})
		}
	}
	return meds
}

// CheckDosages returns one warning per medication above its unit's limit.
func (a *Analyzer) CheckDosages(meds []rx.Medication) []string {
	warnings := []string{}
	for _, med := range meds {
		var limit int
		switch med.Dosage.Unit {
		case rx.UnitMG:
			limit = a.limits.MaxMG
		case rx.UnitG:
			limit = a.limits.MaxG
		default:
			continue
		}
		if med.Dosage.Amount > limit {
			warnings = append(warnings, fmt.Sprintf("High dosage detected for %s: %d%s", med.Name, med.Dosage.Amount, med.Dosage.Unit))
		}
	}
	return warnings
}

// CheckMissingInformation reports each required field whose keywords appear
// nowhere in the lowercased text. Presence anywhere counts; position is not
// considered.
func CheckMissingInformation(text string) []string {
	lower := strings.ToLower(text)
	missing := []string{}
	for _, f := range requiredFields {
		if !f.pattern.MatchString(lower) {
			missing = append(missing, fmt.Sprintf("Missing %s information", f.name))
		}
	}
	return missing
}
