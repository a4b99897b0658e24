// Package risk fuses analyzer output and reference findings into the drug
// analysis section of a verification report.
package risk

import (
	"github.com/wudi/rxverify/analysis"
	"github.com/wudi/rxverify/interaction"
	"github.com/wudi/rxverify/rx"
)

// Signals are the counts the policy looks at.
type Signals struct {
	Medications       int
	Interactions      int
	Contraindications int
	DosageWarnings    int
	MissingInfo       int
}

// Assess applies the policy in a fixed order. Each rule can only raise the
// level: interactions among two or more medications and any contraindication
// give high; dosage warnings and missing information give medium.
func Assess(s Signals) rx.RiskLevel {
	level := rx.RiskLow
	if s.Medications >= 2 && s.Interactions > 0 {
		level = level.Max(rx.RiskHigh)
	}
	if s.Contraindications > 0 {
		level = level.Max(rx.RiskHigh)
	}
	if s.DosageWarnings > 0 {
		level = level.Max(rx.RiskMedium)
	}
	if s.MissingInfo > 0 {
		level = level.Max(rx.RiskMedium)
	}
	return level
}

// Fuse builds the drug analysis from a completed reference check.
func Fuse(res analysis.Result, findings interaction.Findings) rx.DrugAnalysis {
	if res.Status == rx.StatusError {
		return failed(res)
	}
	out := base(res)
	out.Status = rx.StatusOK
	out.Interactions = nonNil(findings.Interactions)
	out.Contraindications = nonNil(findings.Contraindications)
	out.RiskLevel = Assess(signals(res, findings))
	return out
}

// Partial builds the drug analysis when the reference check could not run.
// Only the analyzer's own warnings contribute to the risk level.
func Partial(res analysis.Result, reason string) rx.DrugAnalysis {
	if res.Status == rx.StatusError {
		return failed(res)
	}
	out := base(res)
	out.Status = rx.StatusPartial
	out.Message = reason
	out.Interactions = []rx.Interaction{}
	out.Contraindications = []rx.Contraindication{}
	out.RiskLevel = Assess(signals(res, interaction.Findings{}))
	return out
}

func base(res analysis.Result) rx.DrugAnalysis {
	warnings := make([]string, 0, len(res.DosageWarnings)+len(res.MissingInfo))
	warnings = append(warnings, res.DosageWarnings...)
	warnings = append(warnings, res.MissingInfo...)
	return rx.DrugAnalysis{
		Medications: nonNil(res.Medications),
		Warnings:    warnings,
	}
}

func failed(res analysis.Result) rx.DrugAnalysis {
	return rx.DrugAnalysis{
		Status:            rx.StatusError,
		Message:           res.Message,
		Medications:       []rx.Medication{},
		Warnings:          []string{},
		Interactions:      []rx.Interaction{},
		Contraindications: []rx.Contraindication{},
		RiskLevel:         rx.RiskLow,
	}
}

func signals(res analysis.Result, findings interaction.Findings) Signals {
	return Signals{
		Medications:       len(res.Medications),
		Interactions:      len(findings.Interactions),
		Contraindications: len(findings.Contraindications),
		DosageWarnings:    len(res.DosageWarnings),
		MissingInfo:       len(res.MissingInfo),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
