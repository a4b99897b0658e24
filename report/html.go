package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderHTML renders the envelope as an HTML fragment for archiving next to
// the original document. Raw HTML in OCR text is not passed through.
func RenderHTML(env Envelope) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(env)), &buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Markdown renders the envelope as a Markdown document.
func Markdown(env Envelope) string {
	rep := env.Report
	var b strings.Builder
	b.WriteString("# Prescription verification report\n\n")
	fmt.Fprintf(&b, "- ID: `%s`\n", env.ID)
	fmt.Fprintf(&b, "- Created: %s\n", env.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Document digest: `%s`\n", env.DocumentDigest)
	fmt.Fprintf(&b, "- Report digest: `%s`\n\n", env.ReportDigest)

	b.WriteString("## Extracted data\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	row(&b, "Doctor", rep.ExtractedData.DoctorName)
	row(&b, "License", rep.ExtractedData.DoctorLicense)
	row(&b, "Patient", rep.ExtractedData.PatientName)
	row(&b, "Date", rep.ExtractedData.Date)
	b.WriteString("\n")

	b.WriteString("## Doctor verification\n\n")
	dv := rep.DoctorVerification
	if dv.IsValid {
		b.WriteString("License verified.\n\n")
		if dv.DoctorInfo != nil {
			b.WriteString("| Name | Specialty | Status |\n|---|---|---|\n")
			fmt.Fprintf(&b, "| %s | %s | %s |\n\n", cell(dv.DoctorInfo.Name), cell(dv.DoctorInfo.Specialty), cell(dv.DoctorInfo.LicenseStatus))
		}
	} else {
		fmt.Fprintf(&b, "License not verified: %s\n\n", inline(dv.Message))
	}

	b.WriteString("## Tampering detection\n\n")
	td := rep.TamperingDetection
	fmt.Fprintf(&b, "- Tampered: %t\n- Confidence: %.2f\n", td.IsTampered, td.Confidence)
	for _, issue := range td.DetectedIssues {
		fmt.Fprintf(&b, "- %s\n", inline(issue))
	}
	b.WriteString("\n")

	da := rep.DrugAnalysis
	fmt.Fprintf(&b, "## Drug analysis (risk: %s)\n\n", da.RiskLevel)
	if da.Message != "" {
		fmt.Fprintf(&b, "%s\n\n", inline(da.Message))
	}
	if len(da.Medications) > 0 {
		b.WriteString("| Medication | Amount | Unit |\n|---|---|---|\n")
		for _, m := range da.Medications {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", cell(m.Name), m.Dosage.Amount, m.Dosage.Unit)
		}
		b.WriteString("\n")
	}
	for _, w := range da.Warnings {
		fmt.Fprintf(&b, "- %s\n", inline(w))
	}
	if len(da.Warnings) > 0 {
		b.WriteString("\n")
	}
	if len(da.Interactions) > 0 {
		b.WriteString("| Drug A | Drug B | Severity | Description |\n|---|---|---|---|\n")
		for _, in := range da.Interactions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(in.DrugA), cell(in.DrugB), in.Severity, cell(in.Description))
		}
		b.WriteString("\n")
	}
	if len(da.Contraindications) > 0 {
		b.WriteString("| Drug | Conditions | Severity |\n|---|---|---|\n")
		for _, c := range da.Contraindications {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(c.Drug), cell(strings.Join(c.Conditions, ", ")), c.Severity)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func row(b *strings.Builder, field, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(b, "| %s | %s |\n", field, cell(value))
}

var inlineEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"`", "\\`",
	"*", "\\*",
	"_", "\\_",
	"[", "\\[",
	"]", "\\]",
	"<", "&lt;",
	">", "&gt;",
	"#", "\\#",
	"\n", " ",
	"\r", " ",
)

func inline(s string) string { return inlineEscaper.Replace(s) }

func cell(s string) string { return strings.ReplaceAll(inline(s), "|", "\\|") }
