// Package rx holds the domain types shared by the prescription verification
// pipeline: medications and dosages, reference findings, doctor records and
// the drug-analysis bundle that feeds the verification report.
package rx

// Unit is a dosage unit recognized by the extraction templates.
type Unit string

const (
	UnitMG      Unit = "mg"
	UnitG       Unit = "g"
	UnitML      Unit = "ml"
	UnitTablet  Unit = "tablet"
	UnitCapsule Unit = "capsule"
)

// ParseUnit maps a matched unit token to a Unit. Plural suffixes are stripped
// by the templates before this is called.
func ParseUnit(s string) (Unit, bool) {
	switch Unit(s) {
	case UnitMG, UnitG, UnitML, UnitTablet, UnitCapsule:
		return Unit(s), true
	}
	return "", false
}

// Dosage is an integer amount paired with its unit.
type Dosage struct {
	Amount int  `json:"amount" bson:"amount"`
	Unit   Unit `json:"unit" bson:"unit"`
}

// Medication is one detected drug mention. Several medications may share a
// name; detections are never merged.
type Medication struct {
	Name   string `json:"name" bson:"name"`
	Dosage Dosage `json:"dosage" bson:"dosage"`
}

// Severity classifies interaction and contraindication findings.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityUnknown  Severity = "unknown"
)

// ParseSeverity normalizes stored severities; anything unrecognized is
// reported as unknown.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityMinor, SeverityModerate, SeveritySevere:
		return Severity(s)
	}
	return SeverityUnknown
}

// Interaction is a finding for one unordered pair of medications.
type Interaction struct {
	DrugA       string   `json:"drug_a" bson:"drug1"`
	DrugB       string   `json:"drug_b" bson:"drug2"`
	Severity    Severity `json:"severity" bson:"severity"`
	Description string   `json:"description" bson:"description"`
}

// Contraindication lists the conditions under which a drug must not be given.
type Contraindication struct {
	Drug        string   `json:"drug" bson:"drug_name"`
	Conditions  []string `json:"conditions" bson:"conditions"`
	Severity    Severity `json:"severity" bson:"severity"`
	Description string   `json:"description,omitempty" bson:"description,omitempty"`
}

// Doctor is a licensed prescriber as held by the license registry.
type Doctor struct {
	LicenseNumber string `json:"license_number" bson:"license_number"`
	Name          string `json:"name" bson:"name"`
	Specialty     string `json:"specialty" bson:"specialty"`
	Status        string `json:"status" bson:"status"`
}

// DoctorInfo is the registry excerpt embedded in a successful verification.
type DoctorInfo struct {
	Name          string `json:"name" bson:"name"`
	Specialty     string `json:"specialty" bson:"specialty"`
	LicenseStatus string `json:"license_status" bson:"license_status"`
}

// DoctorVerification is the outcome of checking the extracted license number.
type DoctorVerification struct {
	IsValid    bool        `json:"is_valid" bson:"is_valid"`
	Message    string      `json:"message,omitempty" bson:"message,omitempty"`
	DoctorInfo *DoctorInfo `json:"doctor_info,omitempty" bson:"doctor_info,omitempty"`
}

// RiskLevel is the fused classification of a prescription.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 0
	}
}

// Max returns the more severe of r and o.
func (r RiskLevel) Max(o RiskLevel) RiskLevel {
	if o.rank() > r.rank() {
		return o
	}
	if r == "" {
		return RiskLow
	}
	return r
}

// Analysis status values.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// DrugAnalysis is the fused output of the analyzer and the reference checker.
type DrugAnalysis struct {
	Status            string             `json:"status" bson:"status"`
	Message           string             `json:"message,omitempty" bson:"message,omitempty"`
	Medications       []Medication       `json:"medications" bson:"medications"`
	Warnings          []string           `json:"warnings" bson:"warnings"`
	Interactions      []Interaction      `json:"interactions" bson:"interactions"`
	Contraindications []Contraindication `json:"contraindications" bson:"contraindications"`
	RiskLevel         RiskLevel          `json:"risk_level" bson:"risk_level"`
}
