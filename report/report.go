// Package report assembles the verification report, validates it against
// the published JSON schema and derives content digests for archival.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wudi/rxverify/extract"
	"github.com/wudi/rxverify/forensics"
	"github.com/wudi/rxverify/rx"
)

// VerificationReport is the per-document result. It is built once and not
// modified afterwards.
type VerificationReport struct {
	ExtractedData      extract.Fields        `json:"extracted_data" bson:"extracted_data"`
	DoctorVerification rx.DoctorVerification `json:"doctor_verification" bson:"doctor_verification"`
	TamperingDetection forensics.Report      `json:"tampering_detection" bson:"tampering_detection"`
	DrugAnalysis       rx.DrugAnalysis       `json:"drug_analysis" bson:"drug_analysis"`
}

// Envelope wraps a report with identity and integrity metadata.
type Envelope struct {
	ID             string             `json:"id" bson:"_id"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	DocumentName   string             `json:"document_name,omitempty" bson:"document_name,omitempty"`
	DocumentDigest string             `json:"document_digest" bson:"document_digest"`
	ReportDigest   string             `json:"report_digest" bson:"report_digest"`
	DoctorLicense  string             `json:"doctor_license,omitempty" bson:"doctor_license,omitempty"`
	Report         VerificationReport `json:"report" bson:"report"`
}

// Seal validates rep and returns its envelope. The report digest covers the
// canonical JSON of the report only.
func Seal(id string, createdAt time.Time, documentName string, document []byte, rep VerificationReport) (Envelope, error) {
	raw, err := json.Marshal(rep)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal report: %w", err)
	}
	if err := Validate(raw); err != nil {
		return Envelope{}, err
	}
	digest, err := CanonicalDigest(raw)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:             id,
		CreatedAt:      createdAt.UTC(),
		DocumentName:   documentName,
		DocumentDigest: DocumentDigest(document),
		ReportDigest:   digest,
		DoctorLicense:  rep.ExtractedData.DoctorLicense,
		Report:         rep,
	}, nil
}

// Verify recomputes the report digest and compares it with the stored one.
func (e Envelope) Verify() error {
	raw, err := json.Marshal(e.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	digest, err := CanonicalDigest(raw)
	if err != nil {
		return err
	}
	if digest != e.ReportDigest {
		return fmt.Errorf("report digest mismatch: stored %s, computed %s", e.ReportDigest, digest)
	}
	return nil
}
