package verify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/wudi/rxverify/document"
	rxerrors "github.com/wudi/rxverify/errors"
	"github.com/wudi/rxverify/forensics"
	"github.com/wudi/rxverify/ocr"
	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/report"
	"github.com/wudi/rxverify/rx"
	"github.com/wudi/rxverify/store"
)

const prescription = `Dr. John Smith
License Number: MD12345
Patient: Jane Doe
Date: 01/02/2024
Medication: Warfarin 5mg
Aspirin 100mg
Take once daily`

func pngDocument(t *testing.T) document.RawDocument {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return document.New("rx.png", buf.Bytes())
}

func textEngine(text string) ocr.Engine {
	return ocr.EngineFunc(func(context.Context, ocr.Input) (ocr.Result, error) {
		return ocr.Result{PlainText: text, Confidence: 0.9}, nil
	})
}

func quietTamper(overrides ...forensics.Option) *forensics.Engine {
	zero := forensics.DetectorFunc(func(*image.Gray) (float64, error) { return 0, nil })
	opts := []forensics.Option{
		forensics.WithDetector(forensics.Noise, zero),
		forensics.WithDetector(forensics.Alignment, zero),
		forensics.WithDetector(forensics.Compression, zero),
		forensics.WithDetector(forensics.Font, zero),
	}
	return forensics.NewEngine(forensics.DefaultConfig(), append(opts, overrides...)...)
}

func seededTable(t *testing.T) *reference.Table {
	t.Helper()
	table := reference.NewTable()
	ctx := context.Background()
	if err := table.AddDoctor(ctx, rx.Doctor{LicenseNumber: "MD12345", Name: "John Smith", Specialty: "Cardiology", Status: "active"}); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	if err := table.UpsertInteraction(ctx, rx.Interaction{DrugA: "Aspirin", DrugB: "Warfarin", Severity: rx.SeveritySevere, Description: "Increased bleeding risk"}); err != nil {
		t.Fatalf("seed interaction: %v", err)
	}
	return table
}

func fixed(opts ...Option) *Verifier {
	base := []Option{
		WithClock(func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { return "ver-1" }),
		WithTamperEngine(quietTamper()),
	}
	return New(append(base, opts...)...)
}

func TestVerifyProducesSealedReport(t *testing.T) {
	table := seededTable(t)
	history := store.NewMemory()
	v := fixed(
		WithOCR(textEngine(prescription)),
		WithReference(table, table),
		WithLicenseRegistry(table),
		WithHistory(history),
	)

	env, err := v.Verify(context.Background(), pngDocument(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if env.ID != "ver-1" || env.DoctorLicense != "MD12345" {
		t.Fatalf("unexpected envelope identity: %q %q", env.ID, env.DoctorLicense)
	}
	if err := env.Verify(); err != nil {
		t.Fatalf("envelope digest: %v", err)
	}

	rep := env.Report
	if rep.ExtractedData.DoctorName != "John Smith" || rep.ExtractedData.PatientName != "Jane Doe" {
		t.Fatalf("unexpected extracted fields: %+v", rep.ExtractedData)
	}
	doc := rep.DoctorVerification
	if !doc.IsValid || doc.DoctorInfo == nil || doc.DoctorInfo.LicenseStatus != "active" {
		t.Fatalf("unexpected doctor verification: %+v", doc)
	}
	drugs := rep.DrugAnalysis
	if drugs.Status != rx.StatusOK || drugs.RiskLevel != rx.RiskHigh {
		t.Fatalf("unexpected drug analysis: %+v", drugs)
	}
	if len(drugs.Medications) != 2 || len(drugs.Interactions) != 1 || len(drugs.Contraindications) != 2 {
		t.Fatalf("unexpected finding counts: %+v", drugs)
	}
	if drugs.Interactions[0].Severity != rx.SeveritySevere {
		t.Fatalf("expected severe interaction, got %+v", drugs.Interactions[0])
	}
	if rep.TamperingDetection.IsTampered || len(rep.TamperingDetection.DetectedIssues) != 0 {
		t.Fatalf("unexpected tamper report: %+v", rep.TamperingDetection)
	}

	saved, err := history.GetVerification(context.Background(), "ver-1")
	if err != nil {
		t.Fatalf("history lookup: %v", err)
	}
	if saved.ReportDigest != env.ReportDigest {
		t.Fatalf("saved digest %q, want %q", saved.ReportDigest, env.ReportDigest)
	}
}

func TestVerifyWithoutReferenceIsPartial(t *testing.T) {
	text := "Dr. John Smith\nPatient: Jane Doe\nDate: 01/02/2024\nIbuprofen 1500mg take twice daily"
	v := fixed(WithOCR(textEngine(text)))

	env, err := v.Verify(context.Background(), pngDocument(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	drugs := env.Report.DrugAnalysis
	if drugs.Status != rx.StatusPartial || drugs.RiskLevel != rx.RiskMedium {
		t.Fatalf("expected partial medium analysis, got %+v", drugs)
	}
	if len(drugs.Interactions) != 0 || len(drugs.Contraindications) != 0 {
		t.Fatalf("expected no findings, got %+v", drugs)
	}
	if len(drugs.Warnings) != 1 || !strings.Contains(drugs.Warnings[0], "Ibuprofen") {
		t.Fatalf("unexpected warnings: %v", drugs.Warnings)
	}
	if env.Report.DoctorVerification.Message != msgNoLicense {
		t.Fatalf("unexpected doctor message: %q", env.Report.DoctorVerification.Message)
	}
}

func TestVerifyDegradesOnReferenceOutage(t *testing.T) {
	down := reference.InteractionFunc(func(context.Context, string, string) (rx.Interaction, bool, error) {
		return rx.Interaction{}, false, reference.ErrUnavailable
	})
	table := seededTable(t)
	v := fixed(WithOCR(textEngine(prescription)), WithReference(down, table))

	env, err := v.Verify(context.Background(), pngDocument(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if env.Report.DrugAnalysis.Status != rx.StatusPartial {
		t.Fatalf("expected partial analysis, got %+v", env.Report.DrugAnalysis)
	}
}

func TestVerifyReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := reference.InteractionFunc(func(ctx context.Context, _, _ string) (rx.Interaction, bool, error) {
		cancel()
		return rx.Interaction{}, false, ctx.Err()
	})
	table := seededTable(t)
	v := fixed(WithOCR(textEngine(prescription)), WithReference(cancelling, table))

	_, err := v.Verify(ctx, pngDocument(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestVerifyRecordsTamperIssues(t *testing.T) {
	hot := forensics.DetectorFunc(func(*image.Gray) (float64, error) { return 1, nil })
	v := fixed(
		WithOCR(textEngine(prescription)),
		WithTamperEngine(quietTamper(
			forensics.WithDetector(forensics.Noise, hot),
			forensics.WithDetector(forensics.Compression, hot),
		)),
	)
	env, err := v.Verify(context.Background(), pngDocument(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	tamper := env.Report.TamperingDetection
	want := []string{forensics.IssueNoise, forensics.IssueCompression}
	if strings.Join(tamper.DetectedIssues, "|") != strings.Join(want, "|") {
		t.Fatalf("issues = %v, want %v", tamper.DetectedIssues, want)
	}
	if !tamper.IsTampered {
		t.Fatalf("expected tampered report: %+v", tamper)
	}
}

type failingHistory struct{ *store.Memory }

func (failingHistory) SaveVerification(context.Context, report.Envelope) error {
	return errors.New("disk full")
}

func TestVerifyIgnoresHistoryFailure(t *testing.T) {
	v := fixed(WithOCR(textEngine(prescription)), WithHistory(failingHistory{store.NewMemory()}))
	if _, err := v.Verify(context.Background(), pngDocument(t)); err != nil {
		t.Fatalf("history failure should not fail verification: %v", err)
	}
}

type missingPoppler struct{}

func (missingPoppler) RasterizeFirstPage(context.Context, []byte) (image.Image, error) {
	return nil, &document.RasterizerError{Err: exec.ErrNotFound, Guide: "apt-get install poppler-utils"}
}

type emptyPDF struct{}

func (emptyPDF) RasterizeFirstPage(context.Context, []byte) (image.Image, error) {
	return nil, document.ErrNoPages
}

func TestVerifyClassifiesFailures(t *testing.T) {
	pdf := document.New("rx.pdf", []byte("%PDF-1.4\n%%EOF"))
	engineDown := ocr.EngineFunc(func(context.Context, ocr.Input) (ocr.Result, error) {
		return ocr.Result{}, ocr.ErrEngineUnavailable
	})
	engineBroken := ocr.EngineFunc(func(context.Context, ocr.Input) (ocr.Result, error) {
		return ocr.Result{}, errors.New("segfault")
	})

	cases := []struct {
		name     string
		opts     []Option
		doc      document.RawDocument
		category rxerrors.Category
		code     string
		message  string
	}{
		{
			name:     "empty upload",
			opts:     []Option{WithOCR(textEngine(prescription))},
			doc:      document.New("empty.png", nil),
			category: rxerrors.CategoryInvalidInput,
			code:     "empty_document",
		},
		{
			name:     "not an image",
			opts:     []Option{WithOCR(textEngine(prescription))},
			doc:      document.New("notes.txt", []byte("plain text")),
			category: rxerrors.CategoryInvalidInput,
			code:     "unreadable_document",
			message:  "Error opening image",
		},
		{
			name:     "pdf without rasterizer",
			opts:     []Option{WithOCR(textEngine(prescription))},
			doc:      pdf,
			category: rxerrors.CategoryDependencyMissing,
			code:     "rasterizer_unavailable",
			message:  "PDF processing requires Poppler",
		},
		{
			name:     "poppler missing",
			opts:     []Option{WithOCR(textEngine(prescription)), WithLoader(document.NewLoader(document.WithRasterizer(missingPoppler{})))},
			doc:      pdf,
			category: rxerrors.CategoryDependencyMissing,
			code:     "rasterizer_unavailable",
		},
		{
			name:     "pdf without pages",
			opts:     []Option{WithOCR(textEngine(prescription)), WithLoader(document.NewLoader(document.WithRasterizer(emptyPDF{})))},
			doc:      pdf,
			category: rxerrors.CategoryInvalidInput,
			code:     "pdf_no_pages",
			message:  "Could not extract any pages from the PDF.",
		},
		{
			name:     "blank text",
			opts:     []Option{WithOCR(textEngine("  \n "))},
			doc:      pngDocument(t),
			category: rxerrors.CategoryInvalidInput,
			code:     "no_text",
			message:  "No text could be extracted from the image.",
		},
		{
			name:     "no ocr engine",
			doc:      pngDocument(t),
			category: rxerrors.CategoryDependencyMissing,
			code:     "ocr_unavailable",
		},
		{
			name:     "ocr engine missing data",
			opts:     []Option{WithOCR(engineDown)},
			doc:      pngDocument(t),
			category: rxerrors.CategoryDependencyMissing,
			code:     "ocr_unavailable",
			message:  "Error during OCR processing",
		},
		{
			name:     "ocr engine crash",
			opts:     []Option{WithOCR(engineBroken)},
			doc:      pngDocument(t),
			category: rxerrors.CategoryInternalFailure,
			code:     "ocr_failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fixed(tc.opts...).Verify(context.Background(), tc.doc)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := rxerrors.CategoryOf(err); got != tc.category {
				t.Fatalf("category = %q, want %q (%v)", got, tc.category, err)
			}
			if got := rxerrors.CodeOf(err); got != tc.code {
				t.Fatalf("code = %q, want %q", got, tc.code)
			}
			if tc.message != "" && !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("message %q does not contain %q", err.Error(), tc.message)
			}
			if rxerrors.HintOf(err) == "" && tc.category != rxerrors.CategoryInternalFailure {
				t.Fatalf("expected remediation hint for %v", err)
			}
		})
	}
}

func TestVerifyPopplerGuideIsHint(t *testing.T) {
	v := fixed(
		WithOCR(textEngine(prescription)),
		WithLoader(document.NewLoader(document.WithRasterizer(missingPoppler{}))),
	)
	_, err := v.Verify(context.Background(), document.New("rx.pdf", []byte("%PDF-1.7")))
	if got := rxerrors.HintOf(err); got != "apt-get install poppler-utils" {
		t.Fatalf("hint = %q", got)
	}
}

func TestVerifyDoctor(t *testing.T) {
	table := seededTable(t)
	ctx := context.Background()
	if err := table.AddDoctor(ctx, rx.Doctor{LicenseNumber: "MD999", Name: "Ann Lee", Specialty: "Dermatology", Status: "suspended"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	down := reference.LicenseFunc(func(context.Context, string) (rx.Doctor, bool, error) {
		return rx.Doctor{}, false, reference.ErrUnavailable
	})

	cases := []struct {
		name     string
		registry reference.LicenseRegistry
		license  string
		valid    bool
		message  string
		status   string
	}{
		{"empty license", table, "", false, msgNoLicense, ""},
		{"no registry", nil, "MD12345", false, msgLicenseUnavailable, ""},
		{"registry down", down, "MD12345", false, msgLicenseUnavailable, ""},
		{"unknown license", table, "XX000", false, msgLicenseNotFound, ""},
		{"active doctor", table, "MD12345", true, "", "active"},
		{"suspended doctor is still registered", table, "MD999", true, "", "suspended"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var opts []Option
			if tc.registry != nil {
				opts = append(opts, WithLicenseRegistry(tc.registry))
			}
			got := New(opts...).VerifyDoctor(ctx, tc.license)
			if got.IsValid != tc.valid || got.Message != tc.message {
				t.Fatalf("got %+v", got)
			}
			if tc.valid && (got.DoctorInfo == nil || got.DoctorInfo.LicenseStatus != tc.status) {
				t.Fatalf("unexpected doctor info: %+v", got.DoctorInfo)
			}
			if !tc.valid && got.DoctorInfo != nil {
				t.Fatalf("invalid verification carries doctor info: %+v", got.DoctorInfo)
			}
		})
	}
}
