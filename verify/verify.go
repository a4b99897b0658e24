// Package verify runs the prescription verification pipeline: decode the
// upload, recognize its text, extract fields, check the prescriber, score
// tampering, analyze the medications and seal the report.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wudi/rxverify/analysis"
	"github.com/wudi/rxverify/document"
	"github.com/wudi/rxverify/extract"
	"github.com/wudi/rxverify/forensics"
	"github.com/wudi/rxverify/interaction"
	"github.com/wudi/rxverify/observability"
	"github.com/wudi/rxverify/ocr"
	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/report"
	"github.com/wudi/rxverify/risk"
	"github.com/wudi/rxverify/rx"
	"github.com/wudi/rxverify/store"
)

const referenceUnavailable = "Reference database unavailable; interaction and contraindication checks skipped"

type Option func(*Verifier)

func WithLoader(l *document.Loader) Option {
	return func(v *Verifier) {
		if l != nil {
			v.loader = l
		}
	}
}

// WithOCR sets the OCR engine and the options applied to every input.
func WithOCR(engine ocr.Engine, opts ...ocr.InputOption) Option {
	return func(v *Verifier) {
		v.engine = engine
		v.ocrOpts = append([]ocr.InputOption(nil), opts...)
	}
}

func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(v *Verifier) {
		if a != nil {
			v.analyzer = a
		}
	}
}

func WithTamperEngine(e *forensics.Engine) Option {
	return func(v *Verifier) {
		if e != nil {
			v.tamper = e
		}
	}
}

// WithReference enables the interaction and contraindication checks. Without
// it drug analysis is reported as partial.
func WithReference(interactions reference.InteractionSource, contraindications reference.ContraindicationSource) Option {
	return func(v *Verifier) {
		v.interactions = interactions
		v.contraindications = contraindications
	}
}

func WithLicenseRegistry(r reference.LicenseRegistry) Option {
	return func(v *Verifier) { v.licenses = r }
}

// WithHistory saves every sealed report. Save failures are logged only.
func WithHistory(h store.History) Option {
	return func(v *Verifier) { v.history = h }
}

func WithLogger(logger observability.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithTracer(tracer observability.Tracer) Option {
	return func(v *Verifier) {
		if tracer != nil {
			v.tracer = tracer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(v *Verifier) {
		if newID != nil {
			v.newID = newID
		}
	}
}

// Verifier is safe for concurrent use once constructed.
type Verifier struct {
	loader            *document.Loader
	engine            ocr.Engine
	ocrOpts           []ocr.InputOption
	analyzer          *analysis.Analyzer
	tamper            *forensics.Engine
	interactions      reference.InteractionSource
	contraindications reference.ContraindicationSource
	licenses          reference.LicenseRegistry
	history           store.History
	logger            observability.Logger
	tracer            observability.Tracer
	now               func() time.Time
	newID             func() string
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		loader:   document.NewLoader(),
		analyzer: analysis.New(),
		tamper:   forensics.NewEngine(forensics.DefaultConfig()),
		logger:   observability.NopLogger{},
		tracer:   observability.NopTracer(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify produces a sealed report for doc. Input problems and missing
// OCR or rasterizer dependencies fail the request with a classified error;
// reference and license store outages degrade the report instead.
func (v *Verifier) Verify(ctx context.Context, doc document.RawDocument) (env report.Envelope, err error) {
	start := v.now()
	id := v.newID()
	logger := v.logger.With(
		observability.String("verification_id", id),
		observability.String("document", doc.Name),
		observability.String("media_type", string(doc.MediaType)),
	)
	ctx, span := v.tracer.StartSpan(ctx, "verify")
	span.SetTag("verification_id", id)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	logger.Info("verification started", observability.Int("bytes", len(doc.Data)))

	page, err := v.load(ctx, doc)
	if err != nil {
		logger.Warn("document rejected", observability.Error("error", err))
		return report.Envelope{}, err
	}

	text, err := v.recognize(ctx, id, page)
	if err != nil {
		logger.Warn("text recognition failed", observability.Error("error", err))
		return report.Envelope{}, err
	}

	fields := extract.Extract(text)
	doctor := v.VerifyDoctor(ctx, fields.DoctorLicense)
	tamper := v.detect(ctx, page)
	drugs, err := v.analyzeDrugs(ctx, text, logger)
	if err != nil {
		return report.Envelope{}, err
	}

	rep := report.VerificationReport{
		ExtractedData:      fields,
		DoctorVerification: doctor,
		TamperingDetection: tamper,
		DrugAnalysis:       drugs,
	}
	env, err = report.Seal(id, start, doc.Name, doc.Data, rep)
	if err != nil {
		logger.Error("report sealing failed", observability.Error("error", err))
		return report.Envelope{}, classifyReport(err)
	}

	if v.history != nil {
		if err := v.history.SaveVerification(ctx, env); err != nil {
			logger.Warn("verification history save failed", observability.Error("error", err))
		}
	}

	logger.Info("verification finished",
		observability.String("risk_level", string(drugs.RiskLevel)),
		observability.String("analysis_status", drugs.Status),
		observability.Bool("doctor_valid", doctor.IsValid),
		observability.Bool("tampered", tamper.IsTampered),
		observability.Float64("tamper_confidence", tamper.Confidence),
		observability.Duration("elapsed", v.now().Sub(start)),
	)
	return env, nil
}

func (v *Verifier) load(ctx context.Context, doc document.RawDocument) (document.Page, error) {
	_, span := v.tracer.StartSpan(ctx, "verify.load")
	defer span.Finish()
	page, err := v.loader.Load(ctx, doc)
	if err != nil {
		span.SetError(err)
		return document.Page{}, classifyLoad(doc, err)
	}
	span.SetTag("width", page.Gray.Bounds().Dx())
	span.SetTag("height", page.Gray.Bounds().Dy())
	return page, nil
}

func (v *Verifier) recognize(ctx context.Context, id string, page document.Page) (string, error) {
	ctx, span := v.tracer.StartSpan(ctx, "verify.ocr")
	defer span.Finish()
	data, err := page.EncodePNG()
	if err != nil {
		span.SetError(err)
		return "", classifyInternal(err, "page_encode_failed", "Error preparing page for OCR")
	}
	res, err := ocr.ExtractText(ctx, v.engine, ocr.NewInput(id, data, ocr.ImageFormatPNG, v.ocrOpts...))
	if err != nil {
		span.SetError(err)
		return "", classifyOCR(err)
	}
	span.SetTag("confidence", res.Confidence)
	return res.PlainText, nil
}

func (v *Verifier) detect(ctx context.Context, page document.Page) forensics.Report {
	_, span := v.tracer.StartSpan(ctx, "verify.tamper")
	defer span.Finish()
	rep := v.tamper.Detect(page.Gray)
	span.SetTag("confidence", rep.Confidence)
	span.SetTag("issues", len(rep.DetectedIssues))
	return rep
}

func (v *Verifier) analyzeDrugs(ctx context.Context, text string, logger observability.Logger) (rx.DrugAnalysis, error) {
	ctx, span := v.tracer.StartSpan(ctx, "verify.drugs")
	defer span.Finish()

	res := v.analyzer.Analyze(text)
	if res.Status == rx.StatusError {
		return risk.Fuse(res, interaction.Findings{}), nil
	}
	if v.interactions == nil || v.contraindications == nil {
		return risk.Partial(res, referenceUnavailable), nil
	}
	findings, err := interaction.NewChecker(v.interactions, v.contraindications).Check(ctx, res.Medications)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			span.SetError(err)
			return rx.DrugAnalysis{}, classifyInternal(err, "canceled", "Verification canceled")
		}
		logger.Warn("reference check skipped", observability.Error("error", err))
		span.SetTag("degraded", true)
		return risk.Partial(res, referenceUnavailable), nil
	}
	span.SetTag("medications", len(res.Medications))
	return risk.Fuse(res, findings), nil
}
