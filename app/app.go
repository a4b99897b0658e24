// Package app assembles the verifier and its stores from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/rxverify/config"
	"github.com/wudi/rxverify/document"
	"github.com/wudi/rxverify/forensics"
	"github.com/wudi/rxverify/observability"
	"github.com/wudi/rxverify/ocr"
	"github.com/wudi/rxverify/ocr/tesseract"
	"github.com/wudi/rxverify/reference"
	"github.com/wudi/rxverify/store"
	"github.com/wudi/rxverify/store/mongo"
	"github.com/wudi/rxverify/store/postgres"
	"github.com/wudi/rxverify/verify"
)

// App holds the wired components. Nil stores mean the capability is not
// configured.
type App struct {
	Verifier *verify.Verifier
	History  store.History
	Doctors  reference.DoctorWriter
	Findings reference.FindingWriter

	closers []func(context.Context) error
}

type options struct {
	engine ocr.Engine
	skipDB bool
}

type Option func(*options)

// WithOCREngine replaces the Tesseract engine.
func WithOCREngine(engine ocr.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithoutDatabases ignores the Postgres and MongoDB settings.
func WithoutDatabases() Option {
	return func(o *options) { o.skipDB = true }
}

// Build connects the configured stores and constructs the verifier. The
// returned App must be closed.
func Build(ctx context.Context, cfg config.Config, logger observability.Logger, opts ...Option) (*App, error) {
	o := options{engine: tesseract.NewTesseractEngine()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}

	fcfg := cfg.ForensicsConfig()
	if err := fcfg.Validate(); err != nil {
		return nil, fmt.Errorf("forensics config: %w", err)
	}

	a := &App{}
	var (
		interactions      reference.InteractionSource
		contraindications reference.ContraindicationSource
		licenses          reference.LicenseRegistry
	)

	if cfg.Reference.SeedFile != "" {
		table, err := reference.LoadSeed(cfg.Reference.SeedFile)
		if err != nil {
			return nil, err
		}
		interactions, contraindications, licenses = table, table, table
		a.Findings, a.Doctors = table, table
		logger.Info("reference seed loaded", observability.String("path", cfg.Reference.SeedFile))
	}

	if !o.skipDB && cfg.Reference.PostgresURL != "" {
		pg, err := postgres.Open(ctx, cfg.Reference.PostgresURL)
		switch {
		case errors.Is(err, reference.ErrUnavailable):
			logger.Warn("reference database unreachable; continuing without it", observability.Error("error", err))
		case err != nil:
			a.Close(ctx)
			return nil, err
		default:
			a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
			if err := pg.EnsureSchema(ctx); err != nil {
				a.Close(ctx)
				return nil, err
			}
			interactions, contraindications = pg, pg
			a.Findings = pg
			logger.Info("reference database connected")
		}
	}

	if !o.skipDB && cfg.Registry.MongoDBURI != "" {
		mg, err := mongo.Open(ctx, cfg.Registry.MongoDBURI, cfg.Registry.Database)
		switch {
		case errors.Is(err, reference.ErrUnavailable):
			logger.Warn("registry database unreachable; continuing without it", observability.Error("error", err))
		case err != nil:
			a.Close(ctx)
			return nil, err
		default:
			a.closers = append(a.closers, mg.Close)
			if err := mg.EnsureIndexes(ctx); err != nil {
				a.Close(ctx)
				return nil, err
			}
			licenses = mg
			a.Doctors = mg
			a.History = mg
			logger.Info("registry database connected", observability.String("database", cfg.Registry.Database))
		}
	}
	if a.History == nil {
		a.History = store.NewMemory()
	}
	if interactions == nil {
		logger.Warn("no reference data configured; drug checks will be partial")
	}
	if licenses == nil {
		logger.Warn("no license registry configured")
	}

	limits := document.DefaultLimits()
	if cfg.Document.MaxPixels > 0 {
		limits.MaxPixels = cfg.Document.MaxPixels
	}
	if cfg.Document.WorkPixels > 0 {
		limits.WorkPixels = cfg.Document.WorkPixels
	}
	loader := document.NewLoader(
		document.WithRasterizer(document.Poppler{Path: cfg.Document.PdftoppmPath, DPI: cfg.Document.DPI}),
		document.WithLimits(limits),
		document.WithLogger(logger),
	)

	ocrOpts := []ocr.InputOption{ocr.WithLanguages(cfg.OCR.Languages...), ocr.WithDPI(cfg.OCR.DPI)}
	if cfg.OCR.PSM > 0 {
		ocrOpts = append(ocrOpts, ocr.WithTesseractPSM(cfg.OCR.PSM))
	}

	vopts := []verify.Option{
		verify.WithLoader(loader),
		verify.WithOCR(o.engine, ocrOpts...),
		verify.WithTamperEngine(forensics.NewEngine(fcfg, forensics.WithLogger(logger))),
		verify.WithLicenseRegistry(licenses),
		verify.WithHistory(a.History),
		verify.WithLogger(logger),
		verify.WithTracer(observability.LogTracer(logger)),
	}
	if interactions != nil {
		vopts = append(vopts, verify.WithReference(interactions, contraindications))
	}
	a.Verifier = verify.New(vopts...)
	return a, nil
}

// Close releases database connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
