package ocr

import (
	"context"
	"errors"
)

var (
	// ErrNoText reports that recognition produced only whitespace.
	ErrNoText = errors.New("no text could be extracted from the image")
	// ErrEngineUnavailable reports that the engine or its data files are missing.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
)

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Input encapsulates a single image submitted for OCR.
type Input struct {
	// ID is an optional caller-provided identifier echoed back in the Result.
	ID string
	// Image is the encoded image payload in the format specified by Format.
	Image  []byte
	Format ImageFormat
	// DPI carries the effective dots-per-inch for the image; zero means unknown.
	DPI int
	// Languages lists trained-data names (e.g., "eng") the engine should load.
	Languages []string
	// Metadata passes engine-specific knobs (e.g., "tessedit_pageseg_mode").
	Metadata map[string]string
}

// Result captures OCR output for a single input image.
type Result struct {
	InputID   string
	PlainText string
	// Confidence is the mean word confidence in [0,1]; zero when unknown.
	Confidence float64
	Language   string
}

// Engine is the OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, input Input) (Result, error)

func (f EngineFunc) Name() string { return "func" }

func (f EngineFunc) Recognize(ctx context.Context, input Input) (Result, error) {
	return f(ctx, input)
}
