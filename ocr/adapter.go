package ocr

import (
	"context"
	"fmt"
	"strings"
)

// InputOption mutates an OCR input.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// NewInput builds an input for an encoded page image.
func NewInput(id string, image []byte, format ImageFormat, opts ...InputOption) Input {
	in := Input{ID: id, Image: image, Format: format}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

// ExtractText runs engine on in and returns the recognized text. A nil engine
// reports ErrEngineUnavailable and whitespace-only output reports ErrNoText.
func ExtractText(ctx context.Context, engine Engine, in Input) (Result, error) {
	if engine == nil {
		return Result{}, ErrEngineUnavailable
	}
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", engine.Name(), err)
	}
	if strings.TrimSpace(res.PlainText) == "" {
		return Result{}, ErrNoText
	}
	return res, nil
}
