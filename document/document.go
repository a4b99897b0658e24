// Package document turns an uploaded prescription into a decoded page image.
// Raster formats are decoded in process; PDFs are rasterized by an external
// Rasterizer and only the first page is used.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/rxverify/observability"
)

var (
	ErrEmpty                 = errors.New("document is empty")
	ErrUnreadableFormat      = errors.New("unreadable document format")
	ErrNoPages               = errors.New("pdf contains no pages")
	ErrRasterizerUnavailable = errors.New("pdf rasterizer unavailable")
	ErrTooLarge              = errors.New("image exceeds size limits")
)

// MediaType is the coarse kind of an uploaded document.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaPDF   MediaType = "pdf"
)

// RawDocument is an uploaded file as received.
type RawDocument struct {
	Name      string
	MediaType MediaType
	Data      []byte
}

var pdfMagic = []byte("%PDF-")

// DetectMediaType classifies a file by extension, falling back to the PDF
// signature when the name carries no hint.
func DetectMediaType(name string, data []byte) MediaType {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return MediaPDF
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return MediaPDF
	}
	return MediaImage
}

// New builds a RawDocument and detects its media type.
func New(name string, data []byte) RawDocument {
	return RawDocument{Name: name, MediaType: DetectMediaType(name, data), Data: data}
}

// Page is the decoded first page of a document.
type Page struct {
	Image image.Image
	Gray  *image.Gray
}

// EncodePNG serializes the page for OCR engines that accept encoded images.
func (p Page) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return buf.Bytes(), nil
}

// Rasterizer renders the first page of a PDF.
type Rasterizer interface {
	RasterizeFirstPage(ctx context.Context, pdf []byte) (image.Image, error)
}

type Option func(*Loader)

func WithRasterizer(r Rasterizer) Option {
	return func(l *Loader) { l.rasterizer = r }
}

func WithLimits(limits Limits) Option {
	return func(l *Loader) { l.limits = limits }
}

func WithLogger(logger observability.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader decodes documents into pages.
type Loader struct {
	rasterizer Rasterizer
	limits     Limits
	logger     observability.Logger
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{limits: DefaultLimits(), logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load decodes doc. Images larger than the working pixel budget are
// downscaled before analysis.
func (l *Loader) Load(ctx context.Context, doc RawDocument) (Page, error) {
	if len(doc.Data) == 0 {
		return Page{}, ErrEmpty
	}
	var (
		img image.Image
		err error
	)
	switch doc.MediaType {
	case MediaPDF:
		if l.rasterizer == nil {
			return Page{}, ErrRasterizerUnavailable
		}
		img, err = l.rasterizer.RasterizeFirstPage(ctx, doc.Data)
		if err != nil {
			return Page{}, err
		}
		if err := l.limits.validate(img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
			return Page{}, err
		}
	default:
		img, err = l.decode(doc.Data)
		if err != nil {
			return Page{}, err
		}
	}
	if scaled, ok := l.limits.downscale(img); ok {
		l.logger.Debug("document downscaled",
			observability.Int("width", img.Bounds().Dx()),
			observability.Int("height", img.Bounds().Dy()),
			observability.Int("scaled_width", scaled.Bounds().Dx()),
			observability.Int("scaled_height", scaled.Bounds().Dy()))
		img = scaled
	}
	return Page{Image: img, Gray: ToGray(img)}, nil
}

func (l *Loader) decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFormat, err)
	}
	if err := l.limits.validate(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnreadableFormat, format, err)
	}
	return img, nil
}

// ToGray converts img to 8-bit luma with its origin at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}
