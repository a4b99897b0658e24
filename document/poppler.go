package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const defaultRasterDPI = 200

// Poppler rasterizes PDFs with the pdftoppm command line tool.
type Poppler struct {
	// Path is the pdftoppm executable; empty means look it up on PATH.
	Path string
	// DPI is the render resolution; zero means 200.
	DPI int
}

// RasterizeFirstPage renders page one into a temporary directory and decodes
// the resulting PNG. The directory is removed before returning.
func (p Poppler) RasterizeFirstPage(ctx context.Context, pdf []byte) (image.Image, error) {
	bin, err := p.binary()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "rxverify-pdf-")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = defaultRasterDPI
	}
	outBase := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, bin,
		"-png", "-singlefile",
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(dpi),
		in, outBase)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(msg), "wrong page range") {
			return nil, ErrNoPages
		}
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", ErrUnreadableFormat, err, msg)
	}
	f, err := os.Open(outBase + ".png")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoPages
		}
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: rendered page: %v", ErrUnreadableFormat, err)
	}
	return img, nil
}

func (p Poppler) binary() (string, error) {
	name := p.Path
	if name == "" {
		name = "pdftoppm"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &RasterizerError{Err: err, Guide: InstallGuide(runtime.GOOS)}
	}
	return path, nil
}

// RasterizerError reports a missing rasterizer together with installation
// instructions for the host platform.
type RasterizerError struct {
	Err   error
	Guide string
}

func (e *RasterizerError) Error() string {
	return fmt.Sprintf("%v: %v", ErrRasterizerUnavailable, e.Err)
}

func (e *RasterizerError) Unwrap() []error { return []error{ErrRasterizerUnavailable, e.Err} }

// InstallGuide returns Poppler installation steps for goos.
func InstallGuide(goos string) string {
	switch goos {
	case "windows":
		return strings.Join([]string{
			"To install Poppler on Windows:",
			"1. Download Poppler for Windows from: https://github.com/oschwartz10612/poppler-windows/releases/",
			"2. Extract the downloaded file",
			"3. Add the bin directory to your system PATH",
			"4. Restart the service",
		}, "\n")
	case "darwin":
		return strings.Join([]string{
			"To install Poppler on macOS:",
			"1. Install using Homebrew: brew install poppler",
			"2. Restart the service",
		}, "\n")
	default:
		return strings.Join([]string{
			"To install Poppler on Linux:",
			"1. Install using apt: sudo apt-get install poppler-utils",
			"   or using yum: sudo yum install poppler-utils",
			"2. Restart the service",
		}, "\n")
	}
}
