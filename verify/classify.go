package verify

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/wudi/rxverify/document"
	rxerrors "github.com/wudi/rxverify/errors"
	"github.com/wudi/rxverify/ocr"
)

const (
	hintImageFormats = "Please ensure the file is a valid image format (JPG, PNG, GIF, BMP, TIFF, WEBP) or PDF."
	hintPDFCorrupt   = "Please ensure the PDF is not corrupted and try again."
	hintPDFNoPages   = "Please ensure the PDF is not corrupted and contains at least one page."
	hintNoText       = "Please ensure the image is clear and contains readable text."
	hintTesseract    = "Please ensure Tesseract is installed and in your PATH."
)

func classifyLoad(doc document.RawDocument, err error) error {
	var rasterErr *document.RasterizerError
	switch {
	case errors.Is(err, document.ErrEmpty):
		return rxerrors.Wrap(err, rxerrors.CategoryInvalidInput, "empty_document",
			"No file uploaded", "Please upload a prescription image or PDF.")
	case errors.As(err, &rasterErr):
		return rxerrors.Wrap(err, rxerrors.CategoryDependencyMissing, "rasterizer_unavailable",
			"PDF processing requires Poppler to be installed. Please install Poppler and try again.", rasterErr.Guide)
	case errors.Is(err, document.ErrRasterizerUnavailable):
		return rxerrors.Wrap(err, rxerrors.CategoryDependencyMissing, "rasterizer_unavailable",
			"PDF processing requires Poppler to be installed. Please install Poppler and try again.", document.InstallGuide(runtime.GOOS))
	case errors.Is(err, document.ErrNoPages):
		return rxerrors.Wrap(err, rxerrors.CategoryInvalidInput, "pdf_no_pages",
			"Could not extract any pages from the PDF.", hintPDFNoPages)
	case errors.Is(err, document.ErrTooLarge):
		return rxerrors.Wrap(err, rxerrors.CategoryInvalidInput, "image_too_large",
			fmt.Sprintf("Image exceeds size limits: %v", err), "Please upload a smaller image.")
	case errors.Is(err, document.ErrUnreadableFormat) && doc.MediaType == document.MediaPDF:
		return rxerrors.Wrap(err, rxerrors.CategoryInvalidInput, "unreadable_document",
			fmt.Sprintf("Error processing PDF: %v", err), hintPDFCorrupt)
	case errors.Is(err, document.ErrUnreadableFormat):
		return rxerrors.Wrap(err, rxerrors.CategoryInvalidInput, "unreadable_document",
			fmt.Sprintf("Error opening image: %v", err), hintImageFormats)
	default:
		return classifyInternal(err, "document_load_failed", fmt.Sprintf("Error processing document: %v", err))
	}
}

func classifyOCR(err error) error {
	switch {
	case errors.Is(err, ocr.ErrNoText):
		return rxerrors.Wrap(err, rxerrors.CategoryInvalidInput, "no_text",
			"No text could be extracted from the image.", hintNoText)
	case errors.Is(err, ocr.ErrEngineUnavailable):
		return rxerrors.Wrap(err, rxerrors.CategoryDependencyMissing, "ocr_unavailable",
			fmt.Sprintf("Error during OCR processing: %v", err), hintTesseract)
	default:
		return rxerrors.Wrap(err, rxerrors.CategoryInternalFailure, "ocr_failed",
			fmt.Sprintf("Error during OCR processing: %v", err), hintTesseract)
	}
}

func classifyReport(err error) error {
	return classifyInternal(err, "report_invalid", "Error generating verification report")
}

func classifyInternal(err error, code, message string) error {
	return rxerrors.Wrap(err, rxerrors.CategoryInternalFailure, code, message, "")
}
