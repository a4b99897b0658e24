// Package ocr defines the contract for plugging an OCR engine into the
// verification pipeline. Engines receive one encoded page image and return
// its linearized text; the interface is small so engines can be backed by
// native libraries, local binaries or remote services.
package ocr
