package report

import (
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
)

// DocumentDigest is the hex BLAKE2b-256 of the uploaded bytes.
func DocumentDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanonicalDigest canonicalizes JSON (RFC 8785) and returns its hex
// BLAKE2b-256 digest, so key order and whitespace do not affect the result.
func CanonicalDigest(raw []byte) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
