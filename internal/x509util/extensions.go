package x509util

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
)

// ErrDuplicateExtension is returned when an extension collection carries
// the same identifier more than once, and by the OCSP data extractor when
// a required extension is not present exactly once.
var ErrDuplicateExtension = errors.New("duplicate extension")

// CheckDuplicateExtensions verifies that every extension identifier in
// exts appears at most once. Duplicates are a hard error, never a silent
// overwrite.
func CheckDuplicateExtensions(exts []pkix.Extension) error {
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		key := ext.Id.String()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateExtension, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// basicConstraints is the Basic Constraints extension value (RFC 5280
// §4.2.1.9) without a path length constraint.
type basicConstraints struct {
	IsCA bool `asn1:"optional"`
}

// BasicConstraintsCA builds a critical Basic Constraints extension with
// CA=TRUE and no path length constraint.
func BasicConstraintsCA() (pkix.Extension, error) {
	value, err := asn1.Marshal(basicConstraints{IsCA: true})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal basic constraints: %w", err)
	}
	return pkix.Extension{
		Id:       OIDExtBasicConstraints,
		Critical: true,
		Value:    value,
	}, nil
}

// KeyUsageCA builds a critical Key Usage extension asserting
// digitalSignature, keyCertSign and cRLSign.
func KeyUsageCA() (pkix.Extension, error) {
	// Bits 0 (digitalSignature), 5 (keyCertSign), 6 (cRLSign).
	bits := asn1.BitString{Bytes: []byte{0x86}, BitLength: 7}
	value, err := asn1.Marshal(bits)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal key usage: %w", err)
	}
	return pkix.Extension{
		Id:       OIDExtKeyUsage,
		Critical: true,
		Value:    value,
	}, nil
}
