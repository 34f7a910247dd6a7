package x509util

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/svlund/tokenpki/internal/token"
)

// Signer signs data with a device-resident key.
type Signer interface {
	Sign(ctx context.Context, label string, data []byte, keyType token.KeyType, verifyAfter bool) ([]byte, error)
}

// rawAttribute is a PKCS#10 attribute in standard format:
// SEQUENCE { OID, SET { value } }. This avoids the extra nesting that
// Go's pkix.AttributeTypeAndValueSET produces.
type rawAttribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// certificationRequestInfo is the TBS portion of a PKCS#10 request.
// Attributes carries the complete [0] IMPLICIT SET bytes via FullBytes.
type certificationRequestInfo struct {
	Version    int
	Subject    asn1.RawValue
	PublicKey  asn1.RawValue
	Attributes asn1.RawValue
}

// certificationRequest is the signed PKCS#10 structure (RFC 2986 §4.2).
type certificationRequest struct {
	Info               asn1.RawValue
	SignatureAlgorithm asn1.RawValue
	Signature          asn1.BitString
}

// RequestBuilder assembles a certification request incrementally:
// subject, SubjectPublicKeyInfo, then extension-request attributes.
// Each requested extension is appended as its own extensionRequest
// attribute; attributes accumulate rather than overwrite.
type RequestBuilder struct {
	subject pkix.Name
	spkiDER []byte
	attrs   []rawAttribute
	extOIDs map[string]struct{}
}

// NewRequestBuilder creates a builder for the given subject and
// DER-encoded SubjectPublicKeyInfo.
func NewRequestBuilder(subject pkix.Name, spkiDER []byte) *RequestBuilder {
	return &RequestBuilder{
		subject: subject,
		spkiDER: spkiDER,
		extOIDs: make(map[string]struct{}),
	}
}

// AddExtension appends an extensionRequest attribute carrying ext.
// Requesting the same extension identifier twice fails with
// ErrDuplicateExtension.
func (b *RequestBuilder) AddExtension(ext pkix.Extension) error {
	key := ext.Id.String()
	if _, ok := b.extOIDs[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateExtension, key)
	}

	extsDER, err := asn1.Marshal([]pkix.Extension{ext})
	if err != nil {
		return fmt.Errorf("failed to marshal extension %s: %w", key, err)
	}

	b.extOIDs[key] = struct{}{}
	b.attrs = append(b.attrs, rawAttribute{
		Type:   OIDExtensionRequest,
		Values: []asn1.RawValue{{FullBytes: extsDER}},
	})
	return nil
}

// AddCAExtensions requests the extensions for a CA certificate: critical
// Basic Constraints with CA=TRUE and critical Key Usage asserting
// digitalSignature, keyCertSign and cRLSign.
func (b *RequestBuilder) AddCAExtensions() error {
	bc, err := BasicConstraintsCA()
	if err != nil {
		return err
	}
	if err := b.AddExtension(bc); err != nil {
		return err
	}
	ku, err := KeyUsageCA()
	if err != nil {
		return err
	}
	return b.AddExtension(ku)
}

// Build marshals the CertificationRequestInfo (version 0), signs it with
// the device key identified by keyLabel/keyType, and returns the
// DER-encoded certification request.
func (b *RequestBuilder) Build(ctx context.Context, signer Signer, keyLabel string, keyType token.KeyType) ([]byte, error) {
	if len(b.spkiDER) == 0 {
		return nil, fmt.Errorf("missing subject public key info")
	}

	subjectDER, err := asn1.Marshal(b.subject.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subject: %w", err)
	}

	// Attributes are a [0] IMPLICIT SET OF Attribute. Go's asn1.Marshal
	// produces SEQUENCE for slices, so the SET content is assembled by
	// hand and wrapped with the implicit tag.
	var attrsContent []byte
	for _, attr := range b.attrs {
		attrDER, err := asn1.Marshal(attr)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attribute: %w", err)
		}
		attrsContent = append(attrsContent, attrDER...)
	}

	var wrapped cryptobyte.Builder
	wrapped.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(c *cryptobyte.Builder) {
		c.AddBytes(attrsContent)
	})
	attrsDER, err := wrapped.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to wrap attributes: %w", err)
	}

	info := certificationRequestInfo{
		Version:    0,
		Subject:    asn1.RawValue{FullBytes: subjectDER},
		PublicKey:  asn1.RawValue{FullBytes: b.spkiDER},
		Attributes: asn1.RawValue{FullBytes: attrsDER},
	}
	infoDER, err := asn1.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal certification request info: %w", err)
	}

	sig, err := signer.Sign(ctx, keyLabel, infoDER, keyType, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sign certification request: %w", err)
	}

	sigAlg, err := keyType.SignatureAlgorithm()
	if err != nil {
		return nil, err
	}

	return asn1.Marshal(certificationRequest{
		Info:               asn1.RawValue{FullBytes: infoDER},
		SignatureAlgorithm: sigAlg,
		Signature:          asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
	})
}

// EncodeRequestPEM wraps a DER-encoded certification request in PEM armor.
func EncodeRequestPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
}
