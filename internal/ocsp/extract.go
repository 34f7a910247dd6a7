package ocsp

import (
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"

	"github.com/svlund/tokenpki/internal/x509util"
)

// CertData holds the fields extracted from a certificate that are needed
// to request its status: the CertID inputs plus the responder URL from
// AuthorityInfoAccess.
type CertData struct {
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	Serial         *big.Int
	ResponderURL   string
}

// Entry returns the extracted data as a request entry.
func (d *CertData) Entry() CertEntry {
	return CertEntry{
		IssuerNameHash: d.IssuerNameHash,
		IssuerKeyHash:  d.IssuerKeyHash,
		Serial:         d.Serial,
	}
}

// authorityKeyIdentifier is the AKI extension value (RFC 5280 §4.2.1.1).
type authorityKeyIdentifier struct {
	KeyIdentifier []byte `asn1:"optional,tag:0"`
}

// accessDescription is one AuthorityInfoAccess entry (RFC 5280 §4.2.2.1).
type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

// CertificateData extracts the OCSP request inputs from a PEM
// certificate. The certificate must carry exactly one Authority Key
// Identifier extension and exactly one Authority Information Access
// extension with an OCSP access method; zero or multiple of either fails
// with ErrDuplicateExtension. The issuer name hash is SHA-1 over the DER
// issuer name; the issuer key hash is the AKI key identifier verbatim.
func CertificateData(certPEM []byte) (*CertData, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE block in PEM input")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	var akiExts, aiaExts []pkix.Extension
	for _, ext := range cert.Extensions {
		switch {
		case ext.Id.Equal(x509util.OIDExtAuthorityKeyId):
			akiExts = append(akiExts, ext)
		case ext.Id.Equal(x509util.OIDExtAuthorityInfoAccess):
			if aiaHasOCSP(ext) {
				aiaExts = append(aiaExts, ext)
			}
		}
	}
	if len(akiExts) != 1 {
		return nil, fmt.Errorf("%w: authority key identifier present %d times, want exactly 1",
			x509util.ErrDuplicateExtension, len(akiExts))
	}
	if len(aiaExts) != 1 {
		return nil, fmt.Errorf("%w: authority information access with OCSP method present %d times, want exactly 1",
			x509util.ErrDuplicateExtension, len(aiaExts))
	}

	var aki authorityKeyIdentifier
	if _, err := asn1.Unmarshal(akiExts[0].Value, &aki); err != nil {
		return nil, fmt.Errorf("failed to parse authority key identifier: %w", err)
	}
	if len(aki.KeyIdentifier) == 0 {
		return nil, fmt.Errorf("authority key identifier carries no key identifier field")
	}

	url, err := ocspURL(aiaExts[0])
	if err != nil {
		return nil, err
	}

	nameHash := sha1.Sum(cert.RawIssuer)

	return &CertData{
		IssuerNameHash: nameHash[:],
		IssuerKeyHash:  aki.KeyIdentifier,
		Serial:         cert.SerialNumber,
		ResponderURL:   url,
	}, nil
}

// aiaHasOCSP reports whether an AuthorityInfoAccess extension contains an
// id-ad-ocsp access description.
func aiaHasOCSP(ext pkix.Extension) bool {
	var descs []accessDescription
	if _, err := asn1.Unmarshal(ext.Value, &descs); err != nil {
		return false
	}
	for _, d := range descs {
		if d.Method.Equal(OIDPKIXOcsp) {
			return true
		}
	}
	return false
}

// ocspURL returns the uniformResourceIdentifier of the first id-ad-ocsp
// access description in the extension.
func ocspURL(ext pkix.Extension) (string, error) {
	var descs []accessDescription
	if _, err := asn1.Unmarshal(ext.Value, &descs); err != nil {
		return "", fmt.Errorf("failed to parse authority information access: %w", err)
	}
	for _, d := range descs {
		if !d.Method.Equal(OIDPKIXOcsp) {
			continue
		}
		// uniformResourceIdentifier [6] IMPLICIT IA5String
		if d.Location.Class == asn1.ClassContextSpecific && d.Location.Tag == 6 {
			return string(d.Location.Bytes), nil
		}
	}
	return "", fmt.Errorf("OCSP access description carries no URI location")
}
