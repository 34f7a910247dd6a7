package ocsp

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/svlund/tokenpki/internal/token"
	"github.com/svlund/tokenpki/internal/x509util"
)

// MaxNonceLength is the largest accepted nonce extension value.
const MaxNonceLength = 32

// Signer signs data with a device-resident key.
type Signer interface {
	Sign(ctx context.Context, label string, data []byte, keyType token.KeyType, verifyAfter bool) ([]byte, error)
}

// CertEntry identifies one certificate in a request: the SHA-1 hashes of
// the issuer name and issuer public key, and the certificate serial.
type CertEntry struct {
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	Serial         *big.Int
}

// OCSPRequest represents an OCSP request (RFC 6960 §4.1.1).
// OCSPRequest ::= SEQUENCE {
//
//	tbsRequest                  TBSRequest,
//	optionalSignature   [0]     EXPLICIT Signature OPTIONAL }
type OCSPRequest struct {
	TBSRequest        TBSRequest
	OptionalSignature Signature `asn1:"optional,explicit,tag:0"`
}

// TBSRequest is the to-be-signed part of an OCSP request.
// TBSRequest ::= SEQUENCE {
//
//	version             [0]     EXPLICIT Version DEFAULT v1,
//	requestorName       [1]     EXPLICIT GeneralName OPTIONAL,
//	requestList                 SEQUENCE OF Request,
//	requestExtensions   [2]     EXPLICIT Extensions OPTIONAL }
type TBSRequest struct {
	Version           int              `asn1:"optional,explicit,tag:0,default:0"`
	RequestorName     asn1.RawValue    `asn1:"optional,explicit,tag:1"`
	RequestList       []Request        `asn1:"sequence"`
	RequestExtensions []pkix.Extension `asn1:"optional,explicit,tag:2"`
}

// Request represents a single certificate status request.
// Request ::= SEQUENCE {
//
//	reqCert                     CertID,
//	singleRequestExtensions     [0] EXPLICIT Extensions OPTIONAL }
type Request struct {
	ReqCert                 CertID
	SingleRequestExtensions []pkix.Extension `asn1:"optional,explicit,tag:0,omitempty"`
}

// CertID identifies a certificate for which status is requested.
// CertID ::= SEQUENCE {
//
//	hashAlgorithm       AlgorithmIdentifier,
//	issuerNameHash      OCTET STRING,
//	issuerKeyHash       OCTET STRING,
//	serialNumber        CertificateSerialNumber }
type CertID struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// Signature represents an optional signature on the request.
// Signature ::= SEQUENCE {
//
//	signatureAlgorithm      AlgorithmIdentifier,
//	signature               BIT STRING,
//	certs               [0] EXPLICIT SEQUENCE OF Certificate OPTIONAL }
type Signature struct {
	SignatureAlgorithm asn1.RawValue
	Signature          asn1.BitString
	Certs              []asn1.RawValue `asn1:"optional,explicit,tag:0,omitempty"`
}

// tbsRequest and tbsRequestWithName are the marshal-side shapes. The
// version is omitted (DEFAULT v1) and encoding/asn1 cannot skip an unset
// optional RawValue, so the requestor name gets its own struct.
type tbsRequest struct {
	RequestList       []Request        `asn1:"sequence"`
	RequestExtensions []pkix.Extension `asn1:"optional,explicit,tag:2,omitempty"`
}

type tbsRequestWithName struct {
	RequestorName     asn1.RawValue    `asn1:"explicit,tag:1"`
	RequestList       []Request        `asn1:"sequence"`
	RequestExtensions []pkix.Extension `asn1:"optional,explicit,tag:2,omitempty"`
}

type ocspRequestUnsigned struct {
	TBSRequest asn1.RawValue
}

type ocspRequestSigned struct {
	TBSRequest        asn1.RawValue
	OptionalSignature Signature `asn1:"explicit,tag:0"`
}

// RequestOptions carries the optional parts of an OCSP request.
type RequestOptions struct {
	// RequestorName identifies the requestor (GeneralName directoryName).
	// Mandatory when KeyLabel is set: signed requests must identify the
	// requestor.
	RequestorName *pkix.Name

	// Extensions are merged into the request extensions. The nonce
	// extension value is limited to MaxNonceLength bytes.
	Extensions []pkix.Extension

	// KeyLabel and KeyType select the device key that signs the request.
	// An empty KeyLabel produces an unsigned request.
	KeyLabel string
	KeyType  token.KeyType

	// Certs are DER certificates embedded alongside the signature.
	Certs [][]byte
}

// CreateRequest builds a DER-encoded OCSP request for the given entries.
// The CertID hash algorithm is fixed to SHA-1.
func CreateRequest(ctx context.Context, signer Signer, entries []CertEntry, opts RequestOptions) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: request needs at least one certificate entry", ErrInvalidArgument)
	}
	if err := validateExtensions(opts.Extensions); err != nil {
		return nil, err
	}

	requests := make([]Request, len(entries))
	for i, e := range entries {
		if e.Serial == nil {
			return nil, fmt.Errorf("%w: entry %d has no serial number", ErrInvalidArgument, i)
		}
		requests[i] = Request{
			ReqCert: CertID{
				HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: OIDSHA1},
				IssuerNameHash: e.IssuerNameHash,
				IssuerKeyHash:  e.IssuerKeyHash,
				SerialNumber:   e.Serial,
			},
		}
	}

	var tbsDER []byte
	var err error
	if opts.RequestorName != nil {
		name, nameErr := generalNameDirectory(*opts.RequestorName)
		if nameErr != nil {
			return nil, nameErr
		}
		tbsDER, err = asn1.Marshal(tbsRequestWithName{
			RequestorName:     name,
			RequestList:       requests,
			RequestExtensions: opts.Extensions,
		})
	} else {
		tbsDER, err = asn1.Marshal(tbsRequest{
			RequestList:       requests,
			RequestExtensions: opts.Extensions,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TBSRequest: %w", err)
	}

	if opts.KeyLabel == "" {
		return asn1.Marshal(ocspRequestUnsigned{TBSRequest: asn1.RawValue{FullBytes: tbsDER}})
	}

	// A signed request must say who signed it.
	if opts.RequestorName == nil {
		return nil, fmt.Errorf("%w: signed request requires a requestor name", ErrInvalidArgument)
	}

	sig, err := signer.Sign(ctx, opts.KeyLabel, tbsDER, opts.KeyType, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	sigAlg, err := opts.KeyType.SignatureAlgorithm()
	if err != nil {
		return nil, err
	}

	signature := Signature{
		SignatureAlgorithm: sigAlg,
		Signature:          asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
	}
	for _, der := range opts.Certs {
		signature.Certs = append(signature.Certs, asn1.RawValue{FullBytes: der})
	}

	return asn1.Marshal(ocspRequestSigned{
		TBSRequest:        asn1.RawValue{FullBytes: tbsDER},
		OptionalSignature: signature,
	})
}

// generalNameDirectory encodes a GeneralName directoryName choice
// ([4] EXPLICIT Name).
func generalNameDirectory(name pkix.Name) (asn1.RawValue, error) {
	rdnDER, err := asn1.Marshal(name.ToRDNSequence())
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("failed to marshal requestor name: %w", err)
	}
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        4,
		IsCompound: true,
		Bytes:      rdnDER,
	}, nil
}

// validateExtensions enforces the extension rules shared by requests and
// responses: unique identifiers and a bounded nonce value.
func validateExtensions(exts []pkix.Extension) error {
	if err := x509util.CheckDuplicateExtensions(exts); err != nil {
		return err
	}
	for _, ext := range exts {
		if !ext.Id.Equal(OIDOcspNonce) {
			continue
		}
		nonce := ext.Value
		var inner []byte
		if _, err := asn1.Unmarshal(ext.Value, &inner); err == nil {
			nonce = inner
		}
		if len(nonce) > MaxNonceLength {
			return fmt.Errorf("%w: %d > %d bytes", ErrNonceTooLong, len(nonce), MaxNonceLength)
		}
	}
	return nil
}

// NonceExtension wraps nonce bytes in the id-pkix-ocsp-nonce extension.
func NonceExtension(nonce []byte) (pkix.Extension, error) {
	if len(nonce) > MaxNonceLength {
		return pkix.Extension{}, fmt.Errorf("%w: %d > %d bytes", ErrNonceTooLong, len(nonce), MaxNonceLength)
	}
	value, err := asn1.Marshal(nonce)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal nonce: %w", err)
	}
	return pkix.Extension{Id: OIDOcspNonce, Value: value}, nil
}

// ParseRequest parses a DER-encoded OCSP request.
func ParseRequest(data []byte) (*OCSPRequest, error) {
	var req OCSPRequest
	rest, err := asn1.Unmarshal(data, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCSP request: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after OCSP request")
	}

	if req.TBSRequest.Version != 0 {
		return nil, fmt.Errorf("unsupported OCSP request version: %d", req.TBSRequest.Version)
	}
	if len(req.TBSRequest.RequestList) == 0 {
		return nil, fmt.Errorf("OCSP request contains no certificate requests")
	}

	return &req, nil
}

// GetNonce extracts the nonce extension from the request, if present.
func (req *OCSPRequest) GetNonce() []byte {
	for _, ext := range req.TBSRequest.RequestExtensions {
		if ext.Id.Equal(OIDOcspNonce) {
			// Nonce is an OCTET STRING
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err == nil {
				return nonce
			}
			// If unmarshal fails, return the raw value
			return ext.Value
		}
	}
	return nil
}
