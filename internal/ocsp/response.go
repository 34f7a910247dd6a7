package ocsp

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/svlund/tokenpki/internal/token"
)

// ResponseStatus represents the status of an OCSP response.
type ResponseStatus int

const (
	StatusSuccessful       ResponseStatus = 0
	StatusMalformedRequest ResponseStatus = 1
	StatusInternalError    ResponseStatus = 2
	StatusTryLater         ResponseStatus = 3
	// 4 is not used
	StatusSigRequired  ResponseStatus = 5
	StatusUnauthorized ResponseStatus = 6
)

// String returns a human-readable status string.
func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusMalformedRequest:
		return "malformedRequest"
	case StatusInternalError:
		return "internalError"
	case StatusTryLater:
		return "tryLater"
	case StatusSigRequired:
		return "sigRequired"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Valid reports whether s is one of the RFC 6960 status codes.
func (s ResponseStatus) Valid() bool {
	switch s {
	case StatusSuccessful, StatusMalformedRequest, StatusInternalError,
		StatusTryLater, StatusSigRequired, StatusUnauthorized:
		return true
	default:
		return false
	}
}

// CertStatus represents the revocation status of a certificate.
type CertStatus int

const (
	CertStatusGood    CertStatus = 0
	CertStatusRevoked CertStatus = 1
	CertStatusUnknown CertStatus = 2
)

// String returns a human-readable status string.
func (s CertStatus) String() string {
	switch s {
	case CertStatusGood:
		return "good"
	case CertStatusRevoked:
		return "revoked"
	case CertStatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RevocationReason per RFC 5280 §5.3.1
type RevocationReason int

const (
	ReasonUnspecified          RevocationReason = 0
	ReasonKeyCompromise        RevocationReason = 1
	ReasonCACompromise         RevocationReason = 2
	ReasonAffiliationChanged   RevocationReason = 3
	ReasonSuperseded           RevocationReason = 4
	ReasonCessationOfOperation RevocationReason = 5
	ReasonCertificateHold      RevocationReason = 6
	// 7 is not used
	ReasonRemoveFromCRL      RevocationReason = 8
	ReasonPrivilegeWithdrawn RevocationReason = 9
	ReasonAACompromise       RevocationReason = 10
)

// OCSPResponse represents an OCSP response (RFC 6960 §4.2.1).
// OCSPResponse ::= SEQUENCE {
//
//	responseStatus         OCSPResponseStatus,
//	responseBytes          [0] EXPLICIT ResponseBytes OPTIONAL }
type OCSPResponse struct {
	Status        asn1.Enumerated
	ResponseBytes ResponseBytes `asn1:"optional,explicit,tag:0"`
}

// ResponseBytes holds the actual response data.
// ResponseBytes ::= SEQUENCE {
//
//	responseType   OBJECT IDENTIFIER,
//	response       OCTET STRING }
type ResponseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

// errorResponse is the marshal shape for non-successful responses: the
// responseBytes field is absent entirely.
type errorResponse struct {
	Status asn1.Enumerated
}

// BasicOCSPResponse is the standard response type (RFC 6960 §4.2.1).
// BasicOCSPResponse ::= SEQUENCE {
//
//	tbsResponseData      ResponseData,
//	signatureAlgorithm   AlgorithmIdentifier,
//	signature            BIT STRING,
//	certs            [0] EXPLICIT SEQUENCE OF Certificate OPTIONAL }
type BasicOCSPResponse struct {
	TBSResponseData    ResponseData
	SignatureAlgorithm asn1.RawValue
	Signature          asn1.BitString
	Certs              []asn1.RawValue `asn1:"optional,explicit,tag:0,omitempty"`
}

// ResponseData contains the response information to be signed.
// ResponseData ::= SEQUENCE {
//
//	version              [0] EXPLICIT Version DEFAULT v1,
//	responderID              ResponderID,
//	producedAt               GeneralizedTime,
//	responses                SEQUENCE OF SingleResponse,
//	responseExtensions   [1] EXPLICIT Extensions OPTIONAL }
type ResponseData struct {
	Version            int              `asn1:"optional,explicit,tag:0,default:0"`
	ResponderID        asn1.RawValue    // CHOICE: byName [1] or byKey [2]
	ProducedAt         time.Time        `asn1:"generalized"`
	Responses          []SingleResponse `asn1:"sequence"`
	ResponseExtensions []pkix.Extension `asn1:"optional,explicit,tag:1,omitempty"`
}

// SingleResponse contains status for a single certificate.
// SingleResponse ::= SEQUENCE {
//
//	certID                       CertID,
//	certStatus                   CertStatus,
//	thisUpdate                   GeneralizedTime,
//	nextUpdate           [0]     EXPLICIT GeneralizedTime OPTIONAL,
//	singleExtensions     [1]     EXPLICIT Extensions OPTIONAL }
type SingleResponse struct {
	CertID           CertID
	CertStatus       asn1.RawValue
	ThisUpdate       time.Time        `asn1:"generalized"`
	NextUpdate       time.Time        `asn1:"optional,explicit,tag:0,generalized"`
	SingleExtensions []pkix.Extension `asn1:"optional,explicit,tag:1,omitempty"`
}

// RevokedInfo contains revocation details.
// RevokedInfo ::= SEQUENCE {
//
//	revocationTime              GeneralizedTime,
//	revocationReason    [0]     EXPLICIT CRLReason OPTIONAL }
type RevokedInfo struct {
	RevocationTime   time.Time       `asn1:"generalized"`
	RevocationReason asn1.Enumerated `asn1:"optional,explicit,tag:0"`
}

// ResponseBuilder assembles and signs an OCSP response with a
// device-resident key.
type ResponseBuilder struct {
	signer      Signer
	keyLabel    string
	keyType     token.KeyType
	responderID asn1.RawValue
	producedAt  time.Time
	responses   []SingleResponse
	extensions  []pkix.Extension
	certs       [][]byte
}

// NewResponseBuilder creates a builder that signs with the given device
// key. The responder identity must be set with SetResponderName or
// SetResponderKeyHash before Build.
func NewResponseBuilder(signer Signer, keyLabel string, keyType token.KeyType) *ResponseBuilder {
	return &ResponseBuilder{
		signer:     signer,
		keyLabel:   keyLabel,
		keyType:    keyType,
		producedAt: time.Now().UTC(),
	}
}

// SetResponderName sets the responder ID to the byName choice
// ([1] EXPLICIT Name).
func (b *ResponseBuilder) SetResponderName(name pkix.Name) error {
	rdnDER, err := asn1.Marshal(name.ToRDNSequence())
	if err != nil {
		return fmt.Errorf("failed to marshal responder name: %w", err)
	}
	b.responderID = asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        1,
		IsCompound: true,
		Bytes:      rdnDER,
	}
	return nil
}

// SetResponderKeyHash sets the responder ID to the byKey choice
// ([2] EXPLICIT KeyHash), where keyHash is the SHA-1 digest of the
// responder's subjectPublicKey bits.
func (b *ResponseBuilder) SetResponderKeyHash(keyHash []byte) error {
	octets, err := asn1.Marshal(keyHash)
	if err != nil {
		return fmt.Errorf("failed to marshal key hash: %w", err)
	}
	b.responderID = asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        2,
		IsCompound: true,
		Bytes:      octets,
	}
	return nil
}

// SetProducedAt overrides the producedAt timestamp.
func (b *ResponseBuilder) SetProducedAt(t time.Time) *ResponseBuilder {
	b.producedAt = t.UTC()
	return b
}

// AddGood adds a "good" status for a certificate.
func (b *ResponseBuilder) AddGood(entry CertEntry, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	// good [0] IMPLICIT NULL
	b.responses = append(b.responses, SingleResponse{
		CertID:     certIDFor(entry),
		CertStatus: asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0},
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddRevoked adds a "revoked" status for a certificate.
func (b *ResponseBuilder) AddRevoked(entry CertEntry, thisUpdate, nextUpdate, revokedAt time.Time, reason RevocationReason) *ResponseBuilder {
	// revoked [1] IMPLICIT RevokedInfo: the tag replaces the SEQUENCE
	// header, so only the field content is carried.
	revokedDER, _ := asn1.Marshal(RevokedInfo{
		RevocationTime:   revokedAt.UTC(),
		RevocationReason: asn1.Enumerated(reason),
	})
	var seq asn1.RawValue
	_, _ = asn1.Unmarshal(revokedDER, &seq)
	b.responses = append(b.responses, SingleResponse{
		CertID: certIDFor(entry),
		CertStatus: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        1,
			IsCompound: true,
			Bytes:      seq.Bytes,
		},
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddUnknown adds an "unknown" status for a certificate.
func (b *ResponseBuilder) AddUnknown(entry CertEntry, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	// unknown [2] IMPLICIT UnknownInfo (NULL)
	b.responses = append(b.responses, SingleResponse{
		CertID:     certIDFor(entry),
		CertStatus: asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 2},
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddExtension appends a response-level extension. Validation happens in
// Build, before any signing.
func (b *ResponseBuilder) AddExtension(ext pkix.Extension) *ResponseBuilder {
	b.extensions = append(b.extensions, ext)
	return b
}

// AddNonce appends the nonce extension when nonce is non-empty.
func (b *ResponseBuilder) AddNonce(nonce []byte) *ResponseBuilder {
	if len(nonce) == 0 {
		return b
	}
	value, _ := asn1.Marshal(nonce)
	return b.AddExtension(pkix.Extension{Id: OIDOcspNonce, Value: value})
}

// AddCert embeds a DER certificate alongside the signature.
func (b *ResponseBuilder) AddCert(der []byte) *ResponseBuilder {
	b.certs = append(b.certs, der)
	return b
}

// Build creates the DER-encoded OCSP response with the given status. A
// non-successful status produces a bare response with no body regardless
// of the added entries. Extension validation runs before signing so a bad
// input has no side effects.
func (b *ResponseBuilder) Build(ctx context.Context, status ResponseStatus) ([]byte, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(status))
	}
	if status != StatusSuccessful {
		return asn1.Marshal(errorResponse{Status: asn1.Enumerated(status)})
	}

	if err := validateExtensions(b.extensions); err != nil {
		return nil, err
	}
	if len(b.responses) == 0 {
		return nil, fmt.Errorf("%w: no single responses added", ErrInvalidArgument)
	}
	if len(b.responderID.Bytes) == 0 {
		return nil, fmt.Errorf("%w: responder identity not set", ErrInvalidArgument)
	}

	responseData := ResponseData{
		Version:            0,
		ResponderID:        b.responderID,
		ProducedAt:         b.producedAt,
		Responses:          b.responses,
		ResponseExtensions: b.extensions,
	}
	tbsDER, err := asn1.Marshal(responseData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	sig, err := b.signer.Sign(ctx, b.keyLabel, tbsDER, b.keyType, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response: %w", err)
	}
	sigAlg, err := b.keyType.SignatureAlgorithm()
	if err != nil {
		return nil, err
	}

	basic := BasicOCSPResponse{
		TBSResponseData:    responseData,
		SignatureAlgorithm: sigAlg,
		Signature:          asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
	}
	for _, der := range b.certs {
		basic.Certs = append(basic.Certs, asn1.RawValue{FullBytes: der})
	}

	basicDER, err := asn1.Marshal(basic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal basic response: %w", err)
	}

	return asn1.Marshal(OCSPResponse{
		Status: asn1.Enumerated(StatusSuccessful),
		ResponseBytes: ResponseBytes{
			ResponseType: OIDOcspBasic,
			Response:     basicDER,
		},
	})
}

func certIDFor(entry CertEntry) CertID {
	return CertID{
		HashAlgorithm:  pkix.AlgorithmIdentifier{Algorithm: OIDSHA1},
		IssuerNameHash: entry.IssuerNameHash,
		IssuerKeyHash:  entry.IssuerKeyHash,
		SerialNumber:   entry.Serial,
	}
}

// ParseResponse parses a DER-encoded OCSP response envelope.
func ParseResponse(data []byte) (*OCSPResponse, error) {
	var resp OCSPResponse
	rest, err := asn1.Unmarshal(data, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCSP response: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after OCSP response")
	}
	return &resp, nil
}

// ParseBasicResponse parses the BasicOCSPResponse carried in a successful
// response's responseBytes.
func ParseBasicResponse(data []byte) (*BasicOCSPResponse, error) {
	var basic BasicOCSPResponse
	rest, err := asn1.Unmarshal(data, &basic)
	if err != nil {
		return nil, fmt.Errorf("failed to parse basic OCSP response: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after basic OCSP response")
	}
	return &basic, nil
}
