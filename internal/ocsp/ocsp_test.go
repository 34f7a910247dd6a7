package ocsp

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/svlund/tokenpki/internal/token"
	"github.com/svlund/tokenpki/internal/x509util"
)

// softSigner signs with an in-memory Ed25519 key and counts calls.
type softSigner struct {
	priv  ed25519.PrivateKey
	calls int
}

func newSoftSigner(t *testing.T) *softSigner {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return &softSigner{priv: priv}
}

func (s *softSigner) public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

func (s *softSigner) Sign(ctx context.Context, label string, data []byte, kt token.KeyType, verifyAfter bool) ([]byte, error) {
	s.calls++
	return ed25519.Sign(s.priv, data), nil
}

func testEntry(serial int64) CertEntry {
	return CertEntry{
		IssuerNameHash: bytes.Repeat([]byte{0x11}, 20),
		IssuerKeyHash:  bytes.Repeat([]byte{0x22}, 20),
		Serial:         big.NewInt(serial),
	}
}

func TestU_CreateRequest_Unsigned(t *testing.T) {
	der, err := CreateRequest(context.Background(), nil, []CertEntry{testEntry(42)}, RequestOptions{})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	req, err := ParseRequest(der)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if len(req.TBSRequest.RequestList) != 1 {
		t.Fatalf("got %d requests, want 1", len(req.TBSRequest.RequestList))
	}

	certID := req.TBSRequest.RequestList[0].ReqCert
	if !certID.HashAlgorithm.Algorithm.Equal(OIDSHA1) {
		t.Errorf("hash algorithm %v, want SHA-1", certID.HashAlgorithm.Algorithm)
	}
	if certID.SerialNumber.Int64() != 42 {
		t.Errorf("serial %v, want 42", certID.SerialNumber)
	}
	if !bytes.Equal(certID.IssuerNameHash, bytes.Repeat([]byte{0x11}, 20)) {
		t.Error("issuer name hash not carried through")
	}
	if req.OptionalSignature.Signature.BitLength != 0 {
		t.Error("unsigned request carries a signature")
	}
}

func TestU_CreateRequest_NoEntries(t *testing.T) {
	_, err := CreateRequest(context.Background(), nil, nil, RequestOptions{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestU_CreateRequest_NilSerial(t *testing.T) {
	entry := testEntry(1)
	entry.Serial = nil
	_, err := CreateRequest(context.Background(), nil, []CertEntry{entry}, RequestOptions{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestU_CreateRequest_SignedRequiresRequestorName(t *testing.T) {
	signer := newSoftSigner(t)
	opts := RequestOptions{KeyLabel: "req-key", KeyType: token.Ed25519}

	_, err := CreateRequest(context.Background(), signer, []CertEntry{testEntry(1)}, opts)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if signer.calls != 0 {
		t.Error("signer was called for a rejected request")
	}
}

func TestU_CreateRequest_Signed(t *testing.T) {
	signer := newSoftSigner(t)
	opts := RequestOptions{
		RequestorName: &pkix.Name{CommonName: "Monitoring"},
		KeyLabel:      "req-key",
		KeyType:       token.Ed25519,
	}

	der, err := CreateRequest(context.Background(), signer, []CertEntry{testEntry(7)}, opts)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}

	// Pull the raw TBSRequest bytes out to verify the signature over them.
	var raw struct {
		TBSRequest        asn1.RawValue
		OptionalSignature Signature `asn1:"optional,explicit,tag:0"`
	}
	if _, err := asn1.Unmarshal(der, &raw); err != nil {
		t.Fatalf("failed to parse signed request: %v", err)
	}
	if raw.OptionalSignature.Signature.BitLength == 0 {
		t.Fatal("signed request carries no signature")
	}
	if !ed25519.Verify(signer.public(), raw.TBSRequest.FullBytes, raw.OptionalSignature.Signature.Bytes) {
		t.Error("signature does not verify over the TBSRequest")
	}

	req, err := ParseRequest(der)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if len(req.TBSRequest.RequestorName.Bytes) == 0 {
		t.Error("requestor name missing from the parsed request")
	}
}

func TestU_NonceExtension_Bounds(t *testing.T) {
	ext, err := NonceExtension(bytes.Repeat([]byte{0xab}, MaxNonceLength))
	if err != nil {
		t.Fatalf("a %d-byte nonce must be accepted: %v", MaxNonceLength, err)
	}
	if !ext.Id.Equal(OIDOcspNonce) {
		t.Errorf("extension OID %v, want %v", ext.Id, OIDOcspNonce)
	}

	if _, err := NonceExtension(bytes.Repeat([]byte{0xab}, MaxNonceLength+1)); !errors.Is(err, ErrNonceTooLong) {
		t.Errorf("expected ErrNonceTooLong, got %v", err)
	}
}

func TestU_CreateRequest_NonceRoundTrip(t *testing.T) {
	nonce := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ext, err := NonceExtension(nonce)
	if err != nil {
		t.Fatal(err)
	}

	der, err := CreateRequest(context.Background(), nil, []CertEntry{testEntry(1)},
		RequestOptions{Extensions: []pkix.Extension{ext}})
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	req, err := ParseRequest(der)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if got := req.GetNonce(); !bytes.Equal(got, nonce) {
		t.Errorf("nonce %x, want %x", got, nonce)
	}
}

func TestU_CreateRequest_OversizedNonceRejected(t *testing.T) {
	// Hand-built extension bypassing NonceExtension.
	value, err := asn1.Marshal(bytes.Repeat([]byte{0xcd}, MaxNonceLength+1))
	if err != nil {
		t.Fatal(err)
	}
	ext := pkix.Extension{Id: OIDOcspNonce, Value: value}

	_, err = CreateRequest(context.Background(), nil, []CertEntry{testEntry(1)},
		RequestOptions{Extensions: []pkix.Extension{ext}})
	if !errors.Is(err, ErrNonceTooLong) {
		t.Errorf("expected ErrNonceTooLong, got %v", err)
	}
}

func TestU_CreateRequest_DuplicateExtensions(t *testing.T) {
	ext, err := NonceExtension([]byte{0x01})
	if err != nil {
		t.Fatal(err)
	}

	_, err = CreateRequest(context.Background(), nil, []CertEntry{testEntry(1)},
		RequestOptions{Extensions: []pkix.Extension{ext, ext}})
	if !errors.Is(err, x509util.ErrDuplicateExtension) {
		t.Errorf("expected ErrDuplicateExtension, got %v", err)
	}
}

func TestU_ParseRequest_Garbage(t *testing.T) {
	if _, err := ParseRequest([]byte{0xde, 0xad, 0xbe, 0xef}); err == nil {
		t.Error("expected an error for garbage input")
	}
	// Trailing data after a valid request.
	der, err := CreateRequest(context.Background(), nil, []CertEntry{testEntry(1)}, RequestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseRequest(append(der, 0x00)); err == nil {
		t.Error("expected an error for trailing data")
	}
}

func TestU_ResponseStatus_Valid(t *testing.T) {
	for _, s := range []ResponseStatus{StatusSuccessful, StatusMalformedRequest,
		StatusInternalError, StatusTryLater, StatusSigRequired, StatusUnauthorized} {
		if !s.Valid() {
			t.Errorf("status %d (%s) must be valid", int(s), s)
		}
	}
	for _, s := range []ResponseStatus{4, 7, -1, 99} {
		if s.Valid() {
			t.Errorf("status %d must be invalid", int(s))
		}
	}
}

func TestU_ResponseBuilder_InvalidStatus(t *testing.T) {
	signer := newSoftSigner(t)
	b := NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)

	for _, s := range []ResponseStatus{4, 7, 99} {
		if _, err := b.Build(context.Background(), s); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("status %d: expected ErrInvalidStatus, got %v", int(s), err)
		}
	}
	if signer.calls != 0 {
		t.Error("signer was called for an invalid status")
	}
}

func TestU_ResponseBuilder_ErrorResponse(t *testing.T) {
	signer := newSoftSigner(t)
	b := NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)

	der, err := b.Build(context.Background(), StatusTryLater)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if signer.calls != 0 {
		t.Error("a non-successful response must not be signed")
	}

	resp, err := ParseResponse(der)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if ResponseStatus(resp.Status) != StatusTryLater {
		t.Errorf("status %d, want %d", resp.Status, StatusTryLater)
	}
	if len(resp.ResponseBytes.ResponseType) != 0 {
		t.Error("a non-successful response must carry no response bytes")
	}
}

func TestU_ResponseBuilder_RequiresEntriesAndResponder(t *testing.T) {
	signer := newSoftSigner(t)
	ctx := context.Background()

	b := NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)
	if err := b.SetResponderName(pkix.Name{CommonName: "Responder"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(ctx, StatusSuccessful); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument without entries, got %v", err)
	}

	b = NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)
	now := time.Now().UTC()
	b.AddGood(testEntry(1), now, now.Add(time.Hour))
	if _, err := b.Build(ctx, StatusSuccessful); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument without responder ID, got %v", err)
	}
	if signer.calls != 0 {
		t.Error("signer was called for a rejected response")
	}
}

func TestU_ResponseBuilder_DuplicateExtensionsBeforeSigning(t *testing.T) {
	signer := newSoftSigner(t)
	b := NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)
	if err := b.SetResponderName(pkix.Name{CommonName: "Responder"}); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	b.AddGood(testEntry(1), now, now.Add(time.Hour))
	b.AddNonce([]byte{0x01}).AddNonce([]byte{0x02})

	_, err := b.Build(context.Background(), StatusSuccessful)
	if !errors.Is(err, x509util.ErrDuplicateExtension) {
		t.Fatalf("expected ErrDuplicateExtension, got %v", err)
	}
	if signer.calls != 0 {
		t.Error("signer was called although validation failed")
	}
}

func TestU_ResponseBuilder_Successful(t *testing.T) {
	signer := newSoftSigner(t)
	b := NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)
	if err := b.SetResponderName(pkix.Name{CommonName: "Example OCSP"}); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	next := now.Add(24 * time.Hour)
	revokedAt := now.Add(-time.Hour)
	nonce := []byte{0xaa, 0xbb, 0xcc}

	b.AddGood(testEntry(1), now, next)
	b.AddRevoked(testEntry(2), now, next, revokedAt, ReasonKeyCompromise)
	b.AddUnknown(testEntry(3), now, next)
	b.AddNonce(nonce)

	der, err := b.Build(context.Background(), StatusSuccessful)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	resp, err := ParseResponse(der)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if ResponseStatus(resp.Status) != StatusSuccessful {
		t.Fatalf("status %d, want successful", resp.Status)
	}
	if !resp.ResponseBytes.ResponseType.Equal(OIDOcspBasic) {
		t.Fatalf("response type %v, want id-pkix-ocsp-basic", resp.ResponseBytes.ResponseType)
	}

	basic, err := ParseBasicResponse(resp.ResponseBytes.Response)
	if err != nil {
		t.Fatalf("ParseBasicResponse failed: %v", err)
	}

	data := basic.TBSResponseData
	if data.ResponderID.Tag != 1 {
		t.Errorf("responder ID tag %d, want byName [1]", data.ResponderID.Tag)
	}
	if len(data.Responses) != 3 {
		t.Fatalf("got %d single responses, want 3", len(data.Responses))
	}

	wantTags := []int{0, 1, 2} // good, revoked, unknown
	for i, single := range data.Responses {
		if single.CertStatus.Tag != wantTags[i] {
			t.Errorf("response %d: cert status tag %d, want %d", i, single.CertStatus.Tag, wantTags[i])
		}
		if !single.ThisUpdate.Equal(now) {
			t.Errorf("response %d: thisUpdate %s, want %s", i, single.ThisUpdate, now)
		}
		if !single.NextUpdate.Equal(next) {
			t.Errorf("response %d: nextUpdate %s, want %s", i, single.NextUpdate, next)
		}
	}

	// The revoked entry carries RevokedInfo as the implicit tag content.
	var revoked RevokedInfo
	revokedSeq := append([]byte{0x30, byte(len(data.Responses[1].CertStatus.Bytes))},
		data.Responses[1].CertStatus.Bytes...)
	if _, err := asn1.Unmarshal(revokedSeq, &revoked); err != nil {
		t.Fatalf("revoked info does not parse: %v", err)
	}
	if !revoked.RevocationTime.Equal(revokedAt) {
		t.Errorf("revocation time %s, want %s", revoked.RevocationTime, revokedAt)
	}
	if RevocationReason(revoked.RevocationReason) != ReasonKeyCompromise {
		t.Errorf("revocation reason %d, want keyCompromise", revoked.RevocationReason)
	}

	// Nonce extension survives the round trip.
	var gotNonce []byte
	for _, ext := range data.ResponseExtensions {
		if ext.Id.Equal(OIDOcspNonce) {
			if _, err := asn1.Unmarshal(ext.Value, &gotNonce); err != nil {
				t.Fatalf("nonce value does not parse: %v", err)
			}
		}
	}
	if !bytes.Equal(gotNonce, nonce) {
		t.Errorf("nonce %x, want %x", gotNonce, nonce)
	}

	// The signature covers the re-marshaled ResponseData.
	tbsDER, err := asn1.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(signer.public(), tbsDER, basic.Signature.Bytes) {
		t.Error("signature does not verify over the response data")
	}
}

func TestU_ResponseBuilder_ResponderKeyHash(t *testing.T) {
	signer := newSoftSigner(t)
	keyHash := bytes.Repeat([]byte{0x5a}, 20)

	b := NewResponseBuilder(signer, "ocsp-signer", token.Ed25519)
	if err := b.SetResponderKeyHash(keyHash); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	b.AddGood(testEntry(1), now, now.Add(time.Hour))

	der, err := b.Build(context.Background(), StatusSuccessful)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	resp, err := ParseResponse(der)
	if err != nil {
		t.Fatal(err)
	}
	basic, err := ParseBasicResponse(resp.ResponseBytes.Response)
	if err != nil {
		t.Fatal(err)
	}

	responderID := basic.TBSResponseData.ResponderID
	if responderID.Tag != 2 {
		t.Fatalf("responder ID tag %d, want byKey [2]", responderID.Tag)
	}
	var gotHash []byte
	if _, err := asn1.Unmarshal(responderID.Bytes, &gotHash); err != nil {
		t.Fatalf("key hash does not parse: %v", err)
	}
	if !bytes.Equal(gotHash, keyHash) {
		t.Errorf("key hash %x, want %x", gotHash, keyHash)
	}
}
