package token

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/svlund/tokenpki/internal/api/dto"
)

// RemoteClient delegates every token operation to an HTTP endpoint
// speaking the delegation protocol served by internal/api. It needs no
// local PKCS#11 module and works without CGO.
type RemoteClient struct {
	baseURL string
	client  *http.Client
}

var _ Service = (*RemoteClient)(nil)

// NewRemoteClient builds a client for cfg.BaseURL. The HTTP timeout is
// the configured device timeout.
func NewRemoteClient(cfg Config) *RemoteClient {
	cfg.applyDefaults()
	return &RemoteClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// post sends one JSON request and decodes the response. Non-2xx
// responses are mapped back to sentinel errors via their detail string.
func (r *RemoteClient) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnresponsive, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr dto.Error
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
			if sentinel := errorFromDetail(apiErr.Detail); sentinel != nil {
				return fmt.Errorf("%s: %w", path, sentinel)
			}
			return fmt.Errorf("%s: %s", path, apiErr.Detail)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorFromDetail maps a wire detail string to a sentinel error.
func errorFromDetail(detail string) error {
	switch detail {
	case dto.DetailNoSuchKey:
		return ErrNoSuchKey
	case dto.DetailKeyExists:
		return ErrKeyExists
	case dto.DetailMultipleObjects:
		return ErrMultipleObjects
	case dto.DetailObjectExists:
		return ErrObjectExists
	case dto.DetailNoSuchObject:
		return ErrNoSuchObject
	case dto.DetailUnsupportedKeyType:
		return ErrUnsupportedKeyType
	case dto.DetailSignatureInvalid:
		return ErrSignatureInvalid
	case dto.DetailDeviceUnresponsive:
		return ErrDeviceUnresponsive
	default:
		return nil
	}
}

// CreateKeyPair generates a key pair on the remote token.
func (r *RemoteClient) CreateKeyPair(ctx context.Context, label string, kt KeyType) (string, []byte, error) {
	var resp dto.PublicKeyResponse
	err := r.post(ctx, "/create_keypair", dto.KeyRequest{KeyLabel: label, KeyType: string(kt)}, &resp)
	if err != nil {
		return "", nil, err
	}
	keyID, err := base64.StdEncoding.DecodeString(resp.SubjectKeyIdentifierB64)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode key identifier: %w", err)
	}
	return resp.SubjectPublicKeyInfo, keyID, nil
}

// ImportKeyPair stores key material on the remote token.
func (r *RemoteClient) ImportKeyPair(ctx context.Context, label string, kt KeyType, pubDER, privDER []byte) error {
	req := dto.ImportKeyPairRequest{
		KeyLabel:      label,
		KeyType:       string(kt),
		PublicKeyB64:  base64.StdEncoding.EncodeToString(pubDER),
		PrivateKeyB64: base64.StdEncoding.EncodeToString(privDER),
	}
	return r.post(ctx, "/import_keypair", req, nil)
}

// KeyLabels lists keys on the remote token.
func (r *RemoteClient) KeyLabels(ctx context.Context) (map[string]KeyType, error) {
	var resp dto.KeyLabelsResponse
	if err := r.post(ctx, "/key_labels", struct{}{}, &resp); err != nil {
		return nil, err
	}
	labels := make(map[string]KeyType, len(resp.KeyLabels))
	for label, kt := range resp.KeyLabels {
		parsed, err := ParseKeyType(kt)
		if err != nil {
			return nil, err
		}
		labels[label] = parsed
	}
	return labels, nil
}

// Sign signs data with a remote key.
func (r *RemoteClient) Sign(ctx context.Context, label string, data []byte, kt KeyType, verifyAfter bool) ([]byte, error) {
	req := dto.SignRequest{
		KeyLabel:        label,
		KeyType:         string(kt),
		DataB64:         base64.StdEncoding.EncodeToString(data),
		VerifySignature: verifyAfter,
	}
	var resp dto.SignResponse
	if err := r.post(ctx, "/sign", req, &resp); err != nil {
		return nil, err
	}
	sig, err := base64.StdEncoding.DecodeString(resp.SignatureB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return sig, nil
}

// Verify checks a signature with a remote key.
func (r *RemoteClient) Verify(ctx context.Context, label string, data, sig []byte, kt KeyType) (bool, error) {
	req := dto.VerifyRequest{
		KeyLabel:     label,
		KeyType:      string(kt),
		DataB64:      base64.StdEncoding.EncodeToString(data),
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
	}
	var resp dto.VerifyResponse
	if err := r.post(ctx, "/verify", req, &resp); err != nil {
		return false, err
	}
	return resp.Verified, nil
}

// DeleteKeyPair removes a key pair from the remote token.
func (r *RemoteClient) DeleteKeyPair(ctx context.Context, label string, kt KeyType) error {
	return r.post(ctx, "/delete_keypair", dto.KeyRequest{KeyLabel: label, KeyType: string(kt)}, nil)
}

// PublicKeyData fetches a remote public key and its identifier.
func (r *RemoteClient) PublicKeyData(ctx context.Context, label string, kt KeyType) (string, []byte, error) {
	var resp dto.PublicKeyResponse
	err := r.post(ctx, "/public_key_data", dto.KeyRequest{KeyLabel: label, KeyType: string(kt)}, &resp)
	if err != nil {
		return "", nil, err
	}
	keyID, err := base64.StdEncoding.DecodeString(resp.SubjectKeyIdentifierB64)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode key identifier: %w", err)
	}
	return resp.SubjectPublicKeyInfo, keyID, nil
}

// ImportCertificate stores a certificate on the remote token.
func (r *RemoteClient) ImportCertificate(ctx context.Context, certPEM, label string) error {
	return r.post(ctx, "/import_certificate", dto.ImportCertificateRequest{CertLabel: label, PEM: certPEM}, nil)
}

// ExportCertificate fetches a stored certificate.
func (r *RemoteClient) ExportCertificate(ctx context.Context, label string) (string, error) {
	var resp dto.CertificateResponse
	if err := r.post(ctx, "/export_certificate", dto.CertificateRequest{CertLabel: label}, &resp); err != nil {
		return "", err
	}
	return resp.Certificate, nil
}

// DeleteCertificate removes a stored certificate from the remote token.
func (r *RemoteClient) DeleteCertificate(ctx context.Context, label string) error {
	return r.post(ctx, "/delete_certificate", dto.CertificateRequest{CertLabel: label}, nil)
}

// Close is a no-op; the client holds no persistent connection state.
func (r *RemoteClient) Close() error { return nil }
