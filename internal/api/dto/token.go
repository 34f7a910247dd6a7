// Package dto defines the JSON request/response types shared by the
// delegation server and the remote client. Binary values travel base64
// encoded; public keys and certificates travel as PEM.
package dto

// Error is the JSON body of every non-2xx response. Detail carries a
// stable string the client maps back to a sentinel error.
type Error struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// Detail strings for domain errors.
const (
	DetailNoSuchKey          = "NoSuchKey"
	DetailKeyExists          = "KeyExists"
	DetailMultipleObjects    = "MultipleObjects"
	DetailObjectExists       = "ObjectExists"
	DetailNoSuchObject       = "NoSuchObject"
	DetailUnsupportedKeyType = "UnsupportedKeyType"
	DetailSignatureInvalid   = "SignatureInvalid"
	DetailDeviceUnresponsive = "DeviceUnresponsive"
)

// KeyRequest identifies a key by label and type.
type KeyRequest struct {
	KeyLabel string `json:"key_label"`
	KeyType  string `json:"key_type"`
}

// ImportKeyPairRequest carries DER key material for import.
type ImportKeyPairRequest struct {
	KeyLabel      string `json:"key_label"`
	KeyType       string `json:"key_type"`
	PublicKeyB64  string `json:"public_key_b64"`
	PrivateKeyB64 string `json:"private_key_b64"`
}

// SignRequest asks the token to sign data.
type SignRequest struct {
	KeyLabel        string `json:"key_label"`
	KeyType         string `json:"key_type"`
	DataB64         string `json:"data_b64"`
	VerifySignature bool   `json:"verify_signature"`
}

// SignResponse returns the signature.
type SignResponse struct {
	SignatureB64 string `json:"signature_b64"`
}

// VerifyRequest asks the token to verify a signature.
type VerifyRequest struct {
	KeyLabel     string `json:"key_label"`
	KeyType      string `json:"key_type"`
	DataB64      string `json:"data_b64"`
	SignatureB64 string `json:"signature_b64"`
}

// VerifyResponse returns the verification outcome.
type VerifyResponse struct {
	Verified bool `json:"verified"`
}

// PublicKeyResponse returns a public key and its identifier.
type PublicKeyResponse struct {
	SubjectPublicKeyInfo    string `json:"subjectPublicKeyInfo"`
	SubjectKeyIdentifierB64 string `json:"subjectKeyIdentifier_b64"`
}

// KeyLabelsResponse lists key labels with their types.
type KeyLabelsResponse struct {
	KeyLabels map[string]string `json:"key_labels"`
}

// ImportCertificateRequest stores a certificate on the token.
type ImportCertificateRequest struct {
	CertLabel string `json:"cert_label"`
	PEM       string `json:"pem"`
}

// CertificateRequest identifies a stored certificate.
type CertificateRequest struct {
	CertLabel string `json:"cert_label"`
}

// CertificateResponse returns a stored certificate as PEM.
type CertificateResponse struct {
	Certificate string `json:"certificate"`
}

// StatusResponse acknowledges a mutating operation.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports server health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
