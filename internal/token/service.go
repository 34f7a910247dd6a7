package token

import "context"

// Service is the full set of token operations. SessionManager implements
// it against a local PKCS#11 module; RemoteClient implements it against
// an HTTP delegation endpoint.
type Service interface {
	// CreateKeyPair generates a key pair on the token and returns the
	// public key as PEM plus the SHA-1 key identifier.
	CreateKeyPair(ctx context.Context, label string, kt KeyType) (string, []byte, error)

	// ImportKeyPair stores an externally generated key pair (DER encoded
	// public and private keys) on the token.
	ImportKeyPair(ctx context.Context, label string, kt KeyType, pubDER, privDER []byte) error

	// KeyLabels lists all key labels on the token with their types.
	KeyLabels(ctx context.Context) (map[string]KeyType, error)

	// Sign signs data with the named key. ECDSA signatures are returned
	// in DER form. When verifyAfter is set the fresh signature is
	// round-tripped through Verify before being returned.
	Sign(ctx context.Context, label string, data []byte, kt KeyType, verifyAfter bool) ([]byte, error)

	// Verify checks a signature. ECDSA signatures are accepted in both
	// DER and fixed-width r||s form.
	Verify(ctx context.Context, label string, data, sig []byte, kt KeyType) (bool, error)

	// DeleteKeyPair removes both halves of a key pair.
	DeleteKeyPair(ctx context.Context, label string, kt KeyType) error

	// PublicKeyData returns the public key PEM and SHA-1 key identifier
	// for an existing key.
	PublicKeyData(ctx context.Context, label string, kt KeyType) (string, []byte, error)

	// ImportCertificate stores an X.509 certificate (PEM) on the token.
	ImportCertificate(ctx context.Context, certPEM, label string) error

	// ExportCertificate retrieves a stored certificate as PEM.
	ExportCertificate(ctx context.Context, label string) (string, error)

	// DeleteCertificate removes a stored certificate.
	DeleteCertificate(ctx context.Context, label string) error

	Close() error
}
