package token

// Conn is a live session with a cryptographic token. Implementations are
// not required to be safe for concurrent use; the SessionManager
// serializes access. Sign receives mechanism-ready input: the raw message
// for RSA and Edwards keys, the curve-matched digest for ECDSA keys.
// ECDSA signatures cross this interface in fixed-width r||s form.
type Conn interface {
	GenerateKeyPair(kt KeyType, label string) error
	ImportKeyPair(kt KeyType, label string, pubDER, privDER []byte) error
	PublicKey(kt KeyType, label string) (spkiDER []byte, err error)
	ListKeys() (map[string]KeyType, error)
	Sign(kt KeyType, label string, data []byte) ([]byte, error)
	Verify(kt KeyType, label string, data, sig []byte) (bool, error)
	DeleteKeyPair(kt KeyType, label string) error
	ImportCertificate(label string, certDER []byte) error
	ExportCertificate(label string) ([]byte, error)
	DeleteCertificate(label string) error
	Close() error
}

// Opener establishes a fresh device session. The SessionManager calls it
// on first use and again on every forced reopen.
type Opener func(cfg Config) (Conn, error)
