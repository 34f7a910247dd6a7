//go:build !cgo

// Stub used when CGO is not available. PKCS#11 support requires CGO;
// remote mode (BaseURL) works without it.
package token

import "fmt"

// OpenPKCS11 returns an error when CGO is not available.
func OpenPKCS11(_ Config) (Conn, error) {
	return nil, fmt.Errorf("PKCS#11 support requires CGO (build with CGO_ENABLED=1)")
}
