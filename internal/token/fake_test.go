package token

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/cloudflare/circl/sign/ed448"
)

// fakeConn is an in-memory device backed by software crypto. It mirrors
// the driver contract: Sign consumes mechanism-ready input and ECDSA
// signatures cross the interface in fixed-width r||s form.
type fakeConn struct {
	mu     sync.Mutex
	keys   map[string]any // label/keytype -> private key
	certs  map[string][]byte
	closed bool

	// stall, when non-nil, blocks PublicKey until the channel is closed.
	stall chan struct{}
	// corruptSign flips a signature byte to simulate a faulty device.
	corruptSign bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		keys:  make(map[string]any),
		certs: make(map[string][]byte),
	}
}

func keySlot(kt KeyType, label string) string {
	return label + "/" + string(kt)
}

func (f *fakeConn) GenerateKeyPair(kt KeyType, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := keySlot(kt, label)
	if _, ok := f.keys[slot]; ok {
		return fmt.Errorf("%w: %q", ErrKeyExists, label)
	}
	priv, err := generateSoftwareKey(kt)
	if err != nil {
		return err
	}
	f.keys[slot] = priv
	return nil
}

// generateSoftwareKey uses a 2048-bit modulus for both RSA types to keep
// the tests fast; the capability table only selects the digest.
func generateSoftwareKey(kt KeyType) (any, error) {
	switch kt {
	case RSA2048, RSA4096:
		return rsa.GenerateKey(rand.Reader, 2048)
	case P256:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case P384:
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case P521:
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	case Ed448:
		_, priv, err := ed448.GenerateKey(rand.Reader)
		return priv, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, kt)
	}
}

func (f *fakeConn) ImportKeyPair(kt KeyType, label string, pubDER, privDER []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := keySlot(kt, label)
	if _, ok := f.keys[slot]; ok {
		return fmt.Errorf("%w: %q", ErrKeyExists, label)
	}
	if kt == Ed448 {
		if len(privDER) != ed448.SeedSize {
			return fmt.Errorf("ed448 seed must be %d bytes", ed448.SeedSize)
		}
		f.keys[slot] = ed448.NewKeyFromSeed(privDER)
		return nil
	}
	priv, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	f.keys[slot] = priv
	return nil
}

func (f *fakeConn) PublicKey(kt KeyType, label string) ([]byte, error) {
	if f.stall != nil {
		<-f.stall
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	priv, ok := f.keys[keySlot(kt, label)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
	}
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return x509.MarshalPKIXPublicKey(&k.PublicKey)
	case *ecdsa.PrivateKey:
		return x509.MarshalPKIXPublicKey(&k.PublicKey)
	case ed25519.PrivateKey:
		return x509.MarshalPKIXPublicKey(k.Public())
	case ed448.PrivateKey:
		pub := k.Public().(ed448.PublicKey)
		return edSPKI(Ed448, pub)
	}
	return nil, fmt.Errorf("unsupported key in slot %q", label)
}

func (f *fakeConn) ListKeys() (map[string]KeyType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]KeyType, len(f.keys))
	for slot := range f.keys {
		for _, kt := range KeyTypes() {
			suffix := "/" + string(kt)
			if len(slot) > len(suffix) && slot[len(slot)-len(suffix):] == suffix {
				out[slot[:len(slot)-len(suffix)]] = kt
			}
		}
	}
	return out, nil
}

func (f *fakeConn) Sign(kt KeyType, label string, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	priv, ok := f.keys[keySlot(kt, label)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
	}
	c, err := Capability(kt)
	if err != nil {
		return nil, err
	}

	var sig []byte
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		// The RSA mechanisms hash inside the device.
		h := c.Hash.New()
		h.Write(data)
		sig, err = rsa.SignPKCS1v15(rand.Reader, k, c.Hash, h.Sum(nil))
	case *ecdsa.PrivateKey:
		// data is the curve-matched digest already.
		var r, s []byte
		r, s, err = signECDSAComponents(k, data, c.ComponentSize)
		if err == nil {
			sig = append(r, s...)
		}
	case ed25519.PrivateKey:
		sig = ed25519.Sign(k, data)
	case ed448.PrivateKey:
		sig = ed448.Sign(k, data, "")
	default:
		return nil, fmt.Errorf("unsupported key in slot %q", label)
	}
	if err != nil {
		return nil, err
	}
	if f.corruptSign && len(sig) > 0 {
		sig[0] ^= 0xff
	}
	return sig, nil
}

func signECDSAComponents(k *ecdsa.PrivateKey, digest []byte, width int) ([]byte, []byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, k, digest)
	if err != nil {
		return nil, nil, err
	}
	rb := make([]byte, width)
	sb := make([]byte, width)
	r.FillBytes(rb)
	s.FillBytes(sb)
	return rb, sb, nil
}

func (f *fakeConn) Verify(kt KeyType, label string, data, sig []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	priv, ok := f.keys[keySlot(kt, label)]
	if !ok {
		return false, fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
	}
	c, err := Capability(kt)
	if err != nil {
		return false, err
	}

	switch k := priv.(type) {
	case *rsa.PrivateKey:
		h := c.Hash.New()
		h.Write(data)
		return rsa.VerifyPKCS1v15(&k.PublicKey, c.Hash, h.Sum(nil), sig) == nil, nil
	case *ecdsa.PrivateKey:
		if len(sig) != 2*c.ComponentSize {
			return false, nil
		}
		der, err := ecSignatureToDER(sig, c.ComponentSize)
		if err != nil {
			return false, nil
		}
		return ecdsa.VerifyASN1(&k.PublicKey, data, der), nil
	case ed25519.PrivateKey:
		return ed25519.Verify(k.Public().(ed25519.PublicKey), data, sig), nil
	case ed448.PrivateKey:
		return ed448.Verify(k.Public().(ed448.PublicKey), data, sig, ""), nil
	}
	return false, fmt.Errorf("unsupported key in slot %q", label)
}

func (f *fakeConn) DeleteKeyPair(kt KeyType, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := keySlot(kt, label)
	if _, ok := f.keys[slot]; !ok {
		return fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
	}
	delete(f.keys, slot)
	return nil
}

func (f *fakeConn) ImportCertificate(label string, certDER []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.certs[label]; ok {
		return fmt.Errorf("%w: %q", ErrObjectExists, label)
	}
	f.certs[label] = certDER
	return nil
}

func (f *fakeConn) ExportCertificate(label string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	der, ok := f.certs[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchObject, label)
	}
	return der, nil
}

func (f *fakeConn) DeleteCertificate(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.certs[label]; !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchObject, label)
	}
	delete(f.certs, label)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
