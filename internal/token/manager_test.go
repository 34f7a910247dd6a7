package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/svlund/tokenpki/internal/audit"
)

// recordWriter captures audit events in memory.
type recordWriter struct {
	events []*audit.Event
	fail   bool
}

func (w *recordWriter) Write(e *audit.Event) error {
	if w.fail {
		return fmt.Errorf("disk full")
	}
	w.events = append(w.events, e)
	return nil
}

func (w *recordWriter) Close() error     { return nil }
func (w *recordWriter) LastHash() string { return audit.GenesisHash }

func staticOpener(c Conn) Opener {
	return func(Config) (Conn, error) { return c, nil }
}

func sequenceOpener(conns ...Conn) Opener {
	i := 0
	return func(Config) (Conn, error) {
		if i >= len(conns) {
			return nil, fmt.Errorf("no more devices")
		}
		c := conns[i]
		i++
		return c, nil
	}
}

func newTestManager(t *testing.T, conn Conn) *SessionManager {
	t.Helper()
	return NewSessionManager(Config{}, staticOpener(conn), nil)
}

func TestU_SessionManager_CreateKeyPair(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	pemStr, keyID, err := m.CreateKeyPair(context.Background(), "test-key", Ed25519)
	if err != nil {
		t.Fatalf("CreateKeyPair failed: %v", err)
	}
	if len(keyID) != 20 {
		t.Errorf("key identifier is %d bytes, want 20", len(keyID))
	}
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil || block.Type != "PUBLIC KEY" {
		t.Fatalf("expected PUBLIC KEY PEM block, got %q", pemStr)
	}
	if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
		t.Errorf("public key does not parse: %v", err)
	}
}

func TestU_SessionManager_CreateKeyPair_Duplicate(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	ctx := context.Background()
	if _, _, err := m.CreateKeyPair(ctx, "dup", P256); err != nil {
		t.Fatalf("first CreateKeyPair failed: %v", err)
	}
	_, _, err := m.CreateKeyPair(ctx, "dup", P256)
	if !errors.Is(err, ErrKeyExists) {
		t.Errorf("expected ErrKeyExists, got %v", err)
	}
	// The same label with a different type is a distinct key pair.
	if _, _, err := m.CreateKeyPair(ctx, "dup", Ed25519); err != nil {
		t.Errorf("same label, different type should succeed: %v", err)
	}
}

func TestU_SessionManager_CreateKeyPair_UnsupportedType(t *testing.T) {
	m := newTestManager(t, newFakeConn())
	defer m.Close()

	_, _, err := m.CreateKeyPair(context.Background(), "k", KeyType("rsa_1024"))
	if !errors.Is(err, ErrUnsupportedKeyType) {
		t.Errorf("expected ErrUnsupportedKeyType, got %v", err)
	}
}

func TestU_SessionManager_SignVerify_AllTypes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping key generation for all types in short mode")
	}
	data := []byte("the quick brown fox jumps over the lazy dog")

	for _, kt := range KeyTypes() {
		kt := kt
		t.Run(string(kt), func(t *testing.T) {
			fake := newFakeConn()
			m := newTestManager(t, fake)
			defer m.Close()

			ctx := context.Background()
			label := "sign-" + string(kt)
			if _, _, err := m.CreateKeyPair(ctx, label, kt); err != nil {
				t.Fatalf("CreateKeyPair failed: %v", err)
			}

			sig, err := m.Sign(ctx, label, data, kt, true)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}
			if kt.IsEC() {
				c, _ := Capability(kt)
				if _, err := ecSignatureFromDER(sig, c.ComponentSize); err != nil {
					t.Errorf("ECDSA signature is not valid DER: %v", err)
				}
			}

			ok, err := m.Verify(ctx, label, data, sig, kt)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !ok {
				t.Error("Verify rejected a fresh signature")
			}

			ok, err = m.Verify(ctx, label, append(data, 'x'), sig, kt)
			if err != nil {
				t.Fatalf("Verify of tampered data failed: %v", err)
			}
			if ok {
				t.Error("Verify accepted a signature over different data")
			}
		})
	}
}

func TestU_SessionManager_Sign_VerifyAfterCatchesBadSignature(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	ctx := context.Background()
	if _, _, err := m.CreateKeyPair(ctx, "flaky", Ed25519); err != nil {
		t.Fatalf("CreateKeyPair failed: %v", err)
	}

	fake.corruptSign = true
	_, err := m.Sign(ctx, "flaky", []byte("data"), Ed25519, true)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid, got %v", err)
	}

	// Without the verification round trip the bad signature is returned.
	if _, err := m.Sign(ctx, "flaky", []byte("data"), Ed25519, false); err != nil {
		t.Errorf("Sign without verify should not fail: %v", err)
	}
}

func TestU_SessionManager_Sign_NoSuchKey(t *testing.T) {
	m := newTestManager(t, newFakeConn())
	defer m.Close()

	_, err := m.Sign(context.Background(), "missing", []byte("data"), Ed25519, false)
	if !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("expected ErrNoSuchKey, got %v", err)
	}
}

func TestU_SessionManager_KeyLabels(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	ctx := context.Background()
	want := map[string]KeyType{"a": Ed25519, "b": P256}
	for label, kt := range want {
		if _, _, err := m.CreateKeyPair(ctx, label, kt); err != nil {
			t.Fatalf("CreateKeyPair(%s) failed: %v", label, err)
		}
	}

	labels, err := m.KeyLabels(ctx)
	if err != nil {
		t.Fatalf("KeyLabels failed: %v", err)
	}
	if len(labels) != len(want) {
		t.Fatalf("got %d labels, want %d: %v", len(labels), len(want), labels)
	}
	for label, kt := range want {
		if labels[label] != kt {
			t.Errorf("label %q: got type %q, want %q", label, labels[label], kt)
		}
	}
}

func TestU_SessionManager_DeleteKeyPair(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	ctx := context.Background()
	if _, _, err := m.CreateKeyPair(ctx, "gone", Ed25519); err != nil {
		t.Fatalf("CreateKeyPair failed: %v", err)
	}
	if err := m.DeleteKeyPair(ctx, "gone", Ed25519); err != nil {
		t.Fatalf("DeleteKeyPair failed: %v", err)
	}
	if _, _, err := m.PublicKeyData(ctx, "gone", Ed25519); !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("expected ErrNoSuchKey after delete, got %v", err)
	}
	if err := m.DeleteKeyPair(ctx, "gone", Ed25519); !errors.Is(err, ErrNoSuchKey) {
		t.Errorf("expected ErrNoSuchKey deleting twice, got %v", err)
	}
}

func TestU_SessionManager_ImportKeyPair(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := m.ImportKeyPair(ctx, "imported", Ed25519, pubDER, privDER); err != nil {
		t.Fatalf("ImportKeyPair failed: %v", err)
	}

	sig, err := m.Sign(ctx, "imported", []byte("hello"), Ed25519, false)
	if err != nil {
		t.Fatalf("Sign with imported key failed: %v", err)
	}
	if !ed25519.Verify(pub, []byte("hello"), sig) {
		t.Error("signature does not verify against the imported public key")
	}

	if err := m.ImportKeyPair(ctx, "imported", Ed25519, pubDER, privDER); !errors.Is(err, ErrKeyExists) {
		t.Errorf("expected ErrKeyExists on second import, got %v", err)
	}
}

func TestU_SessionManager_CertificateRoundTrip(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)
	defer m.Close()

	certPEM := selfSignedCertPEM(t)
	ctx := context.Background()

	if err := m.ImportCertificate(ctx, certPEM, "server"); err != nil {
		t.Fatalf("ImportCertificate failed: %v", err)
	}
	if err := m.ImportCertificate(ctx, certPEM, "server"); !errors.Is(err, ErrObjectExists) {
		t.Errorf("expected ErrObjectExists on second import, got %v", err)
	}

	exported, err := m.ExportCertificate(ctx, "server")
	if err != nil {
		t.Fatalf("ExportCertificate failed: %v", err)
	}
	if exported != certPEM {
		t.Error("exported certificate differs from the imported one")
	}

	if err := m.DeleteCertificate(ctx, "server"); err != nil {
		t.Fatalf("DeleteCertificate failed: %v", err)
	}
	if _, err := m.ExportCertificate(ctx, "server"); !errors.Is(err, ErrNoSuchObject) {
		t.Errorf("expected ErrNoSuchObject after delete, got %v", err)
	}
}

func TestU_SessionManager_ImportCertificate_RejectsGarbage(t *testing.T) {
	m := newTestManager(t, newFakeConn())
	defer m.Close()

	if err := m.ImportCertificate(context.Background(), "not a pem", "x"); err == nil {
		t.Error("expected an error for non-PEM input")
	}
}

func TestU_SessionManager_SentinelBootstrap(t *testing.T) {
	fake := newFakeConn()
	aud := &recordWriter{}
	m := NewSessionManager(Config{RecreateSession: true}, staticOpener(fake), aud)
	defer m.Close()

	if _, err := m.KeyLabels(context.Background()); err != nil {
		t.Fatalf("first operation failed: %v", err)
	}

	// The probe must have generated the sentinel key on first contact.
	if _, ok := fake.keys[keySlot(RSA2048, SentinelKeyLabel)]; !ok {
		t.Error("sentinel key pair was not generated on first probe")
	}
}

func TestU_SessionManager_ProbeTimeout_Reopens(t *testing.T) {
	stuck := newFakeConn()
	stuck.stall = make(chan struct{}) // never closed

	// Pre-seed the sentinel so the probe fits the short test timeout.
	healthy := newFakeConn()
	if err := healthy.GenerateKeyPair(RSA2048, SentinelKeyLabel); err != nil {
		t.Fatal(err)
	}

	aud := &recordWriter{}
	cfg := Config{RecreateSession: true, Timeout: 50 * time.Millisecond}
	m := NewSessionManager(cfg, sequenceOpener(stuck, healthy), aud)
	defer m.Close()

	if _, err := m.KeyLabels(context.Background()); err != nil {
		t.Fatalf("operation should succeed after forced reopen: %v", err)
	}

	var reopened bool
	for _, e := range aud.events {
		if e.EventType == audit.EventSessionReopened {
			reopened = true
		}
	}
	if !reopened {
		t.Error("no SESSION_REOPENED audit event was written")
	}
}

func TestU_SessionManager_DeviceUnresponsive(t *testing.T) {
	open := func(Config) (Conn, error) {
		c := newFakeConn()
		c.stall = make(chan struct{})
		return c, nil
	}
	cfg := Config{RecreateSession: true, Timeout: 50 * time.Millisecond}
	m := NewSessionManager(cfg, open, nil)
	defer m.Close()

	_, err := m.KeyLabels(context.Background())
	if !errors.Is(err, ErrDeviceUnresponsive) {
		t.Errorf("expected ErrDeviceUnresponsive, got %v", err)
	}
}

func TestU_SessionManager_AuditFailureFailsOperation(t *testing.T) {
	fake := newFakeConn()
	aud := &recordWriter{fail: true}
	m := NewSessionManager(Config{}, staticOpener(fake), aud)
	defer m.Close()

	_, _, err := m.CreateKeyPair(context.Background(), "k", Ed25519)
	if err == nil {
		t.Fatal("expected the operation to fail when the audit write fails")
	}
	// The key was generated on the device but the operation still fails.
	if _, ok := fake.keys[keySlot(Ed25519, "k")]; !ok {
		t.Error("device operation should have run before the audit write")
	}
}

func TestU_SessionManager_LockHonorsContext(t *testing.T) {
	m := newTestManager(t, newFakeConn())
	defer func() {
		m.unlock()
		m.Close()
	}()

	// Hold the operation semaphore so the next caller has to wait.
	m.mu <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.KeyLabels(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestU_SessionManager_Close(t *testing.T) {
	fake := newFakeConn()
	m := newTestManager(t, fake)

	if _, err := m.KeyLabels(context.Background()); err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fake.closed {
		t.Error("device session was not closed")
	}
	// Closing an already closed manager is a no-op.
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

// selfSignedCertPEM builds a throwaway self-signed certificate.
func selfSignedCertPEM(t *testing.T) string {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
