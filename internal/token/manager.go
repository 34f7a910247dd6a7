package token

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/svlund/tokenpki/internal/audit"
)

// SessionManager mediates all access to a token device. A single mutex
// serializes every operation; when the config enables session recreation,
// each operation is preceded by a health probe, and a failed probe
// triggers one forced reopen before the operation is abandoned with
// ErrDeviceUnresponsive.
//
// Probe and reopen each run in their own goroutine bounded by the
// configured timeout. A call that never returns is abandoned, not
// killed; its goroutine is leaked along with the stuck device handle.
type SessionManager struct {
	cfg  Config
	open Opener
	aud  audit.Writer

	mu   chan struct{} // capacity-1 semaphore, held across each operation
	conn Conn
}

var _ Service = (*SessionManager)(nil)

// NewSessionManager builds a manager over the given opener. The session
// is established lazily on first use. A nil audit writer disables
// auditing.
func NewSessionManager(cfg Config, open Opener, aud audit.Writer) *SessionManager {
	cfg.applyDefaults()
	if aud == nil {
		aud = audit.NopWriter{}
	}
	return &SessionManager{
		cfg:  cfg,
		open: open,
		aud:  aud,
		mu:   make(chan struct{}, 1),
	}
}

// lock acquires the operation semaphore, honoring context cancellation.
func (m *SessionManager) lock(ctx context.Context) error {
	select {
	case m.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SessionManager) unlock() { <-m.mu }

// withConn runs fn against a healthy session, holding the semaphore.
func (m *SessionManager) withConn(ctx context.Context, fn func(Conn) error) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.unlock()

	if err := m.ensureSession(ctx); err != nil {
		return err
	}
	return fn(m.conn)
}

// ensureSession opens the session on first use and, when session
// recreation is enabled, probes it before every operation.
func (m *SessionManager) ensureSession(ctx context.Context) error {
	if m.conn == nil {
		if err := m.reopen(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnresponsive, err)
		}
	}
	if !m.cfg.RecreateSession {
		return nil
	}

	if err := m.probe(ctx); err == nil {
		return nil
	}

	// The probe failed or timed out: force a reopen and probe again.
	if err := m.reopen(ctx); err != nil {
		return fmt.Errorf("%w: reopen failed: %v", ErrDeviceUnresponsive, err)
	}
	if err := m.probe(ctx); err != nil {
		return fmt.Errorf("%w: probe failed after reopen: %v", ErrDeviceUnresponsive, err)
	}

	event := audit.NewEvent(audit.EventSessionReopened, audit.ResultSuccess).
		WithObject(audit.Object{Type: "session"})
	if err := m.aud.Write(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

// probe fetches the sentinel public key within the timeout, generating
// the sentinel key pair on first contact with a fresh token.
func (m *SessionManager) probe(ctx context.Context) error {
	conn := m.conn
	label := m.cfg.SentinelLabel
	return m.await(ctx, func() error {
		_, err := conn.PublicKey(RSA2048, label)
		if errors.Is(err, ErrNoSuchKey) {
			if genErr := conn.GenerateKeyPair(RSA2048, label); genErr != nil && !errors.Is(genErr, ErrKeyExists) {
				return genErr
			}
			_, err = conn.PublicKey(RSA2048, label)
		}
		return err
	})
}

// reopen discards the current session and opens a fresh one within the
// timeout. The old handle is closed best-effort; a stuck close does not
// block the reopen beyond the timeout.
func (m *SessionManager) reopen(ctx context.Context) error {
	old := m.conn
	m.conn = nil

	type result struct {
		conn Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if old != nil {
			_ = old.Close()
		}
		c, err := m.open(m.cfg)
		done <- result{c, err}
	}()

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		m.conn = r.conn
		return nil
	case <-timer.C:
		return fmt.Errorf("session reopen timed out after %s", m.cfg.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await runs fn in its own goroutine and waits for it, the timeout, or
// context cancellation, whichever comes first.
func (m *SessionManager) await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("device call timed out after %s", m.cfg.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// auditObject records a mutating operation, failing the operation when
// the audit write fails.
func (m *SessionManager) auditObject(eventType audit.EventType, obj audit.Object, opErr error) error {
	result := audit.ResultSuccess
	event := audit.NewEvent(eventType, result).WithObject(obj)
	if opErr != nil {
		event.Result = audit.ResultFailure
		event.Reason = opErr.Error()
	}
	if err := m.aud.Write(event); err != nil {
		if opErr != nil {
			return opErr
		}
		return fmt.Errorf("audit log failed: %w", err)
	}
	return opErr
}

// CreateKeyPair generates a key pair and returns its public key PEM and
// SHA-1 key identifier. An existing key with the same label and type is
// an error.
func (m *SessionManager) CreateKeyPair(ctx context.Context, label string, kt KeyType) (string, []byte, error) {
	if _, err := Capability(kt); err != nil {
		return "", nil, err
	}
	var spkiDER []byte
	err := m.withConn(ctx, func(c Conn) error {
		opErr := func() error {
			_, err := c.PublicKey(kt, label)
			if err == nil {
				return fmt.Errorf("%w: %q (%s)", ErrKeyExists, label, kt)
			}
			if !errors.Is(err, ErrNoSuchKey) {
				return err
			}
			if err := c.GenerateKeyPair(kt, label); err != nil {
				return err
			}
			spkiDER, err = c.PublicKey(kt, label)
			return err
		}()
		return m.auditObject(audit.EventKeyPairCreated,
			audit.Object{Type: "key", Label: label, KeyType: string(kt)}, opErr)
	})
	if err != nil {
		return "", nil, err
	}
	keyID, err := KeyIdentifier(spkiDER)
	if err != nil {
		return "", nil, err
	}
	return EncodePublicKeyPEM(spkiDER), keyID, nil
}

// ImportKeyPair stores an externally generated key pair on the token.
func (m *SessionManager) ImportKeyPair(ctx context.Context, label string, kt KeyType, pubDER, privDER []byte) error {
	if _, err := Capability(kt); err != nil {
		return err
	}
	return m.withConn(ctx, func(c Conn) error {
		opErr := func() error {
			_, err := c.PublicKey(kt, label)
			if err == nil {
				return fmt.Errorf("%w: %q (%s)", ErrKeyExists, label, kt)
			}
			if !errors.Is(err, ErrNoSuchKey) {
				return err
			}
			return c.ImportKeyPair(kt, label, pubDER, privDER)
		}()
		return m.auditObject(audit.EventKeyPairImported,
			audit.Object{Type: "key", Label: label, KeyType: string(kt)}, opErr)
	})
}

// KeyLabels lists all key labels on the token with their types.
func (m *SessionManager) KeyLabels(ctx context.Context) (map[string]KeyType, error) {
	var labels map[string]KeyType
	err := m.withConn(ctx, func(c Conn) error {
		var err error
		labels, err = c.ListKeys()
		return err
	})
	return labels, err
}

// Sign signs data with the named key. RSA and Edwards mechanisms consume
// the raw message; ECDSA consumes the curve-matched digest and the raw
// r||s output is converted to DER.
func (m *SessionManager) Sign(ctx context.Context, label string, data []byte, kt KeyType, verifyAfter bool) ([]byte, error) {
	c, err := Capability(kt)
	if err != nil {
		return nil, err
	}
	input, err := digestFor(kt, data)
	if err != nil {
		return nil, err
	}
	var sig []byte
	err = m.withConn(ctx, func(conn Conn) error {
		opErr := func() error {
			raw, err := conn.Sign(kt, label, input)
			if err != nil {
				return err
			}
			if verifyAfter {
				ok, err := conn.Verify(kt, label, input, raw)
				if err != nil {
					return err
				}
				if !ok {
					return ErrSignatureInvalid
				}
			}
			if kt.IsEC() {
				raw, err = ecSignatureToDER(raw, c.ComponentSize)
				if err != nil {
					return err
				}
			}
			sig = raw
			return nil
		}()
		return m.auditObject(audit.EventDataSigned,
			audit.Object{Type: "key", Label: label, KeyType: string(kt)}, opErr)
	})
	return sig, err
}

// Verify checks a signature against the named key. ECDSA signatures may
// be DER or fixed-width r||s.
func (m *SessionManager) Verify(ctx context.Context, label string, data, sig []byte, kt KeyType) (bool, error) {
	c, err := Capability(kt)
	if err != nil {
		return false, err
	}
	input, err := digestFor(kt, data)
	if err != nil {
		return false, err
	}
	if kt.IsEC() {
		if raw, derErr := ecSignatureFromDER(sig, c.ComponentSize); derErr == nil {
			sig = raw
		} else if len(sig) != 2*c.ComponentSize {
			return false, nil
		}
	}
	var ok bool
	err = m.withConn(ctx, func(conn Conn) error {
		var err error
		ok, err = conn.Verify(kt, label, input, sig)
		return err
	})
	return ok, err
}

// DeleteKeyPair removes both halves of a key pair.
func (m *SessionManager) DeleteKeyPair(ctx context.Context, label string, kt KeyType) error {
	if _, err := Capability(kt); err != nil {
		return err
	}
	return m.withConn(ctx, func(c Conn) error {
		opErr := c.DeleteKeyPair(kt, label)
		return m.auditObject(audit.EventKeyPairDeleted,
			audit.Object{Type: "key", Label: label, KeyType: string(kt)}, opErr)
	})
}

// PublicKeyData returns the public key PEM and key identifier for an
// existing key. Returns ErrNoSuchKey when the label is absent.
func (m *SessionManager) PublicKeyData(ctx context.Context, label string, kt KeyType) (string, []byte, error) {
	if _, err := Capability(kt); err != nil {
		return "", nil, err
	}
	var spkiDER []byte
	err := m.withConn(ctx, func(c Conn) error {
		var err error
		spkiDER, err = c.PublicKey(kt, label)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	keyID, err := KeyIdentifier(spkiDER)
	if err != nil {
		return "", nil, err
	}
	return EncodePublicKeyPEM(spkiDER), keyID, nil
}

// ImportCertificate stores an X.509 certificate on the token.
func (m *SessionManager) ImportCertificate(ctx context.Context, certPEM, label string) error {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return fmt.Errorf("no CERTIFICATE PEM block found")
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}
	return m.withConn(ctx, func(c Conn) error {
		opErr := c.ImportCertificate(label, block.Bytes)
		return m.auditObject(audit.EventCertImported,
			audit.Object{Type: "certificate", Label: label}, opErr)
	})
}

// ExportCertificate retrieves a stored certificate as PEM.
func (m *SessionManager) ExportCertificate(ctx context.Context, label string) (string, error) {
	var der []byte
	err := m.withConn(ctx, func(c Conn) error {
		var err error
		der, err = c.ExportCertificate(label)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}

// DeleteCertificate removes a stored certificate.
func (m *SessionManager) DeleteCertificate(ctx context.Context, label string) error {
	return m.withConn(ctx, func(c Conn) error {
		opErr := c.DeleteCertificate(label)
		return m.auditObject(audit.EventCertDeleted,
			audit.Object{Type: "certificate", Label: label}, opErr)
	})
}

// Close releases the device session.
func (m *SessionManager) Close() error {
	m.mu <- struct{}{}
	defer m.unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
