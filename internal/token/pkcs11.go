//go:build cgo

// PKCS#11 device backend. Requires CGO; without it OpenPKCS11 returns an
// error from the stub in pkcs11_nocgo.go.
package token

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/miekg/pkcs11"
)

// p11Conn is a logged-in read/write session on one token.
type p11Conn struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
}

var _ Conn = (*p11Conn)(nil)

// OpenPKCS11 loads the module, opens a read/write session on the
// configured token and logs in. Already-initialized modules and
// already-logged-in sessions are tolerated so a forced reopen can
// recover without a clean shutdown of the previous handle.
func OpenPKCS11(cfg Config) (Conn, error) {
	ctx := pkcs11.New(cfg.Module)
	if ctx == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 module: %s", cfg.Module)
	}

	if err := ctx.Initialize(); err != nil && !isP11Err(err, pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
		ctx.Destroy()
		return nil, fmt.Errorf("failed to initialize module: %w", err)
	}

	slot, err := findSlot(ctx, cfg.Token)
	if err != nil {
		ctx.Destroy()
		return nil, err
	}

	session, err := ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil && !isP11Err(err, pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
		_ = ctx.CloseSession(session)
		ctx.Destroy()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	return &p11Conn{ctx: ctx, session: session}, nil
}

// findSlot returns the slot holding the token with the given label, or
// the first slot with a token when no label is configured.
func findSlot(ctx *pkcs11.Ctx, tokenLabel string) (uint, error) {
	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot list: %w", err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("no slots with tokens found")
	}
	if tokenLabel == "" {
		return slots[0], nil
	}
	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if info.Label == tokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("token with label %q not found", tokenLabel)
}

func isP11Err(err error, code pkcs11.Error) bool {
	var p11err pkcs11.Error
	return errors.As(err, &p11err) && p11err == code
}

// Close logs out, closes the session and finalizes the module,
// accumulating errors so a partial teardown is still reported.
func (c *p11Conn) Close() error {
	var errs []error
	if err := c.ctx.Logout(c.session); err != nil && !isP11Err(err, pkcs11.CKR_USER_NOT_LOGGED_IN) {
		errs = append(errs, fmt.Errorf("logout: %w", err))
	}
	if err := c.ctx.CloseSession(c.session); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if err := c.ctx.Finalize(); err != nil {
		errs = append(errs, fmt.Errorf("finalize: %w", err))
	}
	c.ctx.Destroy()
	if len(errs) > 0 {
		return fmt.Errorf("errors closing session: %v", errs)
	}
	return nil
}

// ckkFor maps a key type to its CKA_KEY_TYPE value.
func ckkFor(kt KeyType) uint {
	switch {
	case kt.IsRSA():
		return pkcs11.CKK_RSA
	case kt.IsEC():
		return pkcs11.CKK_EC
	default:
		return pkcs11.CKK_EC_EDWARDS
	}
}

// signMechanism maps a key type to its signing mechanism. RSA mechanisms
// hash internally; CKM_ECDSA and CKM_EDDSA consume the prepared input.
func signMechanism(kt KeyType) *pkcs11.Mechanism {
	switch {
	case kt == RSA2048:
		return pkcs11.NewMechanism(pkcs11.CKM_SHA256_RSA_PKCS, nil)
	case kt == RSA4096:
		return pkcs11.NewMechanism(pkcs11.CKM_SHA512_RSA_PKCS, nil)
	case kt.IsEC():
		return pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	default:
		return pkcs11.NewMechanism(pkcs11.CKM_EDDSA, nil)
	}
}

// keyTemplate builds the search template for one half of a key pair.
func keyTemplate(kt KeyType, label string, class uint) []*pkcs11.Attribute {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, ckkFor(kt)),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	if !kt.IsRSA() {
		params, _ := asn1.Marshal(capabilities[kt].CurveOID)
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, params))
	}
	return template
}

// findObjects runs a bounded object search.
func (c *p11Conn) findObjects(template []*pkcs11.Attribute, max int) ([]pkcs11.ObjectHandle, error) {
	if err := c.ctx.FindObjectsInit(c.session, template); err != nil {
		return nil, fmt.Errorf("failed to init find objects: %w", err)
	}
	defer func() { _ = c.ctx.FindObjectsFinal(c.session) }()

	objs, _, err := c.ctx.FindObjects(c.session, max)
	if err != nil {
		return nil, fmt.Errorf("failed to find objects: %w", err)
	}
	return objs, nil
}

// findOne resolves a template to exactly one object.
func (c *p11Conn) findOne(template []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	objs, err := c.findObjects(template, 2)
	if err != nil {
		return 0, err
	}
	switch len(objs) {
	case 0:
		return 0, ErrNoSuchKey
	case 1:
		return objs[0], nil
	default:
		return 0, ErrMultipleObjects
	}
}

func (c *p11Conn) getAttr(obj pkcs11.ObjectHandle, attrType uint) ([]byte, error) {
	attrs, err := c.ctx.GetAttributeValue(c.session, obj, []*pkcs11.Attribute{
		pkcs11.NewAttribute(attrType, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute 0x%X: %w", attrType, err)
	}
	return attrs[0].Value, nil
}

// GenerateKeyPair creates a token-resident key pair under the label.
func (c *p11Conn) GenerateKeyPair(kt KeyType, label string) error {
	cap, err := Capability(kt)
	if err != nil {
		return err
	}

	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, ckkFor(kt)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, ckkFor(kt)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}

	var mech *pkcs11.Mechanism
	switch {
	case kt.IsRSA():
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)
		pubTemplate = append(pubTemplate,
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, cap.RSABits),
			pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, []byte{0x01, 0x00, 0x01}),
		)
	case kt.IsEC():
		mech = pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)
	default:
		mech = pkcs11.NewMechanism(pkcs11.CKM_EC_EDWARDS_KEY_PAIR_GEN, nil)
	}
	if !kt.IsRSA() {
		params, err := asn1.Marshal(cap.CurveOID)
		if err != nil {
			return err
		}
		pubTemplate = append(pubTemplate, pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, params))
	}

	_, _, err = c.ctx.GenerateKeyPair(c.session, []*pkcs11.Mechanism{mech}, pubTemplate, privTemplate)
	if err != nil {
		return fmt.Errorf("failed to generate %s key pair: %w", kt, err)
	}
	return nil
}

// PublicKey returns the SubjectPublicKeyInfo of the named public key.
func (c *p11Conn) PublicKey(kt KeyType, label string) ([]byte, error) {
	obj, err := c.findOne(keyTemplate(kt, label, pkcs11.CKO_PUBLIC_KEY))
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return nil, fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
		}
		return nil, err
	}
	return c.buildSPKI(kt, obj)
}

func (c *p11Conn) buildSPKI(kt KeyType, obj pkcs11.ObjectHandle) ([]byte, error) {
	switch {
	case kt.IsRSA():
		modulus, err := c.getAttr(obj, pkcs11.CKA_MODULUS)
		if err != nil {
			return nil, err
		}
		exponent, err := c.getAttr(obj, pkcs11.CKA_PUBLIC_EXPONENT)
		if err != nil {
			return nil, err
		}
		return rsaSPKI(modulus, exponent)
	case kt.IsEC():
		value, err := c.getAttr(obj, pkcs11.CKA_EC_POINT)
		if err != nil {
			return nil, err
		}
		point, err := unwrapECPoint(value)
		if err != nil {
			return nil, err
		}
		return ecSPKI(kt, point)
	default:
		value, err := c.getAttr(obj, pkcs11.CKA_EC_POINT)
		if err != nil {
			return nil, err
		}
		// Edwards keys are an OCTET STRING of the raw key; some
		// devices return the bare bytes.
		var raw []byte
		if rest, err := asn1.Unmarshal(value, &raw); err != nil || len(rest) != 0 {
			raw = value
		}
		return edSPKI(kt, raw)
	}
}

// Sign signs mechanism-ready input with the named private key.
func (c *p11Conn) Sign(kt KeyType, label string, data []byte) ([]byte, error) {
	obj, err := c.findOne(keyTemplate(kt, label, pkcs11.CKO_PRIVATE_KEY))
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return nil, fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
		}
		return nil, err
	}
	if err := c.ctx.SignInit(c.session, []*pkcs11.Mechanism{signMechanism(kt)}, obj); err != nil {
		return nil, fmt.Errorf("failed to init sign: %w", err)
	}
	sig, err := c.ctx.Sign(c.session, data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Verify checks a raw-form signature with the named public key.
func (c *p11Conn) Verify(kt KeyType, label string, data, sig []byte) (bool, error) {
	obj, err := c.findOne(keyTemplate(kt, label, pkcs11.CKO_PUBLIC_KEY))
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return false, fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
		}
		return false, err
	}
	if err := c.ctx.VerifyInit(c.session, []*pkcs11.Mechanism{signMechanism(kt)}, obj); err != nil {
		return false, fmt.Errorf("failed to init verify: %w", err)
	}
	if err := c.ctx.Verify(c.session, data, sig); err != nil {
		if isP11Err(err, pkcs11.CKR_SIGNATURE_INVALID) || isP11Err(err, pkcs11.CKR_SIGNATURE_LEN_RANGE) {
			return false, nil
		}
		return false, fmt.Errorf("failed to verify: %w", err)
	}
	return true, nil
}

// DeleteKeyPair destroys both halves of the named key pair.
func (c *p11Conn) DeleteKeyPair(kt KeyType, label string) error {
	found := false
	for _, class := range []uint{pkcs11.CKO_PRIVATE_KEY, pkcs11.CKO_PUBLIC_KEY} {
		obj, err := c.findOne(keyTemplate(kt, label, class))
		if errors.Is(err, ErrNoSuchKey) {
			continue
		}
		if err != nil {
			return err
		}
		if err := c.ctx.DestroyObject(c.session, obj); err != nil {
			return fmt.Errorf("failed to destroy object: %w", err)
		}
		found = true
	}
	if !found {
		return fmt.Errorf("%w: %q (%s)", ErrNoSuchKey, label, kt)
	}
	return nil
}

// ListKeys enumerates public key objects and classifies them. RSA keys
// are classified by modulus size; EC and Edwards keys by curve.
func (c *p11Conn) ListKeys() (map[string]KeyType, error) {
	out := make(map[string]KeyType)

	rsaObjs, err := c.findObjects([]*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
	}, 1024)
	if err != nil {
		return nil, err
	}
	for _, obj := range rsaObjs {
		label, err := c.getAttr(obj, pkcs11.CKA_LABEL)
		if err != nil {
			return nil, err
		}
		modulus, err := c.getAttr(obj, pkcs11.CKA_MODULUS)
		if err != nil {
			return nil, err
		}
		switch bits := new(big.Int).SetBytes(modulus).BitLen(); {
		case bits > 2048:
			out[string(label)] = RSA4096
		default:
			out[string(label)] = RSA2048
		}
	}

	for _, kt := range []KeyType{P256, P384, P521, Ed25519, Ed448} {
		params, err := asn1.Marshal(capabilities[kt].CurveOID)
		if err != nil {
			return nil, err
		}
		objs, err := c.findObjects([]*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, ckkFor(kt)),
			pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, params),
		}, 1024)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			label, err := c.getAttr(obj, pkcs11.CKA_LABEL)
			if err != nil {
				return nil, err
			}
			out[string(label)] = kt
		}
	}
	return out, nil
}

// ImportKeyPair decomposes DER-encoded key material into PKCS#11
// attributes and creates both objects on the token.
func (c *p11Conn) ImportKeyPair(kt KeyType, label string, pubDER, privDER []byte) error {
	cap, err := Capability(kt)
	if err != nil {
		return err
	}

	pubTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, ckkFor(kt)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	privTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, ckkFor(kt)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	if !kt.IsRSA() {
		params, err := asn1.Marshal(cap.CurveOID)
		if err != nil {
			return err
		}
		pubTemplate = append(pubTemplate, pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, params))
		privTemplate = append(privTemplate, pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, params))
	}

	switch {
	case kt.IsRSA():
		key, err := parseRSAPrivateKey(privDER)
		if err != nil {
			return err
		}
		key.Precompute()
		pubTemplate = append(pubTemplate,
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS, key.N.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(key.E)).Bytes()),
		)
		privTemplate = append(privTemplate,
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS, key.N.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(key.E)).Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PRIVATE_EXPONENT, key.D.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PRIME_1, key.Primes[0].Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_PRIME_2, key.Primes[1].Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_EXPONENT_1, key.Precomputed.Dp.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_EXPONENT_2, key.Precomputed.Dq.Bytes()),
			pkcs11.NewAttribute(pkcs11.CKA_COEFFICIENT, key.Precomputed.Qinv.Bytes()),
		)
	case kt.IsEC():
		key, err := parseECPrivateKey(privDER)
		if err != nil {
			return err
		}
		byteLen := (key.Curve.Params().BitSize + 7) / 8
		point := make([]byte, 1+2*byteLen)
		point[0] = 0x04
		key.X.FillBytes(point[1 : 1+byteLen])
		key.Y.FillBytes(point[1+byteLen:])
		wrapped, err := asn1.Marshal(point)
		if err != nil {
			return err
		}
		d := make([]byte, byteLen)
		key.D.FillBytes(d)
		pubTemplate = append(pubTemplate, pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, wrapped))
		privTemplate = append(privTemplate, pkcs11.NewAttribute(pkcs11.CKA_VALUE, d))
	default:
		pub, seed, err := parseEdwardsKeyPair(kt, pubDER, privDER)
		if err != nil {
			return err
		}
		wrapped, err := asn1.Marshal(pub)
		if err != nil {
			return err
		}
		pubTemplate = append(pubTemplate, pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, wrapped))
		privTemplate = append(privTemplate, pkcs11.NewAttribute(pkcs11.CKA_VALUE, seed))
	}

	if _, err := c.ctx.CreateObject(c.session, pubTemplate); err != nil {
		return fmt.Errorf("failed to import public key: %w", err)
	}
	if _, err := c.ctx.CreateObject(c.session, privTemplate); err != nil {
		return fmt.Errorf("failed to import private key: %w", err)
	}
	return nil
}

func certTemplate(label string) []*pkcs11.Attribute {
	return []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
}

// ImportCertificate stores an X.509 certificate object on the token.
func (c *p11Conn) ImportCertificate(label string, certDER []byte) error {
	if _, err := c.findOne(certTemplate(label)); err == nil {
		return fmt.Errorf("%w: certificate %q", ErrObjectExists, label)
	} else if !errors.Is(err, ErrNoSuchKey) {
		return err
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}
	serial, err := asn1.Marshal(cert.SerialNumber)
	if err != nil {
		return err
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
		pkcs11.NewAttribute(pkcs11.CKA_CERTIFICATE_TYPE, pkcs11.CKC_X_509),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
		pkcs11.NewAttribute(pkcs11.CKA_SUBJECT, cert.RawSubject),
		pkcs11.NewAttribute(pkcs11.CKA_ISSUER, cert.RawIssuer),
		pkcs11.NewAttribute(pkcs11.CKA_SERIAL_NUMBER, serial),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, certDER),
	}
	if _, err := c.ctx.CreateObject(c.session, template); err != nil {
		return fmt.Errorf("failed to import certificate: %w", err)
	}
	return nil
}

// ExportCertificate retrieves a stored certificate's DER bytes.
func (c *p11Conn) ExportCertificate(label string) ([]byte, error) {
	obj, err := c.findOne(certTemplate(label))
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return nil, fmt.Errorf("%w: certificate %q", ErrNoSuchObject, label)
		}
		return nil, err
	}
	return c.getAttr(obj, pkcs11.CKA_VALUE)
}

// DeleteCertificate destroys a stored certificate object.
func (c *p11Conn) DeleteCertificate(label string) error {
	obj, err := c.findOne(certTemplate(label))
	if err != nil {
		if errors.Is(err, ErrNoSuchKey) {
			return fmt.Errorf("%w: certificate %q", ErrNoSuchObject, label)
		}
		return err
	}
	if err := c.ctx.DestroyObject(c.session, obj); err != nil {
		return fmt.Errorf("failed to destroy certificate: %w", err)
	}
	return nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rk, ok := key.(*rsa.PrivateKey); ok {
			return rk, nil
		}
		return nil, fmt.Errorf("private key is not RSA")
	}
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}
	return key, nil
}

func parseECPrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if ek, ok := key.(*ecdsa.PrivateKey); ok {
			return ek, nil
		}
		return nil, fmt.Errorf("private key is not ECDSA")
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}
	return key, nil
}

// parseEdwardsKeyPair accepts PKCS#8/SPKI DER for Ed25519 and raw key
// bytes for both Edwards types (the only portable Ed448 encoding).
func parseEdwardsKeyPair(kt KeyType, pubDER, privDER []byte) (pub, seed []byte, err error) {
	if kt == Ed25519 {
		if key, err := x509.ParsePKCS8PrivateKey(privDER); err == nil {
			if ek, ok := key.(ed25519.PrivateKey); ok {
				return ek.Public().(ed25519.PublicKey), ek.Seed(), nil
			}
		}
		if len(privDER) == ed25519.SeedSize && len(pubDER) == ed25519.PublicKeySize {
			return pubDER, privDER, nil
		}
		return nil, nil, fmt.Errorf("failed to parse Ed25519 key pair")
	}
	if len(privDER) == ed448.SeedSize && len(pubDER) == ed448.PublicKeySize {
		return pubDER, privDER, nil
	}
	return nil, nil, fmt.Errorf("Ed448 keys must be raw %d/%d byte seeds", ed448.SeedSize, ed448.PublicKeySize)
}
