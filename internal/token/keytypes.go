package token

import (
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"fmt"
)

// KeyType identifies a supported key algorithm and size.
type KeyType string

const (
	RSA2048 KeyType = "rsa_2048"
	RSA4096 KeyType = "rsa_4096"
	Ed25519 KeyType = "ed25519"
	Ed448   KeyType = "ed448"
	P256    KeyType = "secp256r1"
	P384    KeyType = "secp384r1"
	P521    KeyType = "secp521r1"
)

// ParseKeyType validates a key type string.
func ParseKeyType(s string) (KeyType, error) {
	kt := KeyType(s)
	if _, ok := capabilities[kt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKeyType, s)
	}
	return kt, nil
}

// KeyTypes returns all supported key types in a stable order.
func KeyTypes() []KeyType {
	return []KeyType{RSA2048, RSA4096, Ed25519, Ed448, P256, P384, P521}
}

// capability describes how a key type is exercised: which digest is
// computed in software before CKM_ECDSA, the named-curve OID, the fixed
// width of each ECDSA signature component, the X.509 signature algorithm
// OID, and the RSA modulus size.
type capability struct {
	Hash          crypto.Hash
	CurveOID      asn1.ObjectIdentifier
	ComponentSize int
	SigAlgOID     asn1.ObjectIdentifier
	RSABits       int
	Edwards       bool
}

var (
	oidSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA512WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	oidEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
	oidEd448           = asn1.ObjectIdentifier{1, 3, 101, 113}

	oidCurveP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}
	oidCurveP384 = asn1.ObjectIdentifier{1, 3, 132, 0, 34}
	oidCurveP521 = asn1.ObjectIdentifier{1, 3, 132, 0, 35}

	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidECPublicKey   = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
)

// capabilities is the single source of truth for per-key-type behavior.
var capabilities = map[KeyType]capability{
	RSA2048: {Hash: crypto.SHA256, SigAlgOID: oidSHA256WithRSA, RSABits: 2048},
	RSA4096: {Hash: crypto.SHA512, SigAlgOID: oidSHA512WithRSA, RSABits: 4096},
	Ed25519: {CurveOID: oidEd25519, SigAlgOID: oidEd25519, Edwards: true},
	Ed448:   {CurveOID: oidEd448, SigAlgOID: oidEd448, Edwards: true},
	P256:    {Hash: crypto.SHA256, CurveOID: oidCurveP256, ComponentSize: 32, SigAlgOID: oidECDSAWithSHA256},
	P384:    {Hash: crypto.SHA384, CurveOID: oidCurveP384, ComponentSize: 48, SigAlgOID: oidECDSAWithSHA384},
	P521:    {Hash: crypto.SHA512, CurveOID: oidCurveP521, ComponentSize: 66, SigAlgOID: oidECDSAWithSHA512},
}

// Capability returns the entry for kt.
func Capability(kt KeyType) (capability, error) {
	c, ok := capabilities[kt]
	if !ok {
		return capability{}, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, kt)
	}
	return c, nil
}

// IsRSA reports whether kt is an RSA type.
func (kt KeyType) IsRSA() bool { return capabilities[kt].RSABits > 0 }

// IsEC reports whether kt is a NIST curve ECDSA type.
func (kt KeyType) IsEC() bool { return capabilities[kt].ComponentSize > 0 }

// IsEdwards reports whether kt is Ed25519 or Ed448.
func (kt KeyType) IsEdwards() bool { return capabilities[kt].Edwards }

// SignatureAlgorithm returns the AlgorithmIdentifier used in CSR and OCSP
// structures signed with kt. Edwards and ECDSA algorithms carry no
// parameters; RSA PKCS#1 v1.5 carries an explicit NULL.
func (kt KeyType) SignatureAlgorithm() (asn1.RawValue, error) {
	c, err := Capability(kt)
	if err != nil {
		return asn1.RawValue{}, err
	}
	var alg struct {
		OID    asn1.ObjectIdentifier
		Params asn1.RawValue `asn1:"optional"`
	}
	alg.OID = c.SigAlgOID
	if kt.IsRSA() {
		alg.Params = asn1.NullRawValue
	}
	der, err := asn1.Marshal(alg)
	if err != nil {
		return asn1.RawValue{}, err
	}
	return asn1.RawValue{FullBytes: der}, nil
}

// digestFor hashes data per the capability table. Edwards types sign the
// raw message; RSA types hash inside the device mechanism.
func digestFor(kt KeyType, data []byte) ([]byte, error) {
	c, err := Capability(kt)
	if err != nil {
		return nil, err
	}
	if !kt.IsEC() {
		return data, nil
	}
	h := c.Hash.New()
	h.Write(data)
	return h.Sum(nil), nil
}
