package token

import (
	"crypto/sha1"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
)

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

type rsaPublicKey struct {
	N *big.Int
	E int
}

// rsaSPKI builds a SubjectPublicKeyInfo from raw RSA modulus and
// public exponent attributes.
func rsaSPKI(modulus, exponent []byte) ([]byte, error) {
	pub := rsaPublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(new(big.Int).SetBytes(exponent).Int64()),
	}
	keyDER, err := asn1.Marshal(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RSA public key: %w", err)
	}
	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: oidRSAEncryption, Parameters: asn1.NullRawValue},
		PublicKey: asn1.BitString{Bytes: keyDER, BitLength: 8 * len(keyDER)},
	})
}

// ecSPKI builds a SubjectPublicKeyInfo from an uncompressed EC point.
func ecSPKI(kt KeyType, point []byte) ([]byte, error) {
	c, err := Capability(kt)
	if err != nil {
		return nil, err
	}
	params, err := asn1.Marshal(c.CurveOID)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: oidECPublicKey, Parameters: asn1.RawValue{FullBytes: params}},
		PublicKey: asn1.BitString{Bytes: point, BitLength: 8 * len(point)},
	})
}

// edSPKI builds a SubjectPublicKeyInfo for an Edwards public key.
// Per RFC 8410 the AlgorithmIdentifier carries no parameters.
func edSPKI(kt KeyType, raw []byte) ([]byte, error) {
	c, err := Capability(kt)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: c.CurveOID},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: 8 * len(raw)},
	})
}

// unwrapECPoint strips the DER OCTET STRING wrapper PKCS#11 puts around
// CKA_EC_POINT, returning the uncompressed point.
func unwrapECPoint(value []byte) ([]byte, error) {
	var point []byte
	if rest, err := asn1.Unmarshal(value, &point); err == nil && len(rest) == 0 {
		return point, nil
	}
	// Some devices return the bare point.
	if len(value) > 0 && value[0] == 0x04 {
		return value, nil
	}
	return nil, fmt.Errorf("unrecognized EC point encoding")
}

// KeyIdentifier derives the key identifier used for CKA_ID and the
// subjectKeyIdentifier extension: the SHA-1 digest of the subjectPublicKey
// BIT STRING contents (RFC 5280 method 1).
func KeyIdentifier(spkiDER []byte) ([]byte, error) {
	var spki subjectPublicKeyInfo
	if rest, err := asn1.Unmarshal(spkiDER, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse SubjectPublicKeyInfo: %w", err)
	} else if len(rest) != 0 {
		return nil, fmt.Errorf("trailing data after SubjectPublicKeyInfo")
	}
	sum := sha1.Sum(spki.PublicKey.Bytes)
	return sum[:], nil
}

// EncodePublicKeyPEM wraps a SubjectPublicKeyInfo in a PEM block.
func EncodePublicKeyPEM(spkiDER []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spkiDER}))
}

// DecodePublicKeyPEM extracts the SubjectPublicKeyInfo DER from a PEM block.
func DecodePublicKeyPEM(pemData string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no PUBLIC KEY PEM block found")
	}
	return block.Bytes, nil
}
