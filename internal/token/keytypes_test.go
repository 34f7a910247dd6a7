package token

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"testing"
)

func TestU_ParseKeyType(t *testing.T) {
	for _, kt := range KeyTypes() {
		got, err := ParseKeyType(string(kt))
		if err != nil {
			t.Errorf("ParseKeyType(%q) failed: %v", kt, err)
		}
		if got != kt {
			t.Errorf("ParseKeyType(%q) = %q", kt, got)
		}
	}
	for _, s := range []string{"", "rsa", "RSA_2048", "p256", "x25519"} {
		if _, err := ParseKeyType(s); !errors.Is(err, ErrUnsupportedKeyType) {
			t.Errorf("ParseKeyType(%q): expected ErrUnsupportedKeyType, got %v", s, err)
		}
	}
}

func TestU_Capability_Table(t *testing.T) {
	tests := []struct {
		kt      KeyType
		hash    crypto.Hash
		width   int
		rsa     bool
		ec      bool
		edwards bool
	}{
		{RSA2048, crypto.SHA256, 0, true, false, false},
		{RSA4096, crypto.SHA512, 0, true, false, false},
		{Ed25519, 0, 0, false, false, true},
		{Ed448, 0, 0, false, false, true},
		{P256, crypto.SHA256, 32, false, true, false},
		{P384, crypto.SHA384, 48, false, true, false},
		{P521, crypto.SHA512, 66, false, true, false},
	}
	for _, tc := range tests {
		c, err := Capability(tc.kt)
		if err != nil {
			t.Fatalf("Capability(%s) failed: %v", tc.kt, err)
		}
		if c.Hash != tc.hash {
			t.Errorf("%s: hash %v, want %v", tc.kt, c.Hash, tc.hash)
		}
		if c.ComponentSize != tc.width {
			t.Errorf("%s: component size %d, want %d", tc.kt, c.ComponentSize, tc.width)
		}
		if tc.kt.IsRSA() != tc.rsa || tc.kt.IsEC() != tc.ec || tc.kt.IsEdwards() != tc.edwards {
			t.Errorf("%s: family predicates wrong (rsa=%v ec=%v edwards=%v)",
				tc.kt, tc.kt.IsRSA(), tc.kt.IsEC(), tc.kt.IsEdwards())
		}
	}
}

func TestU_SignatureAlgorithm_Encoding(t *testing.T) {
	for _, kt := range KeyTypes() {
		var alg struct {
			OID    asn1.ObjectIdentifier
			Params asn1.RawValue `asn1:"optional"`
		}
		raw, err := kt.SignatureAlgorithm()
		if err != nil {
			t.Fatalf("%s: SignatureAlgorithm failed: %v", kt, err)
		}
		rest, err := asn1.Unmarshal(raw.FullBytes, &alg)
		if err != nil || len(rest) != 0 {
			t.Fatalf("%s: identifier does not parse: %v", kt, err)
		}

		c, _ := Capability(kt)
		if !alg.OID.Equal(c.SigAlgOID) {
			t.Errorf("%s: OID %v, want %v", kt, alg.OID, c.SigAlgOID)
		}
		// RSA PKCS#1 v1.5 carries an explicit NULL; everything else has
		// no parameters at all.
		if kt.IsRSA() {
			if alg.Params.Tag != asn1.TagNull {
				t.Errorf("%s: expected NULL parameters, got tag %d", kt, alg.Params.Tag)
			}
		} else if len(alg.Params.FullBytes) != 0 {
			t.Errorf("%s: expected absent parameters, got %x", kt, alg.Params.FullBytes)
		}
	}
}

func TestU_DigestFor(t *testing.T) {
	data := []byte("some message")

	// ECDSA input is the curve-matched digest.
	for kt, want := range map[KeyType]int{P256: 32, P384: 48, P521: 64} {
		digest, err := digestFor(kt, data)
		if err != nil {
			t.Fatalf("%s: digestFor failed: %v", kt, err)
		}
		if len(digest) != want {
			t.Errorf("%s: digest is %d bytes, want %d", kt, len(digest), want)
		}
	}

	// RSA and Edwards mechanisms consume the raw message.
	for _, kt := range []KeyType{RSA2048, RSA4096, Ed25519, Ed448} {
		out, err := digestFor(kt, data)
		if err != nil {
			t.Fatalf("%s: digestFor failed: %v", kt, err)
		}
		if string(out) != string(data) {
			t.Errorf("%s: expected the raw message back", kt)
		}
	}
}
