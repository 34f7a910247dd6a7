package token

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ecSignatureToDER converts a fixed-width r||s ECDSA signature into the
// DER SEQUENCE of two INTEGERs used by X.509 structures. width is the
// per-component byte width of the curve (32, 48 or 66).
func ecSignatureToDER(raw []byte, width int) ([]byte, error) {
	if len(raw) != 2*width {
		return nil, fmt.Errorf("raw ECDSA signature is %d bytes, want %d", len(raw), 2*width)
	}
	r := new(big.Int).SetBytes(raw[:width])
	s := new(big.Int).SetBytes(raw[width:])

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// ecSignatureFromDER converts a DER ECDSA signature back to the
// fixed-width r||s form expected by the device Verify mechanism.
// Components are left-padded to width bytes.
func ecSignatureFromDER(der []byte, width int) ([]byte, error) {
	var (
		inner cryptobyte.String
		r, s  = new(big.Int), new(big.Int)
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, fmt.Errorf("malformed DER ECDSA signature")
	}
	if r.BitLen() > 8*width || s.BitLen() > 8*width {
		return nil, fmt.Errorf("ECDSA component exceeds %d bytes", width)
	}
	raw := make([]byte, 2*width)
	r.FillBytes(raw[:width])
	s.FillBytes(raw[width:])
	return raw, nil
}
