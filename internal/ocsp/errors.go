package ocsp

import "errors"

var (
	// ErrInvalidArgument is returned for structurally invalid builder
	// input: an empty request list, a signed request without a requestor
	// name, or a zero timestamp.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNonceTooLong is returned when a nonce extension value exceeds
	// MaxNonceLength bytes.
	ErrNonceTooLong = errors.New("nonce exceeds maximum length")

	// ErrInvalidStatus is returned for response status codes outside the
	// RFC 6960 enumeration. Code 4 is reserved and also rejected.
	ErrInvalidStatus = errors.New("invalid response status")
)
