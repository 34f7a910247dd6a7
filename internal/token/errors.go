package token

import "errors"

// Sentinel errors returned by token operations. Callers dispatch with
// errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrDeviceUnresponsive is returned when the health probe and the
	// forced session reopen both fail or exceed the configured timeout.
	ErrDeviceUnresponsive = errors.New("token device unresponsive")

	// ErrNoSuchKey is returned when no key object matches the requested
	// label and key type.
	ErrNoSuchKey = errors.New("no such key")

	// ErrKeyExists is returned when creating or importing a key pair
	// whose label and type already exist on the token.
	ErrKeyExists = errors.New("key already exists")

	// ErrMultipleObjects is returned when a lookup that must match a
	// single object matches more than one.
	ErrMultipleObjects = errors.New("multiple objects match")

	// ErrObjectExists is returned when importing a certificate under a
	// label that is already taken.
	ErrObjectExists = errors.New("object already exists")

	// ErrNoSuchObject is returned when a certificate lookup finds nothing.
	ErrNoSuchObject = errors.New("no such object")

	// ErrUnsupportedKeyType is returned for key types outside the
	// capability table.
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrSignatureInvalid is returned when the post-sign verification
	// round trip rejects a freshly produced signature.
	ErrSignatureInvalid = errors.New("signature verification failed")
)
