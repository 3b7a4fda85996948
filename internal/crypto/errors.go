package crypto

import (
	"errors"
	"fmt"
)

// Failure causes. Callers inspect them with errors.Is through *Error.
var (
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrUnknownKeyVersion   = errors.New("unknown key version")
	ErrIntegrity           = errors.New("integrity check failed")
	ErrKeyUnavailable      = errors.New("key material unavailable")
)

// Operation names recorded on *Error.
const (
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
	OpHMAC    = "hmac"
)

// Error is the CryptoError of the PII core. It is fatal for the calling
// operation; the one local recovery is the codec degrading a single field.
type Error struct {
	Op         string
	KeyVersion string
	Err        error
}

func (e *Error) Error() string {
	if e.KeyVersion != "" {
		return fmt.Sprintf("crypto: %s (key %s): %v", e.Op, e.KeyVersion, e.Err)
	}
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCryptoError reports whether err carries a *Error anywhere in its chain.
func IsCryptoError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
