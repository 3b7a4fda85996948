// Package crypto implements field-level protection for PII: authenticated,
// non-deterministic encryption and deterministic HMAC lookup tokens.
//
// HMAC tokens are the single deliberate exception to non-determinism. They
// leak equality of the underlying value so email and phone can be matched and
// kept unique without decryption. Only indexed fields may use them.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// versionSeparator splits the key-version tag from the sealed payload.
const versionSeparator = ":"

var payloadEncoding = base64.RawURLEncoding

// Engine encrypts, decrypts, and tokenizes field values with a Keyring.
// It is safe for concurrent use.
type Engine struct {
	keys *Keyring
}

func NewEngine(keys *Keyring) *Engine {
	return &Engine{keys: keys}
}

// Encrypt seals plaintext under the active key with no associated data.
func (e *Engine) Encrypt(plaintext []byte) (string, error) {
	return e.Seal(plaintext, nil)
}

// Decrypt opens a ciphertext produced by Encrypt.
func (e *Engine) Decrypt(ciphertext string) ([]byte, error) {
	return e.Open(ciphertext, nil)
}

// Seal encrypts plaintext with a fresh random nonce and binds associatedData,
// so a ciphertext only opens in the context it was written for.
// Output format: <keyVersion>:<base64url(nonce || sealed)>.
func (e *Engine) Seal(plaintext, associatedData []byte) (string, error) {
	if e.keys == nil {
		return "", &Error{Op: OpEncrypt, Err: ErrKeyUnavailable}
	}
	version := e.keys.ActiveVersion()
	aead, ok := e.keys.aead(version)
	if !ok {
		return "", &Error{Op: OpEncrypt, KeyVersion: version, Err: ErrKeyUnavailable}
	}

	buf := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(buf); err != nil {
		return "", &Error{Op: OpEncrypt, KeyVersion: version, Err: fmt.Errorf("read nonce: %w", err)}
	}
	sealed := aead.Seal(buf, buf[:chacha20poly1305.NonceSizeX], plaintext, associatedData)
	return version + versionSeparator + payloadEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a ciphertext produced by Seal with the same
// associatedData. Tampering, a wrong context, or an unknown key version fail
// with *Error.
func (e *Engine) Open(ciphertext string, associatedData []byte) ([]byte, error) {
	if e.keys == nil {
		return nil, &Error{Op: OpDecrypt, Err: ErrKeyUnavailable}
	}
	version, payload, err := split(ciphertext)
	if err != nil {
		return nil, &Error{Op: OpDecrypt, Err: err}
	}
	aead, ok := e.keys.aead(version)
	if !ok {
		return nil, &Error{Op: OpDecrypt, KeyVersion: version, Err: ErrUnknownKeyVersion}
	}
	raw, err := payloadEncoding.DecodeString(payload)
	if err != nil || len(raw) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, &Error{Op: OpDecrypt, KeyVersion: version, Err: ErrMalformedCiphertext}
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, &Error{Op: OpDecrypt, KeyVersion: version, Err: ErrIntegrity}
	}
	return plaintext, nil
}

// HMAC returns the deterministic lookup token for plaintext: hex-encoded
// HMAC-SHA256 under the single lookup key. Identical input yields the
// identical token across calls and restarts.
func (e *Engine) HMAC(plaintext []byte) (string, error) {
	if e.keys == nil || len(e.keys.hmacKey) == 0 {
		return "", &Error{Op: OpHMAC, Err: ErrKeyUnavailable}
	}
	mac := hmac.New(sha256.New, e.keys.hmacKey)
	mac.Write(plaintext)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// KeyVersion returns the key-version tag of a ciphertext without decrypting it.
func (e *Engine) KeyVersion(ciphertext string) (string, error) {
	version, _, err := split(ciphertext)
	if err != nil {
		return "", &Error{Op: OpDecrypt, Err: err}
	}
	return version, nil
}

// NeedsRotation reports whether ciphertext was sealed under a key other than
// the active one. Malformed input reports false; Open surfaces that error.
func (e *Engine) NeedsRotation(ciphertext string) bool {
	version, err := e.KeyVersion(ciphertext)
	return err == nil && version != e.keys.ActiveVersion()
}

// Reencrypt opens ciphertext with its original key and seals it under the
// active key. It backs the external batch rotation job.
func (e *Engine) Reencrypt(ciphertext string, associatedData []byte) (string, error) {
	plaintext, err := e.Open(ciphertext, associatedData)
	if err != nil {
		return "", err
	}
	return e.Seal(plaintext, associatedData)
}

func split(ciphertext string) (version, payload string, err error) {
	version, payload, ok := strings.Cut(ciphertext, versionSeparator)
	if !ok || version == "" || payload == "" {
		return "", "", ErrMalformedCiphertext
	}
	return version, payload, nil
}
