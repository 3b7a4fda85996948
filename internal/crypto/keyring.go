package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum size of configured master secrets.
const MinSecretLength = 32

const (
	encryptionInfo = "piivault/field-encryption/"
	lookupInfo     = "piivault/lookup-index"
)

var validVersion = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// KeyMaterial is one configured master secret and the version tag written
// into every ciphertext it produces.
type KeyMaterial struct {
	Version string
	Secret  []byte
}

// Keyring is the immutable key configuration built once at startup. It holds
// one AEAD per key version and the single HMAC key for lookup tokens.
type Keyring struct {
	active  string
	aeads   map[string]cipher.AEAD
	hmacKey []byte
}

// NewKeyring derives per-version encryption subkeys and the lookup key with
// HKDF-SHA256. The active version must be among keys; older versions stay
// available for decryption until their ciphertexts are rotated.
func NewKeyring(activeVersion string, keys []KeyMaterial, hmacSecret []byte) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, &Error{Op: OpEncrypt, Err: fmt.Errorf("%w: no encryption keys configured", ErrKeyUnavailable)}
	}
	if len(hmacSecret) < MinSecretLength {
		return nil, &Error{Op: OpHMAC, Err: fmt.Errorf("%w: hmac secret shorter than %d bytes", ErrKeyUnavailable, MinSecretLength)}
	}

	aeads := make(map[string]cipher.AEAD, len(keys))
	for _, km := range keys {
		if !validVersion.MatchString(km.Version) {
			return nil, fmt.Errorf("invalid key version %q", km.Version)
		}
		if _, dup := aeads[km.Version]; dup {
			return nil, fmt.Errorf("duplicate key version %q", km.Version)
		}
		if len(km.Secret) < MinSecretLength {
			return nil, &Error{Op: OpEncrypt, KeyVersion: km.Version, Err: fmt.Errorf("%w: secret shorter than %d bytes", ErrKeyUnavailable, MinSecretLength)}
		}
		subkey, err := derive(km.Secret, encryptionInfo+km.Version, chacha20poly1305.KeySize)
		if err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.NewX(subkey)
		if err != nil {
			return nil, fmt.Errorf("init aead for key %s: %w", km.Version, err)
		}
		aeads[km.Version] = aead
	}
	if _, ok := aeads[activeVersion]; !ok {
		return nil, &Error{Op: OpEncrypt, KeyVersion: activeVersion, Err: ErrUnknownKeyVersion}
	}

	hmacKey, err := derive(hmacSecret, lookupInfo, sha256.Size)
	if err != nil {
		return nil, err
	}
	return &Keyring{active: activeVersion, aeads: aeads, hmacKey: hmacKey}, nil
}

// ActiveVersion is the key version used for new ciphertexts.
func (k *Keyring) ActiveVersion() string {
	return k.active
}

func (k *Keyring) aead(version string) (cipher.AEAD, bool) {
	a, ok := k.aeads[version]
	return a, ok
}

func derive(secret []byte, info string, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive subkey: %w", err)
	}
	return out, nil
}

// ParseKeys reads a "version:base64secret,version:base64secret" list as
// supplied through configuration. Secrets accept standard or URL base64.
func ParseKeys(raw string) ([]KeyMaterial, error) {
	var keys []KeyMaterial
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		version, encoded, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("key entry %q must be version:secret", version)
		}
		secret, err := DecodeSecret(encoded)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", version, err)
		}
		keys = append(keys, KeyMaterial{Version: strings.TrimSpace(version), Secret: secret})
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty key list", ErrKeyUnavailable)
	}
	return keys, nil
}

// DecodeSecret decodes a base64 secret in either standard or URL alphabet.
func DecodeSecret(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(encoded); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secret is not valid base64")
}
