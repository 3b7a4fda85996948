package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func secret(b byte) []byte {
	return bytes.Repeat([]byte{b}, MinSecretLength)
}

func newTestKeyring(active string, versions ...string) (*Keyring, error) {
	keys := make([]KeyMaterial, 0, len(versions))
	for i, v := range versions {
		keys = append(keys, KeyMaterial{Version: v, Secret: secret(byte('a' + i))})
	}
	return NewKeyring(active, keys, secret('z'))
}

func (s *EngineSuite) SetupTest() {
	keys, err := newTestKeyring("v1", "v1")
	s.Require().NoError(err)
	s.engine = NewEngine(keys)
}

func (s *EngineSuite) TestRoundTrip() {
	for _, plaintext := range []string{"", "alice@example.com", "+44 20 7946 0958", strings.Repeat("ü", 300)} {
		ct, err := s.engine.Encrypt([]byte(plaintext))
		s.Require().NoError(err)
		s.True(strings.HasPrefix(ct, "v1:"))

		got, err := s.engine.Decrypt(ct)
		s.Require().NoError(err)
		s.Equal(plaintext, string(got))
	}
}

func (s *EngineSuite) TestEncryptIsNonDeterministic() {
	a, err := s.engine.Encrypt([]byte("alice@example.com"))
	s.Require().NoError(err)
	b, err := s.engine.Encrypt([]byte("alice@example.com"))
	s.Require().NoError(err)
	s.NotEqual(a, b)
}

func (s *EngineSuite) TestHMACDeterministicAcrossEngines() {
	first, err := s.engine.HMAC([]byte("alice@example.com"))
	s.Require().NoError(err)
	again, err := s.engine.HMAC([]byte("alice@example.com"))
	s.Require().NoError(err)
	s.Equal(first, again)

	keys, err := newTestKeyring("v1", "v1")
	s.Require().NoError(err)
	restarted, err := NewEngine(keys).HMAC([]byte("alice@example.com"))
	s.Require().NoError(err)
	s.Equal(first, restarted, "token must survive a process restart with the same key")

	other, err := s.engine.HMAC([]byte("alice@example.org"))
	s.Require().NoError(err)
	s.NotEqual(first, other)
	s.Len(first, 64)
}

func (s *EngineSuite) TestTamperedCiphertextFailsIntegrity() {
	ct, err := s.engine.Encrypt([]byte("alice@example.com"))
	s.Require().NoError(err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ct, "v1:"))
	s.Require().NoError(err)
	raw[len(raw)-1] ^= 0x01
	tampered := "v1:" + base64.RawURLEncoding.EncodeToString(raw)

	_, err = s.engine.Decrypt(tampered)
	s.Require().Error(err)
	s.True(errors.Is(err, ErrIntegrity))
	s.True(IsCryptoError(err))
}

func (s *EngineSuite) TestAssociatedDataBindsContext() {
	ct, err := s.engine.Seal([]byte("Alice"), []byte("first_name"))
	s.Require().NoError(err)

	_, err = s.engine.Open(ct, []byte("last_name"))
	s.ErrorIs(err, ErrIntegrity)

	got, err := s.engine.Open(ct, []byte("first_name"))
	s.Require().NoError(err)
	s.Equal("Alice", string(got))
}

func (s *EngineSuite) TestMalformedInput() {
	for _, ct := range []string{"", "v1", "v1:", ":abc", "v1:not*base64", "v1:AAAA"} {
		_, err := s.engine.Decrypt(ct)
		s.Require().Error(err, ct)
		s.True(IsCryptoError(err), ct)
	}
}

func (s *EngineSuite) TestUnknownKeyVersion() {
	_, err := s.engine.Decrypt("v9:" + base64.RawURLEncoding.EncodeToString(make([]byte, 64)))
	s.ErrorIs(err, ErrUnknownKeyVersion)

	var ce *Error
	s.Require().True(errors.As(err, &ce))
	s.Equal("v9", ce.KeyVersion)
	s.Equal(OpDecrypt, ce.Op)
}

func (s *EngineSuite) TestRotation() {
	old, err := s.engine.Encrypt([]byte("alice@example.com"))
	s.Require().NoError(err)

	keys, err := newTestKeyring("v2", "v1", "v2")
	s.Require().NoError(err)
	rotated := NewEngine(keys)

	s.True(rotated.NeedsRotation(old))
	plaintext, err := rotated.Decrypt(old)
	s.Require().NoError(err)
	s.Equal("alice@example.com", string(plaintext))

	fresh, err := rotated.Reencrypt(old, nil)
	s.Require().NoError(err)
	version, err := rotated.KeyVersion(fresh)
	s.Require().NoError(err)
	s.Equal("v2", version)
	s.False(rotated.NeedsRotation(fresh))
}

func (s *EngineSuite) TestNilKeyring() {
	e := NewEngine(nil)
	_, err := e.Encrypt([]byte("x"))
	s.ErrorIs(err, ErrKeyUnavailable)
	_, err = e.HMAC([]byte("x"))
	s.ErrorIs(err, ErrKeyUnavailable)
}
