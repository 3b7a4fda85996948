package testutil

import (
	"bytes"
	"testing"

	"piivault/internal/crypto"
	"piivault/internal/pii"
)

// NewEngine returns a crypto engine over a fixed single-version key ring.
func NewEngine(t testing.TB) *crypto.Engine {
	t.Helper()
	keys, err := crypto.NewKeyring("v1", []crypto.KeyMaterial{
		{Version: "v1", Secret: bytes.Repeat([]byte{'k'}, crypto.MinSecretLength)},
	}, bytes.Repeat([]byte{'h'}, crypto.MinSecretLength))
	if err != nil {
		t.Fatalf("build test keyring: %v", err)
	}
	return crypto.NewEngine(keys)
}

// NewCodec returns a codec over NewEngine.
func NewCodec(t testing.TB, opts ...pii.Option) *pii.Codec {
	t.Helper()
	return pii.NewCodec(NewEngine(t), opts...)
}
