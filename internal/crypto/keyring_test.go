package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyring_Validation(t *testing.T) {
	good := []KeyMaterial{{Version: "v1", Secret: secret('a')}}

	tests := []struct {
		name   string
		active string
		keys   []KeyMaterial
		hmac   []byte
	}{
		{"no keys", "v1", nil, secret('z')},
		{"short hmac secret", "v1", good, []byte("short")},
		{"short key secret", "v1", []KeyMaterial{{Version: "v1", Secret: []byte("short")}}, secret('z')},
		{"active version missing", "v2", good, secret('z')},
		{"invalid version tag", "v:1", []KeyMaterial{{Version: "v:1", Secret: secret('a')}}, secret('z')},
		{"duplicate version", "v1", []KeyMaterial{good[0], good[0]}, secret('z')},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewKeyring(tc.active, tc.keys, tc.hmac)
			require.Error(t, err)
		})
	}

	keys, err := NewKeyring("v1", good, secret('z'))
	require.NoError(t, err)
	assert.Equal(t, "v1", keys.ActiveVersion())
}

func TestParseKeys(t *testing.T) {
	s1 := base64.StdEncoding.EncodeToString(secret('a'))
	s2 := base64.RawURLEncoding.EncodeToString(secret('b'))

	keys, err := ParseKeys(" v1:" + s1 + ", v2:" + s2 + ",")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "v1", keys[0].Version)
	assert.Equal(t, secret('a'), keys[0].Secret)
	assert.Equal(t, "v2", keys[1].Version)
	assert.Equal(t, secret('b'), keys[1].Secret)

	_, err = ParseKeys("")
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = ParseKeys("v1")
	assert.Error(t, err)

	_, err = ParseKeys("v1:%%%")
	assert.Error(t, err)
}
