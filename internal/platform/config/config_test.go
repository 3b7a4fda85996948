package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base64 of 32 bytes of 'a' and 'b'
const (
	keyA = "YWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWE="
	keyB = "YmJiYmJiYmJiYmJiYmJiYmJiYmJiYmJiYmJiYmJiYmI="
)

func minimalEnv() map[string]string {
	return map[string]string{
		"CRYPTO_KEYS":        "v1:" + keyA,
		"CRYPTO_HMAC_SECRET": keyB,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(minimalEnv()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 90, cfg.Retention.UserRetentionDays)
	assert.Equal(t, 30, cfg.Retention.PurgeMinRetentionDays)
	assert.Equal(t, time.Duration(0), cfg.Retention.AuditRetention)
	assert.Equal(t, time.Hour, cfg.Retention.PurgeInterval)
	assert.Equal(t, "piivault.audit-events", cfg.Kafka.AuditTopic)
	assert.Equal(t, devSigningKey, cfg.Auth.JWTSigningKey)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadKeyRing(t *testing.T) {
	env := minimalEnv()
	env["CRYPTO_KEYS"] = "v2:" + keyB + ",v1:" + keyA
	env["CRYPTO_ACTIVE_KEY"] = "v2"

	cfg, err := load(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)

	keys, err := cfg.Crypto.DecodedKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "v1", keys[0].Version)
	assert.Equal(t, "v2", keys[1].Version)
	assert.Len(t, keys[1].Secret, 32)

	secret, err := cfg.Crypto.DecodedHMACSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
		errMsg string
	}{
		{
			name:   "missing keys",
			mutate: func(env map[string]string) { delete(env, "CRYPTO_KEYS") },
			errMsg: "CRYPTO_KEYS is required",
		},
		{
			name:   "active key absent from ring",
			mutate: func(env map[string]string) { env["CRYPTO_ACTIVE_KEY"] = "v9" },
			errMsg: `active key "v9"`,
		},
		{
			name:   "missing hmac secret",
			mutate: func(env map[string]string) { delete(env, "CRYPTO_HMAC_SECRET") },
			errMsg: "CRYPTO_HMAC_SECRET is required",
		},
		{
			name:   "retention below purge minimum",
			mutate: func(env map[string]string) { env["USER_RETENTION_DAYS"] = "7" },
			errMsg: "USER_RETENTION_DAYS must be at least",
		},
		{
			name:   "production without signing key",
			mutate: func(env map[string]string) { env["PIIVAULT_ENV"] = "production" },
			errMsg: "JWT_SIGNING_KEY is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := minimalEnv()
			tt.mutate(env)
			_, err := load(context.Background(), envconfig.MapLookuper(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
