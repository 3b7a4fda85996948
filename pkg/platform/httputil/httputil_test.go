package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/requestcontext"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		description string
	}{
		{"not found", dErrors.UserNotFound("user not found"), http.StatusNotFound, "not_found", "user not found"},
		{"duplicate", dErrors.DuplicateUser("email or phone already registered"), http.StatusConflict, "duplicate_user", "email or phone already registered"},
		{"conflict", dErrors.Conflict("deletion in progress"), http.StatusConflict, "conflict", "deletion in progress"},
		{"consent", dErrors.ConsentFailure("invalid consent key"), http.StatusBadRequest, "invalid_consent", "invalid consent key"},
		{"crypto hides detail", dErrors.New(dErrors.CodeCrypto, "key v0 unavailable"), http.StatusInternalServerError, "crypto_failure", ""},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["error"])
			assert.Equal(t, tc.description, body["error_description"])
		})
	}
}

func TestRequireCaller(t *testing.T) {
	_, err := RequireCaller(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	ctx := requestcontext.WithCaller(context.Background(), requestcontext.Caller{Subject: "u1", Permission: "owner"})
	caller, err := RequireCaller(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", caller.Subject)
}
