package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "piivault/pkg/domain-errors"
)

func TestParseReferenceID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"idp subject", "auth0|64f1c2", true},
		{"uuid", uuid.NewString(), true},
		{"empty", "", false},
		{"whitespace", "user 1", false},
		{"newline injection", "user\n1", false},
		{"non-ascii", "usér", false},
		{"too long", strings.Repeat("a", MaxReferenceIDLength+1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ref, err := ParseReferenceID(tc.input)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.input, ref.String())
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestParseExportID(t *testing.T) {
	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseExportID(uuid.Nil.String())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("round trips generated IDs", func(t *testing.T) {
		id := NewExportID()
		parsed, err := ParseExportID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
		assert.False(t, parsed.IsNil())
	})
}

func TestEventIDJSON(t *testing.T) {
	id := NewEventID()
	b, err := json.Marshal(struct {
		ID EventID `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(b))

	var out struct {
		ID EventID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, id, out.ID)
}
