package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibilityFor(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		perm  Permission
		want  Visibility
	}{
		{"owner sees email", FieldEmail, PermissionOwner, Full},
		{"admin sees phone", FieldPhone, PermissionAdmin, Full},
		{"support masks email", FieldEmail, PermissionSupport, Masked},
		{"support masks names", FieldLastName, PermissionSupport, Masked},
		{"analyst masks date of birth", FieldDateOfBirth, PermissionAnalyst, Masked},
		{"analyst cannot see phone", FieldPhone, PermissionAnalyst, Hidden},
		{"analyst cannot see names", FieldFirstName, PermissionAnalyst, Hidden},
		{"none sees nothing", FieldEmail, PermissionNone, Hidden},
		{"unknown permission sees nothing", FieldEmail, Permission("root"), Hidden},
		{"unknown field is hidden", Field("ssn"), PermissionAdmin, Hidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VisibilityFor(tt.field, tt.perm))
		})
	}
}

func TestVisibilityForIsStable(t *testing.T) {
	for _, p := range []Permission{PermissionOwner, PermissionAdmin, PermissionSupport, PermissionAnalyst, PermissionNone} {
		for _, f := range AllFields {
			assert.Equal(t, VisibilityFor(f, p), VisibilityFor(f, p))
		}
	}
}

func TestParsePermission(t *testing.T) {
	assert.Equal(t, PermissionSupport, ParsePermission("support"))
	assert.Equal(t, PermissionNone, ParsePermission("SUPPORT"))
	assert.Equal(t, PermissionNone, ParsePermission(""))
	assert.Equal(t, PermissionNone, ParsePermission("none"))
}

func TestEffectivePermission(t *testing.T) {
	t.Run("self read upgrades to owner", func(t *testing.T) {
		assert.Equal(t, PermissionOwner, EffectivePermission(PermissionNone, "u1", "u1"))
	})
	t.Run("owner claim on another record carries nothing", func(t *testing.T) {
		assert.Equal(t, PermissionNone, EffectivePermission(PermissionOwner, "u1", "u2"))
	})
	t.Run("staff permission passes through", func(t *testing.T) {
		assert.Equal(t, PermissionSupport, EffectivePermission(PermissionSupport, "agent", "u2"))
	})
	t.Run("empty caller never matches", func(t *testing.T) {
		assert.Equal(t, PermissionNone, EffectivePermission(PermissionNone, "", ""))
	})
}
