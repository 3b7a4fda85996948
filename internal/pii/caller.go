package pii

import (
	"context"

	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
	"piivault/pkg/requestcontext"
)

// CallerPermission resolves the permission of the authenticated caller in
// ctx for the record of target.
func CallerPermission(ctx context.Context, target domain.ReferenceID) (Permission, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok || caller.Subject == "" {
		return PermissionNone, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return EffectivePermission(ParsePermission(caller.Permission), caller.Subject, target.String()), nil
}

// Require returns a forbidden error unless p is one of allowed.
func Require(p Permission, allowed ...Permission) error {
	for _, a := range allowed {
		if p == a {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "insufficient permission")
}
