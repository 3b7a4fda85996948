package pii

// Permission is the capability a caller holds when reading PII. The HTTP
// layer resolves it from the authenticated caller; the codec never inspects
// roles itself.
type Permission string

const (
	PermissionOwner   Permission = "owner"
	PermissionAdmin   Permission = "admin"
	PermissionSupport Permission = "support"
	PermissionAnalyst Permission = "analyst"
	PermissionNone    Permission = "none"
)

// ParsePermission maps an external claim to a Permission. Unknown values
// resolve to PermissionNone.
func ParsePermission(s string) Permission {
	switch p := Permission(s); p {
	case PermissionOwner, PermissionAdmin, PermissionSupport, PermissionAnalyst:
		return p
	}
	return PermissionNone
}

// EffectivePermission upgrades a caller reading their own record to owner.
// An owner claim for someone else's record carries no access.
func EffectivePermission(claimed Permission, callerRef, targetRef string) Permission {
	if callerRef != "" && callerRef == targetRef {
		return PermissionOwner
	}
	if claimed == PermissionOwner {
		return PermissionNone
	}
	return claimed
}

// Visibility is how much of a field a permission may see.
type Visibility int

const (
	Hidden Visibility = iota
	Masked
	Full
)

func (v Visibility) String() string {
	switch v {
	case Full:
		return "full"
	case Masked:
		return "masked"
	}
	return "hidden"
}

var policy = map[Permission]map[Field]Visibility{
	PermissionOwner: {
		FieldFirstName: Full, FieldLastName: Full, FieldEmail: Full, FieldPhone: Full, FieldDateOfBirth: Full,
	},
	PermissionAdmin: {
		FieldFirstName: Full, FieldLastName: Full, FieldEmail: Full, FieldPhone: Full, FieldDateOfBirth: Full,
	},
	PermissionSupport: {
		FieldFirstName: Masked, FieldLastName: Masked, FieldEmail: Masked, FieldPhone: Masked, FieldDateOfBirth: Masked,
	},
	PermissionAnalyst: {
		FieldEmail: Masked, FieldDateOfBirth: Masked,
	},
}

// VisibilityFor is the masking policy: a pure function of field and
// permission. Anything not granted explicitly is Hidden.
func VisibilityFor(f Field, p Permission) Visibility {
	return policy[p][f]
}
