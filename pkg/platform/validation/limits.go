package validation

import (
	"fmt"
	"strings"

	dErrors "piivault/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	// Sufficient for JSON APIs while preventing memory exhaustion attacks.
	MaxBodySize = 64 * 1024
)

// String element length limits
const (
	// MaxReasonLength bounds free-text deletion and erasure reasons.
	MaxReasonLength = 256

	// MaxConsentKeyLength is the maximum length of a consent key.
	MaxConsentKeyLength = 64

	// MaxConsentVersionLength is the maximum length of a consent policy version.
	MaxConsentVersionLength = 32

	// MaxUserAgentLength bounds the user agent kept as consent provenance.
	MaxUserAgentLength = 512

	// MaxLoginReasonLength bounds the failure reason reported with a login outcome.
	MaxLoginReasonLength = 64
)

// Paging limits
const (
	// MaxPageLimit is the largest page a list endpoint returns.
	MaxPageLimit = 500
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// Truncate cuts value to at most max bytes without splitting a rune. Provenance such as user agents is
// stored truncated rather than rejected.
func Truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return strings.ToValidUTF8(value[:max], "")
}
