// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "piivault/pkg/domain-errors"
)

// MaxReferenceIDLength bounds identifiers supplied by the identity provider.
const MaxReferenceIDLength = 128

// ReferenceID is the stable external user identifier issued by the identity
// provider. It is immutable, unique, and never encrypted.
type ReferenceID string

// Distinct ID types - compiler prevents passing an ExportID where an EventID is expected.
type (
	ExportID        uuid.UUID
	EventID         uuid.UUID
	ConsentRecordID uuid.UUID
)

// ParseReferenceID validates an identifier at a trust boundary.
// Printable ASCII without whitespace covers IdP subjects such as "auth0|abc123".
func ParseReferenceID(s string) (ReferenceID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reference ID cannot be empty")
	}
	if len(s) > MaxReferenceIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reference ID too long")
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r > '~' }) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reference ID contains invalid characters")
	}
	return ReferenceID(s), nil
}

func NewExportID() ExportID               { return ExportID(uuid.New()) }
func NewEventID() EventID                 { return EventID(uuid.New()) }
func NewConsentRecordID() ConsentRecordID { return ConsentRecordID(uuid.New()) }

func ParseExportID(s string) (ExportID, error) {
	id, err := parseUUID(s, "export ID")
	return ExportID(id), err
}

func (id ReferenceID) String() string     { return string(id) }
func (id ExportID) String() string        { return uuid.UUID(id).String() }
func (id EventID) String() string         { return uuid.UUID(id).String() }
func (id ConsentRecordID) String() string { return uuid.UUID(id).String() }

func (id ReferenceID) IsNil() bool     { return id == "" }
func (id ExportID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ConsentRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}

// Text marshaling keeps IDs in their canonical string form in JSON payloads.

func (id EventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EventID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ExportID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ExportID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ConsentRecordID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ConsentRecordID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
