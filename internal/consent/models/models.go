package models

import (
	"regexp"
	"time"

	"piivault/pkg/domain"
	dErrors "piivault/pkg/domain-errors"
)

// State is the resolved consent state for one user and key.
type State string

const (
	StateGranted   State = "granted"
	StateWithdrawn State = "withdrawn"
	// StateUnknown means no record exists. Gating treats it as not granted.
	StateUnknown State = "unknown"
)

// Granted reports whether processing under this consent is allowed.
func (s State) Granted() bool {
	return s == StateGranted
}

// Key identifies a consent purpose, such as "marketing_emails".
type Key string

var (
	keyPattern     = regexp.MustCompile(`^[a-z0-9_.-]{2,64}$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)
)

// ParseKey validates a consent key at a trust boundary.
func ParseKey(s string) (Key, error) {
	if !keyPattern.MatchString(s) {
		return "", dErrors.ConsentFailure("consent key must be 2-64 characters of a-z, 0-9, '_', '.', '-'")
	}
	return Key(s), nil
}

// ValidateVersion checks a consent policy version.
func ValidateVersion(v string) error {
	if !versionPattern.MatchString(v) {
		return dErrors.ConsentFailure("consent version must be 1-32 characters of letters, digits, '_', '.', '-'")
	}
	return nil
}

func (k Key) String() string {
	return string(k)
}

// Record is one immutable entry of the consent ledger. Exactly one of
// GrantedAt and WithdrawnAt is set, matching Granted.
//
// IPAddress and UserAgent are the raw provenance the regulation requires us
// to keep with the consent itself; audit events only ever see an anonymized
// form.
type Record struct {
	ID domain.ConsentRecordID `json:"id"`
	// Sequence is assigned by the store on append and orders the ledger.
	Sequence        int64              `json:"sequence"`
	UserReferenceID domain.ReferenceID `json:"user_reference_id"`
	Key             Key                `json:"consent_key"`
	Granted         bool               `json:"granted"`
	Version         string             `json:"consent_version,omitempty"`
	GrantedAt       *time.Time         `json:"granted_at,omitempty"`
	WithdrawnAt     *time.Time         `json:"withdrawn_at,omitempty"`
	IPAddress       string             `json:"ip_address,omitempty"`
	UserAgent       string             `json:"user_agent,omitempty"`
	RecordedAt      time.Time          `json:"recorded_at"`
}

// Provenance is where a consent action came from.
type Provenance struct {
	IPAddress string
	UserAgent string
}

// NewGrant builds a grant entry.
func NewGrant(ref domain.ReferenceID, key Key, version string, p Provenance, now time.Time) (*Record, error) {
	if ref.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user reference ID required")
	}
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}
	at := now
	return &Record{
		ID:              domain.NewConsentRecordID(),
		UserReferenceID: ref,
		Key:             key,
		Granted:         true,
		Version:         version,
		GrantedAt:       &at,
		IPAddress:       p.IPAddress,
		UserAgent:       p.UserAgent,
		RecordedAt:      now,
	}, nil
}

// NewWithdrawal builds a withdrawal entry. version is the policy version
// being withdrawn from, empty when nothing was ever granted.
func NewWithdrawal(ref domain.ReferenceID, key Key, version string, p Provenance, now time.Time) (*Record, error) {
	if ref.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user reference ID required")
	}
	at := now
	return &Record{
		ID:              domain.NewConsentRecordID(),
		UserReferenceID: ref,
		Key:             key,
		Granted:         false,
		Version:         version,
		WithdrawnAt:     &at,
		IPAddress:       p.IPAddress,
		UserAgent:       p.UserAgent,
		RecordedAt:      now,
	}, nil
}

// State maps the entry to the state it establishes.
func (r Record) State() State {
	if r.Granted {
		return StateGranted
	}
	return StateWithdrawn
}

// Clone returns a copy that shares no pointers with r.
func (r *Record) Clone() *Record {
	out := *r
	if r.GrantedAt != nil {
		t := *r.GrantedAt
		out.GrantedAt = &t
	}
	if r.WithdrawnAt != nil {
		t := *r.WithdrawnAt
		out.WithdrawnAt = &t
	}
	return &out
}

// Latest reduces a ledger in append order to the newest entry per key,
// preserving first-seen key order.
func Latest(history []*Record) []*Record {
	index := make(map[Key]int, len(history))
	var out []*Record
	for _, r := range history {
		if i, ok := index[r.Key]; ok {
			out[i] = r
			continue
		}
		index[r.Key] = len(out)
		out = append(out, r)
	}
	return out
}

// Status is one key's current state as reported to callers.
type Status struct {
	Key       Key        `json:"consent_key"`
	State     State      `json:"state"`
	Version   string     `json:"consent_version,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
