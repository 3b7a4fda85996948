// Package pii converts user profiles between plaintext and their
// encrypted-at-rest form, and applies per-permission masking on read.
package pii

import (
	"context"
	"fmt"
	"log/slog"

	"piivault/internal/platform/metrics"
	"piivault/pkg/domain"
)

// Tombstone replaces a ciphertext on hard erasure. It contains no version
// separator, so it can never be mistaken for a sealed value.
const Tombstone = "erased"

// Engine is the subset of the crypto engine the codec depends on.
type Engine interface {
	Seal(plaintext, associatedData []byte) (string, error)
	Open(ciphertext string, associatedData []byte) ([]byte, error)
	HMAC(plaintext []byte) (string, error)
}

// FieldState describes what a reader receives for one field.
type FieldState string

const (
	StateRevealed   FieldState = "revealed"
	StateMasked     FieldState = "masked"
	StateHidden     FieldState = "hidden"
	StateUnreadable FieldState = "unreadable"
	StateErased     FieldState = "erased"
)

// FieldValue is one decoded field. Value is empty unless State is revealed or masked.
type FieldValue struct {
	State FieldState `json:"state"`
	Value string     `json:"value,omitempty"`
}

// View is a decoded record. Fields the record never held are absent.
type View map[Field]FieldValue

// Profile returns the revealed and masked values as a Profile.
func (v View) Profile() Profile {
	var p Profile
	for f, fv := range v {
		if fv.State == StateRevealed || fv.State == StateMasked {
			p.Set(f, fv.Value)
		}
	}
	return p
}

// Erased reports whether every present field is a tombstone.
func (v View) Erased() bool {
	if len(v) == 0 {
		return false
	}
	for _, fv := range v {
		if fv.State != StateErased {
			return false
		}
	}
	return true
}

// Sealed is the storage representation produced by ToStorage.
type Sealed struct {
	EncryptedFields map[Field]string
	HMACIndex       map[Field]string
}

type Codec struct {
	engine  Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Codec)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Codec) {
		c.metrics = m
	}
}

func NewCodec(engine Engine, opts ...Option) *Codec {
	c := &Codec{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToStorage encrypts every non-empty field of p and derives HMAC tokens for
// indexed fields. Any crypto failure aborts the whole write.
func (c *Codec) ToStorage(ref domain.ReferenceID, p Profile) (Sealed, error) {
	return c.SealFields(ref, p.Values())
}

// SealFields encrypts a subset of fields, as used by partial profile updates.
func (c *Codec) SealFields(ref domain.ReferenceID, values map[Field]string) (Sealed, error) {
	out := Sealed{
		EncryptedFields: make(map[Field]string, len(values)),
		HMACIndex:       make(map[Field]string, len(IndexedFields)),
	}
	for f, raw := range values {
		if !f.IsValid() {
			return Sealed{}, fmt.Errorf("unknown pii field %q", f)
		}
		v := Normalize(f, raw)
		if v == "" {
			continue
		}
		ct, err := c.engine.Seal([]byte(v), associatedData(ref, f))
		if err != nil {
			c.metrics.IncCryptoFailure("encrypt")
			return Sealed{}, fmt.Errorf("seal %s: %w", f, err)
		}
		out.EncryptedFields[f] = ct
		if f.Indexed() {
			token, err := c.Token(f, v)
			if err != nil {
				return Sealed{}, err
			}
			out.HMACIndex[f] = token
		}
	}
	return out, nil
}

// Token computes the lookup token for a search value of an indexed field.
// The field name is part of the MAC input so tokens never match across fields.
func (c *Codec) Token(f Field, value string) (string, error) {
	if !f.Indexed() {
		return "", fmt.Errorf("field %s is not indexed", f)
	}
	token, err := c.engine.HMAC([]byte(string(f) + ":" + Normalize(f, value)))
	if err != nil {
		c.metrics.IncCryptoFailure("hmac")
		return "", fmt.Errorf("tokenize %s: %w", f, err)
	}
	return token, nil
}

// FromStorage decrypts the fields perm may see. A field that fails to
// decrypt is reported as unreadable on its own; the rest of the record still
// decodes. Hidden fields are never decrypted.
func (c *Codec) FromStorage(ctx context.Context, ref domain.ReferenceID, encrypted map[Field]string, perm Permission) View {
	view := make(View, len(encrypted))
	for f, ct := range encrypted {
		if ct == "" {
			continue
		}
		if ct == Tombstone {
			view[f] = FieldValue{State: StateErased}
			continue
		}
		visibility := VisibilityFor(f, perm)
		if visibility == Hidden {
			view[f] = FieldValue{State: StateHidden}
			continue
		}
		plaintext, err := c.engine.Open(ct, associatedData(ref, f))
		if err != nil {
			c.metrics.IncCryptoFailure("decrypt")
			c.metrics.IncFieldUnreadable(string(f))
			c.logger.ErrorContext(ctx, "pii field unreadable",
				"reference_id", ref.String(),
				"field", string(f),
				"error", err,
			)
			view[f] = FieldValue{State: StateUnreadable}
			continue
		}
		if visibility == Masked {
			view[f] = FieldValue{State: StateMasked, Value: Mask(f, string(plaintext))}
			continue
		}
		view[f] = FieldValue{State: StateRevealed, Value: string(plaintext)}
	}
	return view
}

// Tombstones returns the overwrite applied by hard erasure: every field set
// to Tombstone.
func Tombstones() map[Field]string {
	out := make(map[Field]string, len(AllFields))
	for _, f := range AllFields {
		out[f] = Tombstone
	}
	return out
}

// associatedData binds a ciphertext to its owner and column.
func associatedData(ref domain.ReferenceID, f Field) []byte {
	return []byte(ref.String() + "|" + string(f))
}
