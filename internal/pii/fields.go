package pii

import (
	"strings"
	"unicode"
)

// Field names a protected attribute of a user record.
type Field string

const (
	FieldFirstName   Field = "first_name"
	FieldLastName    Field = "last_name"
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldDateOfBirth Field = "date_of_birth"
)

// AllFields lists every protected field in a stable order.
var AllFields = []Field{FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldDateOfBirth}

// IndexedFields are the only fields that carry an HMAC lookup token.
var IndexedFields = []Field{FieldEmail, FieldPhone}

func (f Field) IsValid() bool {
	switch f {
	case FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldDateOfBirth:
		return true
	}
	return false
}

// Indexed reports whether the field supports exact-match lookup.
func (f Field) Indexed() bool {
	return f == FieldEmail || f == FieldPhone
}

func (f Field) String() string {
	return string(f)
}

// Profile is the plaintext view of a user's PII.
type Profile struct {
	FirstName   string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName    string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Email       string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,e164"`
	DateOfBirth string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Values returns the non-empty fields of p keyed by Field.
func (p Profile) Values() map[Field]string {
	out := make(map[Field]string, len(AllFields))
	for _, f := range AllFields {
		if v := p.Get(f); v != "" {
			out[f] = v
		}
	}
	return out
}

func (p Profile) Get(f Field) string {
	switch f {
	case FieldFirstName:
		return p.FirstName
	case FieldLastName:
		return p.LastName
	case FieldEmail:
		return p.Email
	case FieldPhone:
		return p.Phone
	case FieldDateOfBirth:
		return p.DateOfBirth
	}
	return ""
}

func (p *Profile) Set(f Field, v string) {
	switch f {
	case FieldFirstName:
		p.FirstName = v
	case FieldLastName:
		p.LastName = v
	case FieldEmail:
		p.Email = v
	case FieldPhone:
		p.Phone = v
	case FieldDateOfBirth:
		p.DateOfBirth = v
	}
}

// Normalize returns the canonical form stored and tokenized for a field, so
// lookups match regardless of case or phone formatting.
func Normalize(f Field, v string) string {
	v = strings.TrimSpace(v)
	switch f {
	case FieldEmail:
		return strings.ToLower(v)
	case FieldPhone:
		var b strings.Builder
		for i, r := range v {
			if unicode.IsDigit(r) || (r == '+' && i == 0) {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return v
}
