package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite covers the error primitives every PII component relies on
// to keep duplicate, not-found, conflict, and crypto outcomes distinguishable.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorMessage() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "user record not found"}
		s.Equal("user record not found", err.Error())
	})

	s.Run("falls back to code", func() {
		err := &Error{Code: CodeDuplicate}
		s.Equal("duplicate", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.Run("same code different message", func() {
		s.True(errors.Is(New(CodeConflict, "erasure in progress"), &Error{Code: CodeConflict}))
	})

	s.Run("different codes", func() {
		s.False(errors.Is(New(CodeConflict, "x"), &Error{Code: CodeDuplicate}))
	})

	s.Run("non-domain target", func() {
		s.False(errors.Is(New(CodeNotFound, "x"), errors.New("not_found")))
	})

	s.Run("through fmt wrapping", func() {
		err := fmt.Errorf("service: %w", New(CodeNotFound, "user record not found"))
		s.True(errors.Is(err, &Error{Code: CodeNotFound}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves the inner domain code", func() {
		wrapped := Wrap(New(CodeDuplicate, "email already registered"), CodeInternal, "register user")
		s.True(HasCode(wrapped, CodeDuplicate))
		s.Equal("register user", wrapped.Error())
	})

	s.Run("applies code to infrastructure errors", func() {
		root := errors.New("connection reset")
		wrapped := Wrap(root, CodeInternal, "load user record")
		s.True(HasCode(wrapped, CodeInternal))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.False(HasCode(nil, CodeNotFound))
	s.False(HasCode(errors.New("plain"), CodeNotFound))
	s.True(HasCode(New(CodeCrypto, "integrity check failed"), CodeCrypto))
}

func (s *DomainErrorsSuite) TestTaxonomyConstructors() {
	cases := []struct {
		name string
		err  error
		code Code
	}{
		{"duplicate user", DuplicateUser("email already registered"), CodeDuplicate},
		{"user not found", UserNotFound("user record not found"), CodeNotFound},
		{"conflict", Conflict("erasure already in progress"), CodeConflict},
		{"consent", ConsentFailure("malformed consent key"), CodeInvalidConsent},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.True(HasCode(tc.err, tc.code))
		})
	}
}
