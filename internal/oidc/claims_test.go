package oidc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "assent/pkg/domain-errors"
)

type ClaimSetSuite struct {
	suite.Suite
}

func TestClaimSetSuite(t *testing.T) {
	suite.Run(t, new(ClaimSetSuite))
}

func (s *ClaimSetSuite) TestSubjectID() {
	s.Run("returns the sub claim", func() {
		set := NewSubject("user-1", LocalIdentityProvider, time.Now())
		sub, err := set.SubjectID()
		s.NoError(err)
		s.Equal("user-1", sub)
	})

	s.Run("missing sub yields typed error", func() {
		set := NewClaimSet(NewClaim(ClaimEmail, "a@b.test"))
		_, err := set.SubjectID()
		s.Error(err)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
		s.True(set.IsAnonymous())
	})
}

func (s *ClaimSetSuite) TestAuthTime() {
	s.Run("round trips through epoch encoding", func() {
		authTime := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
		set := NewSubject("user-1", "external", authTime)

		got, err := set.AuthTime()
		s.NoError(err)
		s.True(got.Equal(authTime))
	})

	s.Run("non-numeric auth_time yields typed error", func() {
		set := NewClaimSet(Claim{Type: ClaimAuthTime, Value: "yesterday", ValueType: ClaimValueInteger})
		_, err := set.AuthTime()
		s.Error(err)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("absent auth_time yields typed error", func() {
		_, err := NewClaimSet().AuthTime()
		s.Error(err)
	})
}

func (s *ClaimSetSuite) TestImmutability() {
	base := NewClaimSet(NewClaim(ClaimSubject, "user-1"))
	extended := base.With(NewClaim(ClaimAuthMethod, "pwd"))

	s.Len(base.Claims(), 1)
	s.Len(extended.Claims(), 2)
	s.Equal([]string{"pwd"}, extended.AuthenticationMethods())
	s.Empty(base.AuthenticationMethods())
}

func (s *ClaimSetSuite) TestOrderingPreserved() {
	set := NewClaimSet(
		NewClaim(ClaimAuthMethod, "pwd"),
		NewClaim(ClaimAuthMethod, "otp"),
	)
	s.Equal([]string{"pwd", "otp"}, set.AuthenticationMethods())
}
