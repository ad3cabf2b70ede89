package httptransport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	jwttoken "assent/internal/jwt_token"
	"assent/internal/oidc"
)

// SubjectResolver identifies the end user behind an authorize request. It
// returns the subject's claims and the browser session id; an anonymous
// claim set means no user is signed in and the engine will demand login.
type SubjectResolver interface {
	Resolve(r *http.Request) (oidc.ClaimSet, string)
}

// anonymousSubjects treats every request as unauthenticated.
type anonymousSubjects struct{}

func (anonymousSubjects) Resolve(*http.Request) (oidc.ClaimSet, string) {
	return oidc.ClaimSet{}, ""
}

// BearerSubjectResolver resolves the subject from a bearer token issued by
// this engine. Invalid or absent tokens resolve to anonymous rather than an
// error; the authorize flow turns that into a login interaction.
type BearerSubjectResolver struct {
	tokens *jwttoken.Service
}

func NewBearerSubjectResolver(tokens *jwttoken.Service) *BearerSubjectResolver {
	return &BearerSubjectResolver{tokens: tokens}
}

func (b *BearerSubjectResolver) Resolve(r *http.Request) (oidc.ClaimSet, string) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return oidc.ClaimSet{}, ""
	}

	claims, err := b.tokens.Validate(strings.TrimPrefix(header, prefix))
	if err != nil {
		return oidc.ClaimSet{}, ""
	}
	return subjectFromClaims(claims), stringClaim(claims, oidc.ClaimSessionID)
}

func subjectFromClaims(claims jwt.MapClaims) oidc.ClaimSet {
	subject := oidc.NewClaimSet()
	if sub := stringClaim(claims, oidc.ClaimSubject); sub != "" {
		subject = subject.With(oidc.NewClaim(oidc.ClaimSubject, sub))
	}
	if idp := stringClaim(claims, oidc.ClaimIdentityProvider); idp != "" {
		subject = subject.With(oidc.NewClaim(oidc.ClaimIdentityProvider, idp))
	}
	if authTime, ok := claims[oidc.ClaimAuthTime]; ok {
		if epoch, ok := authTime.(float64); ok {
			subject = subject.With(oidc.Claim{
				Type:      oidc.ClaimAuthTime,
				Value:     strconv.FormatInt(int64(epoch), 10),
				ValueType: oidc.ClaimValueInteger,
			})
		}
	}
	if methods, ok := claims[oidc.ClaimAuthMethod].([]any); ok {
		for _, m := range methods {
			if method, ok := m.(string); ok {
				subject = subject.With(oidc.NewClaim(oidc.ClaimAuthMethod, method))
			}
		}
	}
	return subject
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
