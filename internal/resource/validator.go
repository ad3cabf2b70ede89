package resource

import (
	"context"
	"fmt"
	"log/slog"

	"assent/internal/oidc"
	dErrors "assent/pkg/domain-errors"
)

// InvalidScopeError reports a protocol-level invalid_scope outcome. It is
// distinct from infrastructure failures, which surface as coded domain
// errors.
type InvalidScopeError struct {
	Scope string
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("scope %q is unknown, disabled, or not allowed for the client", e.Scope)
}

// ClientScopes is the slice of client configuration the validator needs.
// internal/client.Client satisfies it.
type ClientScopes interface {
	ScopeAllowed(name string) bool
	OfflineAccessAllowed() bool
}

// ValidatedScopes is the all-or-nothing result of scope validation.
type ValidatedScopes struct {
	ParsedScopes []ParsedScopeValue
	Resources    Resources
}

// IsOpenID reports whether the openid scope was among the validated set.
func (v ValidatedScopes) IsOpenID() bool {
	for _, s := range v.ParsedScopes {
		if s.Name == oidc.ScopeOpenID {
			return true
		}
	}
	return false
}

// Validator resolves parsed scope values against the resource store and the
// client allow-list. There is no partial success: one bad scope rejects the
// whole request.
type Validator struct {
	store  Store
	parser *Parser
	logger *slog.Logger
}

type ValidatorOption func(*Validator)

func WithLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

func WithParser(parser *Parser) ValidatorOption {
	return func(v *Validator) {
		v.parser = parser
	}
}

func NewValidator(store Store, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store:  store,
		parser: NewParser(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// ValidateRequestedScopes parses the raw scope parameter and cross-checks
// every value against the client allow-list and the enabled resource set.
func (v *Validator) ValidateRequestedScopes(ctx context.Context, rawScopes string, client ClientScopes) (ValidatedScopes, error) {
	parsed, err := v.parser.Parse(rawScopes)
	if err != nil {
		return ValidatedScopes{}, err
	}
	if len(parsed) == 0 {
		return ValidatedScopes{}, &InvalidScopeError{Scope: ""}
	}

	offlineAccess := false
	lookupNames := make([]string, 0, len(parsed))
	for _, scope := range parsed {
		if scope.Name == oidc.ScopeOfflineAccess {
			if !client.OfflineAccessAllowed() {
				v.logger.Warn("offline_access requested by client without offline access", "scope", scope.Raw)
				return ValidatedScopes{}, &InvalidScopeError{Scope: scope.Raw}
			}
			offlineAccess = true
			continue
		}
		if !client.ScopeAllowed(scope.Name) {
			v.logger.Warn("scope not in client allow-list", "scope", scope.Raw)
			return ValidatedScopes{}, &InvalidScopeError{Scope: scope.Raw}
		}
		lookupNames = append(lookupNames, scope.Name)
	}

	resources, err := v.store.FindResourcesByScopeNames(ctx, lookupNames)
	if err != nil {
		return ValidatedScopes{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "resource store lookup failed")
	}
	resources = resources.FilterEnabled()
	resources.OfflineAccess = offlineAccess

	for _, name := range lookupNames {
		if _, ok := resources.FindIdentityResource(name); ok {
			continue
		}
		if _, ok := resources.FindAPIScope(name); ok {
			continue
		}
		v.logger.Warn("scope not registered or disabled", "scope", name)
		return ValidatedScopes{}, &InvalidScopeError{Scope: name}
	}

	return ValidatedScopes{ParsedScopes: parsed, Resources: resources}, nil
}
