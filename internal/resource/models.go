// Package resource models the identity resources and API scopes a deployment
// registers, and validates requested scope strings against them.
package resource

import (
	dErrors "assent/pkg/domain-errors"
)

// IdentityResource is a named bundle of subject claims (e.g. "profile").
type IdentityResource struct {
	Name       string
	Enabled    bool
	Required   bool
	ClaimTypes []string
}

// APIScope grants access to a protected resource.
type APIScope struct {
	Name       string
	Enabled    bool
	Required   bool
	ClaimTypes []string
	// AllowUnrestrictedIntrospection lets introspection responses for this
	// scope include the full claim set rather than a scope-filtered view.
	AllowUnrestrictedIntrospection bool
}

// Resources is the resolved set for a request: the identity resources and API
// scopes matching the requested scope names.
type Resources struct {
	IdentityResources []IdentityResource
	APIScopes         []APIScope
	// OfflineAccess records that the reserved offline_access scope was
	// requested; it is not backed by a stored resource.
	OfflineAccess bool
}

// NewResources validates that no name is registered both as an identity
// resource and an API scope, and that no store returned duplicates. Duplicate
// names are a configuration error and fail fast.
func NewResources(identity []IdentityResource, apiScopes []APIScope) (Resources, error) {
	seen := make(map[string]string, len(identity)+len(apiScopes))
	for _, res := range identity {
		if prior, dup := seen[res.Name]; dup {
			return Resources{}, dErrors.Newf(dErrors.CodeInvariantViolation,
				"scope name %q registered as both %s and identity resource", res.Name, prior)
		}
		seen[res.Name] = "identity resource"
	}
	for _, scope := range apiScopes {
		if prior, dup := seen[scope.Name]; dup {
			return Resources{}, dErrors.Newf(dErrors.CodeInvariantViolation,
				"scope name %q registered as both %s and API scope", scope.Name, prior)
		}
		seen[scope.Name] = "API scope"
	}
	return Resources{IdentityResources: identity, APIScopes: apiScopes}, nil
}

// FilterEnabled drops disabled entries.
func (r Resources) FilterEnabled() Resources {
	filtered := Resources{OfflineAccess: r.OfflineAccess}
	for _, res := range r.IdentityResources {
		if res.Enabled {
			filtered.IdentityResources = append(filtered.IdentityResources, res)
		}
	}
	for _, scope := range r.APIScopes {
		if scope.Enabled {
			filtered.APIScopes = append(filtered.APIScopes, scope)
		}
	}
	return filtered
}

// FindIdentityResource looks up an identity resource by name.
func (r Resources) FindIdentityResource(name string) (IdentityResource, bool) {
	for _, res := range r.IdentityResources {
		if res.Name == name {
			return res, true
		}
	}
	return IdentityResource{}, false
}

// FindAPIScope looks up an API scope by name.
func (r Resources) FindAPIScope(name string) (APIScope, bool) {
	for _, scope := range r.APIScopes {
		if scope.Name == name {
			return scope, true
		}
	}
	return APIScope{}, false
}

// HasIdentityResources reports whether any identity resource was resolved.
func (r Resources) HasIdentityResources() bool {
	return len(r.IdentityResources) > 0
}

// ScopeNames returns all resolved names plus offline_access when present.
func (r Resources) ScopeNames() []string {
	names := make([]string, 0, len(r.IdentityResources)+len(r.APIScopes)+1)
	for _, res := range r.IdentityResources {
		names = append(names, res.Name)
	}
	for _, scope := range r.APIScopes {
		names = append(names, scope.Name)
	}
	if r.OfflineAccess {
		names = append(names, "offline_access")
	}
	return names
}
