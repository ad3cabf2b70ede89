package resource

import (
	"strings"

	dErrors "assent/pkg/domain-errors"
)

// ParsedScopeValue is a single scope after parsing. Parameterized scopes like
// "transaction:1234" keep the full raw value while Name carries the
// registered prefix used for resource lookup.
type ParsedScopeValue struct {
	// Raw is the value exactly as requested.
	Raw string
	// Name is the registered scope name (the prefix for parameterized scopes).
	Name string
	// Value is the parameter portion, empty for plain scopes.
	Value string
}

// ScopeValueParser recognizes one family of parameterized scope values.
// Parse returns ok=false when the raw value is not in its family.
type ScopeValueParser interface {
	Parse(raw string) (ParsedScopeValue, bool, error)
}

// PrefixScopeParser handles "name:value" scopes for a fixed registered name.
type PrefixScopeParser struct {
	ScopeName string
}

func (p PrefixScopeParser) Parse(raw string) (ParsedScopeValue, bool, error) {
	prefix := p.ScopeName + ":"
	if !strings.HasPrefix(raw, prefix) {
		return ParsedScopeValue{}, false, nil
	}
	value := strings.TrimPrefix(raw, prefix)
	if value == "" {
		return ParsedScopeValue{}, true, dErrors.Newf(dErrors.CodeBadRequest,
			"parameterized scope %q has an empty value", raw)
	}
	return ParsedScopeValue{Raw: raw, Name: p.ScopeName, Value: value}, true, nil
}

// Parser splits a space-delimited scope string into parsed values, consulting
// the registered value parsers before falling back to plain scope names.
type Parser struct {
	valueParsers []ScopeValueParser
}

func NewParser(valueParsers ...ScopeValueParser) *Parser {
	return &Parser{valueParsers: valueParsers}
}

// Parse splits and parses the raw scope parameter. Duplicate raw values are
// collapsed; order of first occurrence is preserved.
func (p *Parser) Parse(rawScopes string) ([]ParsedScopeValue, error) {
	fields := strings.Fields(rawScopes)
	parsed := make([]ParsedScopeValue, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))

	for _, raw := range fields {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		value, err := p.parseOne(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, value)
	}
	return parsed, nil
}

func (p *Parser) parseOne(raw string) (ParsedScopeValue, error) {
	for _, vp := range p.valueParsers {
		value, ok, err := vp.Parse(raw)
		if err != nil {
			return ParsedScopeValue{}, err
		}
		if ok {
			return value, nil
		}
	}
	return ParsedScopeValue{Raw: raw, Name: raw}, nil
}

// Names extracts the distinct registered names from parsed values.
func Names(values []ParsedScopeValue) []string {
	names := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v.Name]; dup {
			continue
		}
		seen[v.Name] = struct{}{}
		names = append(names, v.Name)
	}
	return names
}
