// Package mapping evaluates client-authored field-mapping rule sets against decoded rows.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidMappingFormat is returned when a rule set is missing or is not a JSON object.
var ErrInvalidMappingFormat = errors.New("invalid mapping format")

// Rule is one entry of a mapping rule set, keyed by system field name.
type Rule struct {
	Field        string
	SourceHeader *string
	DefaultValue *string
	Transform    Transform
	IsRequired   bool
	IsIdentifier bool
}

// Inert reports whether the rule can never produce a value.
func (r Rule) Inert() bool {
	return r.SourceHeader == nil && r.DefaultValue == nil
}

// SkippedRule records a rule set entry that was ignored while parsing.
type SkippedRule struct {
	Field  string
	Reason string
}

// RuleSet is a parsed mapping definition. Fields lists the active rules in a
// stable order so evaluation and error reporting are deterministic.
type RuleSet struct {
	Rules   map[string]Rule
	Fields  []string
	Skipped []SkippedRule
}

// Identifiers returns the active fields flagged as part of the business key.
func (rs RuleSet) Identifiers() []string {
	var fields []string
	for _, field := range rs.Fields {
		if rs.Rules[field].IsIdentifier {
			fields = append(fields, field)
		}
	}
	return fields
}

// UnknownTransforms returns the distinct unrecognised transform names in use.
func (rs RuleSet) UnknownTransforms() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, field := range rs.Fields {
		transform := rs.Rules[field].Transform
		if transform.Kind != TransformUnknown {
			continue
		}
		if _, ok := seen[transform.Name]; ok {
			continue
		}
		seen[transform.Name] = struct{}{}
		names = append(names, transform.Name)
	}
	return names
}

type rawRule struct {
	SourceHeader    json.RawMessage `json:"source_header"`
	DefaultValue    json.RawMessage `json:"default_value"`
	Transform       json.RawMessage `json:"transform"`
	TransformParams json.RawMessage `json:"transform_params"`
	IsRequired      json.RawMessage `json:"is_required"`
	IsIdentifier    json.RawMessage `json:"is_identifier"`
}

type rawTransform struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

// ParseRuleSet decodes the JSON-shaped rule set of a field mapping.
// Entries that cannot be interpreted are skipped and reported, never fatal;
// only a payload that is not an object fails the whole set.
func ParseRuleSet(payload []byte) (RuleSet, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RuleSet{}, fmt.Errorf("%w: mapping rules are empty", ErrInvalidMappingFormat)
	}
	if trimmed[0] != '{' {
		return RuleSet{}, fmt.Errorf("%w: mapping rules must be a JSON object", ErrInvalidMappingFormat)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", ErrInvalidMappingFormat, err)
	}

	set := RuleSet{Rules: make(map[string]Rule, len(entries))}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := strings.TrimSpace(name)
		if field == "" {
			set.Skipped = append(set.Skipped, SkippedRule{Field: name, Reason: "empty system field name"})
			continue
		}

		rule, err := parseRule(field, entries[name])
		if err != nil {
			set.Skipped = append(set.Skipped, SkippedRule{Field: field, Reason: err.Error()})
			continue
		}
		if rule.Inert() {
			set.Skipped = append(set.Skipped, SkippedRule{Field: field, Reason: "no source header or default value"})
			continue
		}

		set.Rules[field] = rule
		set.Fields = append(set.Fields, field)
	}

	return set, nil
}

func parseRule(field string, payload json.RawMessage) (Rule, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Rule{}, errors.New("rule must be an object")
	}

	var raw rawRule
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Rule{}, fmt.Errorf("invalid rule: %w", err)
	}

	rule := Rule{Field: field}

	header, err := optionalString(raw.SourceHeader)
	if err != nil {
		return Rule{}, fmt.Errorf("source_header: %w", err)
	}
	if header != nil {
		value := strings.TrimSpace(*header)
		if value != "" {
			rule.SourceHeader = &value
		}
	}

	defaultValue, err := optionalString(raw.DefaultValue)
	if err != nil {
		return Rule{}, fmt.Errorf("default_value: %w", err)
	}
	if defaultValue != nil && strings.TrimSpace(*defaultValue) != "" {
		rule.DefaultValue = defaultValue
	}

	if rule.Transform, err = parseTransform(raw.Transform, raw.TransformParams); err != nil {
		return Rule{}, fmt.Errorf("transform: %w", err)
	}
	if rule.IsRequired, err = optionalBool(raw.IsRequired); err != nil {
		return Rule{}, fmt.Errorf("is_required: %w", err)
	}
	if rule.IsIdentifier, err = optionalBool(raw.IsIdentifier); err != nil {
		return Rule{}, fmt.Errorf("is_identifier: %w", err)
	}

	return rule, nil
}

func parseTransform(payload, paramsPayload json.RawMessage) (Transform, error) {
	trimmed := bytes.TrimSpace(payload)
	if isNull(trimmed) {
		return Transform{Kind: TransformNone}, nil
	}

	var raw rawTransform
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &raw.Name); err != nil {
			return Transform{}, err
		}
		if !isNull(bytes.TrimSpace(paramsPayload)) {
			if err := json.Unmarshal(paramsPayload, &raw.Params); err != nil {
				return Transform{}, fmt.Errorf("params: %w", err)
			}
		}
	case '{':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return Transform{}, err
		}
	default:
		return Transform{}, errors.New("expected a name or an object")
	}

	return NewTransform(raw.Name, raw.Params), nil
}

func optionalString(payload json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(payload)
	if isNull(trimmed) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, err
		}
		return &value, nil
	case 't', 'f':
		var value bool
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, err
		}
		text := strconv.FormatBool(value)
		return &text, nil
	default:
		var number json.Number
		if err := json.Unmarshal(trimmed, &number); err != nil {
			return nil, errors.New("expected a string, number or boolean")
		}
		text := number.String()
		return &text, nil
	}
}

func optionalBool(payload json.RawMessage) (bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if isNull(trimmed) {
		return false, nil
	}

	var value bool
	if err := json.Unmarshal(trimmed, &value); err == nil {
		return value, nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		if parsed, parseErr := strconv.ParseBool(strings.TrimSpace(text)); parseErr == nil {
			return parsed, nil
		}
	}
	return false, errors.New("expected a boolean")
}

func isNull(payload []byte) bool {
	return len(payload) == 0 || bytes.Equal(payload, []byte("null"))
}
