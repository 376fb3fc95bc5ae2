package mapping

import (
	"strings"
	"time"

	"github.com/rpattn/orderimport/internal/domain"
)

// ReasonRequiredMissing is reported when a required field has no final value.
const ReasonRequiredMissing = "required field missing"

// FieldError describes a problem with one field of one row.
type FieldError struct {
	Field        string `json:"field"`
	SourceHeader string `json:"source_header,omitempty"`
	Value        any    `json:"value"`
	Reason       string `json:"reason"`
}

// Outcome is the evaluation result for one row.
type Outcome struct {
	Values map[string]any `json:"values"`
	Errors []FieldError   `json:"errors,omitempty"`
}

// OK reports whether the row mapped without field errors.
func (o Outcome) OK() bool {
	return len(o.Errors) == 0
}

// HeaderIndex resolves source header names to column positions. Exact
// matches win over case-insensitive ones; on duplicates the first column wins.
type HeaderIndex struct {
	exact  map[string]int
	folded map[string]int
}

// NewHeaderIndex indexes a decoded header row.
func NewHeaderIndex(headers []string) HeaderIndex {
	index := HeaderIndex{
		exact:  make(map[string]int, len(headers)),
		folded: make(map[string]int, len(headers)),
	}
	for pos, header := range headers {
		name := strings.TrimSpace(header)
		if _, ok := index.exact[name]; !ok {
			index.exact[name] = pos
		}
		key := strings.ToLower(name)
		if _, ok := index.folded[key]; !ok {
			index.folded[key] = pos
		}
	}
	return index
}

// Cell returns the cell under header, or false when the header is absent.
func (h HeaderIndex) Cell(cells []string, header string) (string, bool) {
	name := strings.TrimSpace(header)
	pos, ok := h.exact[name]
	if !ok {
		pos, ok = h.folded[strings.ToLower(name)]
	}
	if !ok || pos >= len(cells) {
		return "", false
	}
	return cells[pos], true
}

// Has reports whether header is present.
func (h HeaderIndex) Has(header string) bool {
	name := strings.TrimSpace(header)
	if _, ok := h.exact[name]; ok {
		return true
	}
	_, ok := h.folded[strings.ToLower(name)]
	return ok
}

// Evaluate applies every active rule of rules to one row. It performs no I/O,
// does not modify its inputs, and reports per-field problems as data.
func Evaluate(index HeaderIndex, cells []string, rules RuleSet, catalog domain.FieldCatalog) Outcome {
	outcome := Outcome{Values: make(map[string]any, len(rules.Fields))}

	for _, field := range rules.Fields {
		rule, ok := rules.Rules[field]
		if !ok || rule.Inert() {
			continue
		}

		var sourceHeader string
		var value any
		if rule.SourceHeader != nil {
			sourceHeader = *rule.SourceHeader
			if cell, found := index.Cell(cells, sourceHeader); found && !isEmpty(cell) {
				value = cell
			}
		}
		if isEmpty(value) && rule.DefaultValue != nil {
			value = *rule.DefaultValue
		}

		value = rule.Transform.Apply(value)

		if isEmpty(value) {
			outcome.Values[field] = nil
			if rule.IsRequired {
				outcome.Errors = append(outcome.Errors, FieldError{
					Field:        field,
					SourceHeader: sourceHeader,
					Value:        nil,
					Reason:       ReasonRequiredMissing,
				})
			}
			continue
		}

		fieldType, typed := catalog.TypeOf(field)
		if !typed {
			outcome.Values[field] = value
			continue
		}

		coerced, err := Coerce(fieldType, value)
		if err != nil {
			outcome.Values[field] = value
			outcome.Errors = append(outcome.Errors, FieldError{
				Field:        field,
				SourceHeader: sourceHeader,
				Value:        value,
				Reason:       err.Error(),
			})
			continue
		}
		outcome.Values[field] = coerced
	}

	return outcome
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case time.Time:
		return v.IsZero()
	default:
		return false
	}
}
