package mapping

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TransformKind enumerates the supported value transformations.
type TransformKind string

const (
	TransformNone           TransformKind = "none"
	TransformTrim           TransformKind = "trim"
	TransformLowercase      TransformKind = "lowercase"
	TransformUppercase      TransformKind = "uppercase"
	TransformTitle          TransformKind = "title"
	TransformCollapseSpaces TransformKind = "collapse_spaces"
	TransformExtractDate    TransformKind = "extract_date"
	// TransformUnknown passes values through unchanged.
	TransformUnknown TransformKind = "unknown"
)

var transformAliases = map[string]TransformKind{
	"":                TransformNone,
	"none":            TransformNone,
	"trim":            TransformTrim,
	"strip":           TransformTrim,
	"lower":           TransformLowercase,
	"lowercase":       TransformLowercase,
	"upper":           TransformUppercase,
	"uppercase":       TransformUppercase,
	"title":           TransformTitle,
	"capitalize":      TransformTitle,
	"collapse_spaces": TransformCollapseSpaces,
	"normalize_space": TransformCollapseSpaces,
	"extract_date":    TransformExtractDate,
	"parse_date":      TransformExtractDate,
	"date":            TransformExtractDate,
}

// Transform is a named transformation plus its parameters.
type Transform struct {
	Kind   TransformKind
	Name   string
	Params map[string]string
}

// NewTransform resolves a transform by name. Unrecognised names produce a
// TransformUnknown that keeps the original name for reporting.
func NewTransform(name string, params map[string]string) Transform {
	normalized := strings.ToLower(strings.TrimSpace(name))
	kind, ok := transformAliases[normalized]
	if !ok {
		kind = TransformUnknown
	}
	return Transform{Kind: kind, Name: strings.TrimSpace(name), Params: params}
}

// Apply runs the transformation. Nil stays nil; non-string values are
// formatted before string transforms run.
func (t Transform) Apply(value any) any {
	if value == nil {
		return nil
	}

	switch t.Kind {
	case TransformNone, TransformUnknown, "":
		return value
	case TransformTrim:
		return strings.TrimSpace(asString(value))
	case TransformLowercase:
		return cases.Lower(language.Und).String(asString(value))
	case TransformUppercase:
		return cases.Upper(language.Und).String(asString(value))
	case TransformTitle:
		return cases.Title(language.Und).String(strings.ToLower(asString(value)))
	case TransformCollapseSpaces:
		return strings.Join(strings.Fields(asString(value)), " ")
	case TransformExtractDate:
		if ts, ok := value.(time.Time); ok {
			return ts
		}
		if ts := ExtractDate(asString(value), t.Params["format"]); ts != nil {
			return *ts
		}
		return nil
	default:
		return value
	}
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
