package mapping

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/orderimport/internal/domain"
)

var (
	ErrInvalidInteger  = errors.New("invalid integer value")
	ErrInvalidFloat    = errors.New("invalid float value")
	ErrInvalidDateTime = errors.New("invalid datetime value")
)

var thousandsSeparators = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"'", "",
	"_", "",
)

// Coerce converts value to the declared field type.
func Coerce(fieldType domain.FieldType, value any) (any, error) {
	switch fieldType {
	case domain.FieldTypeInteger:
		return coerceInteger(value)
	case domain.FieldTypeFloat:
		return coerceFloat(value)
	case domain.FieldTypeDateTime:
		return coerceDateTime(value)
	case domain.FieldTypeString:
		return strings.TrimSpace(asString(value)), nil
	default:
		return value, nil
	}
}

func coerceInteger(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, ErrInvalidInteger
		}
		return int64(v), nil
	}

	normalized, ok := normalizeNumber(asString(value))
	if !ok {
		return nil, ErrInvalidInteger
	}
	if i, err := strconv.ParseInt(normalized, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, ErrInvalidInteger
	}
	return int64(f), nil
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	}

	normalized, ok := normalizeNumber(asString(value))
	if !ok {
		return nil, ErrInvalidFloat
	}
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, ErrInvalidFloat
	}
	return f, nil
}

func coerceDateTime(value any) (any, error) {
	if ts, ok := value.(time.Time); ok {
		return ts, nil
	}
	if ts, ok := ParseDateTime(asString(value)); ok {
		return ts, nil
	}
	return nil, ErrInvalidDateTime
}

// normalizeNumber strips thousands separators and rewrites the decimal mark
// to a dot. When both marks appear the last one is the decimal mark. A single
// comma on its own is a decimal mark, so "1,000" reads as 1. Repeated marks
// are grouping and must form groups of three digits.
func normalizeNumber(raw string) (string, bool) {
	s := thousandsSeparators.Replace(strings.TrimSpace(raw))
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if s == "" {
		return "", false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal, group := lastDot, ","
		if lastComma > lastDot {
			decimal, group = lastComma, "."
		}
		whole, fraction := s[:decimal], s[decimal+1:]
		if !validGrouping(whole, group) || !allDigits(fraction) {
			return "", false
		}
		s = strings.ReplaceAll(whole, group, "") + "." + fraction
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
			break
		}
		if !validGrouping(s, ",") {
			return "", false
		}
		s = strings.ReplaceAll(s, ",", "")
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		if !validGrouping(s, ".") {
			return "", false
		}
		s = strings.ReplaceAll(s, ".", "")
	}

	if strings.Count(s, ".") > 1 || strings.Trim(s, ".") == "" {
		return "", false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return "", false
		}
	}
	return sign + s, true
}

// validGrouping reports whether s is digits split by sep into a leading group
// of one to three digits followed by groups of exactly three.
func validGrouping(s, sep string) bool {
	groups := strings.Split(s, sep)
	if len(groups[0]) < 1 || len(groups[0]) > 3 || !allDigits(groups[0]) {
		return false
	}
	for _, group := range groups[1:] {
		if len(group) != 3 || !allDigits(group) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
