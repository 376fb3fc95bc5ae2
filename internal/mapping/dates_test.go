package mapping

import (
	"testing"
	"time"
)

func TestExtractDateMessyPrefix(t *testing.T) {
	prefixed := ExtractDate("от 01.02.2023 13:45:00", "")
	plain := ExtractDate("01.02.2023 13:45:00", "")
	if prefixed == nil || plain == nil {
		t.Fatalf("expected both inputs to parse, got %v and %v", prefixed, plain)
	}
	if !prefixed.Equal(*plain) {
		t.Fatalf("expected same instant, got %v and %v", prefixed, plain)
	}
	want := time.Date(2023, 2, 1, 13, 45, 0, 0, time.UTC)
	if !plain.Equal(want) {
		t.Fatalf("unexpected instant %v", plain)
	}
}

func TestExtractDateFormats(t *testing.T) {
	cases := []struct {
		input  string
		format string
		want   time.Time
	}{
		{"Заказ № 15 от 5.3.2024 9:05:00", "", time.Date(2024, 3, 5, 9, 5, 0, 0, time.UTC)},
		{"Invoice from 10.11.2022", "", time.Date(2022, 11, 10, 0, 0, 0, 0, time.UTC)},
		{"24/12/2023 18:30", "", time.Date(2023, 12, 24, 18, 30, 0, 0, time.UTC)},
		{"2023-07-14T10:00:00Z", "", time.Date(2023, 7, 14, 10, 0, 0, 0, time.UTC)},
		{"2023-07-14", "", time.Date(2023, 7, 14, 0, 0, 0, 0, time.UTC)},
		{"14 Jul 2023", "%d %b %Y", time.Date(2023, 7, 14, 0, 0, 0, 0, time.UTC)},
		{"2023|07|14", "2006|01|02", time.Date(2023, 7, 14, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		got := ExtractDate(tc.input, tc.format)
		if got == nil {
			t.Fatalf("ExtractDate(%q, %q) returned nil", tc.input, tc.format)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ExtractDate(%q, %q) = %v, want %v", tc.input, tc.format, got, tc.want)
		}
	}
}

func TestExtractDateUnparseableReturnsNil(t *testing.T) {
	for _, input := range []string{"", "   ", "soon", "от вчера", "99.99.2023"} {
		if got := ExtractDate(input, "%d/%m/%Y"); got != nil {
			t.Fatalf("ExtractDate(%q) = %v, want nil", input, got)
		}
	}
}

func TestExtractDateTransform(t *testing.T) {
	transform := NewTransform("extract_date", nil)
	if got := transform.Apply("garbage"); got != nil {
		t.Fatalf("expected nil for unparseable input, got %#v", got)
	}
	if _, ok := transform.Apply("01.02.2023").(time.Time); !ok {
		t.Fatalf("expected time value")
	}
}

func TestCaseTransforms(t *testing.T) {
	if got := NewTransform("upper", nil).Apply("иванов"); got != "ИВАНОВ" {
		t.Fatalf("unexpected uppercase result %q", got)
	}
	if got := NewTransform("lowercase", nil).Apply("ABC"); got != "abc" {
		t.Fatalf("unexpected lowercase result %q", got)
	}
	if got := NewTransform("title", nil).Apply("иван ПЕТРОВ"); got != "Иван Петров" {
		t.Fatalf("unexpected title result %q", got)
	}
	if got := NewTransform("collapse_spaces", nil).Apply("  a   b "); got != "a b" {
		t.Fatalf("unexpected collapse result %q", got)
	}
	if got := NewTransform("trim", nil).Apply(nil); got != nil {
		t.Fatalf("expected nil to stay nil, got %#v", got)
	}
}
