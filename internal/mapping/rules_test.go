package mapping

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseRuleSetParsesRules(t *testing.T) {
	payload := []byte(`{
		"order_number": {"source_header": "Номер заказа", "is_required": true, "is_identifier": true},
		"currency": {"default_value": "RUB", "transform": "upper"},
		"order_date": {"source_header": "Дата", "transform": {"name": "extract_date", "params": {"format": "%d.%m.%Y"}}},
		"quantity": {"source_header": "Кол-во", "default_value": 1, "is_required": "true"},
		"legacy": {"source_header": null, "default_value": null}
	}`)

	set, err := ParseRuleSet(payload)
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}

	wantFields := []string{"currency", "order_date", "order_number", "quantity"}
	if !reflect.DeepEqual(set.Fields, wantFields) {
		t.Fatalf("unexpected active fields: %v", set.Fields)
	}

	orderNumber := set.Rules["order_number"]
	if orderNumber.SourceHeader == nil || *orderNumber.SourceHeader != "Номер заказа" {
		t.Fatalf("unexpected source header: %+v", orderNumber)
	}
	if !orderNumber.IsRequired || !orderNumber.IsIdentifier {
		t.Fatalf("expected required identifier, got %+v", orderNumber)
	}

	currency := set.Rules["currency"]
	if currency.SourceHeader != nil || currency.DefaultValue == nil || *currency.DefaultValue != "RUB" {
		t.Fatalf("unexpected currency rule: %+v", currency)
	}
	if currency.Transform.Kind != TransformUppercase {
		t.Fatalf("expected uppercase alias, got %s", currency.Transform.Kind)
	}

	orderDate := set.Rules["order_date"]
	if orderDate.Transform.Kind != TransformExtractDate || orderDate.Transform.Params["format"] != "%d.%m.%Y" {
		t.Fatalf("unexpected transform: %+v", orderDate.Transform)
	}

	quantity := set.Rules["quantity"]
	if quantity.DefaultValue == nil || *quantity.DefaultValue != "1" || !quantity.IsRequired {
		t.Fatalf("expected numeric default and string boolean to be accepted: %+v", quantity)
	}

	if len(set.Skipped) != 1 || set.Skipped[0].Field != "legacy" {
		t.Fatalf("expected inert rule to be skipped, got %+v", set.Skipped)
	}
	if got := set.Identifiers(); !reflect.DeepEqual(got, []string{"order_number"}) {
		t.Fatalf("unexpected identifiers: %v", got)
	}
}

func TestParseRuleSetSkipsMalformedEntries(t *testing.T) {
	payload := []byte(`{
		"a": "not an object",
		"b": {"source_header": ["x"]},
		"c": {"source_header": "C", "is_required": "maybe"},
		"d": {"source_header": "D", "transform": 42},
		"e": {"source_header": "E"}
	}`)

	set, err := ParseRuleSet(payload)
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if !reflect.DeepEqual(set.Fields, []string{"e"}) {
		t.Fatalf("expected only e to survive, got %v", set.Fields)
	}
	if len(set.Skipped) != 4 {
		t.Fatalf("expected 4 skipped entries, got %+v", set.Skipped)
	}
}

func TestParseRuleSetRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{``, `null`, `[]`, `"rules"`, `42`, `{broken`} {
		_, err := ParseRuleSet([]byte(payload))
		if !errors.Is(err, ErrInvalidMappingFormat) {
			t.Fatalf("payload %q: expected ErrInvalidMappingFormat, got %v", payload, err)
		}
	}
}

func TestParseRuleSetReportsUnknownTransforms(t *testing.T) {
	set, err := ParseRuleSet([]byte(`{
		"a": {"source_header": "A", "transform": "reverse"},
		"b": {"source_header": "B", "transform": "reverse"},
		"c": {"source_header": "C", "transform": "trim"}
	}`))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if got := set.UnknownTransforms(); !reflect.DeepEqual(got, []string{"reverse"}) {
		t.Fatalf("unexpected unknown transforms: %v", got)
	}
}
