package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("a,b\n1,2\n")
	location, err := store.Put(ctx, "clients/1/imports/2/original/x.csv", data, "text/csv")
	if err != nil {
		t.Fatalf("put returned error: %v", err)
	}
	if location != "memory://clients/1/imports/2/original/x.csv" {
		t.Fatalf("unexpected location %q", location)
	}

	data[0] = 'z'
	got, err := store.Get(ctx, "clients/1/imports/2/original/x.csv")
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if string(got) != "a,b\n1,2\n" {
		t.Fatalf("stored data was aliased to caller buffer: %q", got)
	}
	if ct, ok := store.ContentType("clients/1/imports/2/original/x.csv"); !ok || ct != "text/csv" {
		t.Fatalf("unexpected content type %q", ct)
	}

	if err := store.Delete(ctx, "clients/1/imports/2/original/x.csv"); err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "clients/1/imports/2/original/x.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing key should succeed, got %v", err)
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, "k", []byte("v"), ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("expected nothing stored, got %v", store.Keys())
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"orders.csv":              "orders.csv",
		"Заказы март.xlsx":        "Заказы_март.xlsx",
		"../../etc/passwd":        "passwd",
		`C:\Users\me\report.csv`:  "report.csv",
		"":                        "file",
		"...":                     "file",
		"a<b>c?.csv":              "abc.csv",
	}
	for input, want := range cases {
		if got := SanitizeName(input); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}
