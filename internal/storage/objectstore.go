// Package storage persists import payloads and result blobs by key.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"unicode"
)

// ErrObjectNotFound is returned by Get when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is a durable, key-addressed blob store.
type ObjectStore interface {
	// Put stores data under key and returns a location that identifies the object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

const maxNameRunes = 128

// SanitizeName reduces an uploaded file name to a safe key segment.
func SanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}

	sanitized := strings.Trim(b.String(), ".")
	if sanitized == "" {
		return "file"
	}
	if runes := []rune(sanitized); len(runes) > maxNameRunes {
		sanitized = string(runes[len(runes)-maxNameRunes:])
	}
	return sanitized
}
