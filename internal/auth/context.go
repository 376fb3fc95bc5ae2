package auth

import (
	"context"
	"errors"
	"fmt"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	clientIDKey contextKey = "clientID"
)

// ErrUnauthenticated is returned when no acting user is present.
var ErrUnauthenticated = errors.New("acting user is required")

// ContextWithUserID returns a new context that carries the acting user.
func ContextWithUserID(ctx context.Context, id int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext retrieves the acting user, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	return positiveID(ctx, userIDKey)
}

// ContextWithClientID returns a new context that carries the authenticated client scope.
func ContextWithClientID(ctx context.Context, id int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientIDKey, id)
}

// ClientIDFromContext retrieves the authenticated client scope, if any.
func ClientIDFromContext(ctx context.Context) (int64, bool) {
	return positiveID(ctx, clientIDKey)
}

// EnforceClientScope ensures clientID matches the authenticated scope when present.
func EnforceClientScope(ctx context.Context, clientID int64) error {
	if clientID <= 0 {
		return fmt.Errorf("client_id is required")
	}
	scopedID, ok := ClientIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != clientID {
		return fmt.Errorf("client_id %d does not match authenticated scope", clientID)
	}
	return nil
}

func positiveID(ctx context.Context, key contextKey) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(key).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}
