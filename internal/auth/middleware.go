package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

const (
	// UserIDHeader carries the acting user id set by the upstream gateway.
	UserIDHeader = "X-User-ID"
	// ClientIDHeader optionally narrows the caller to one client.
	ClientIDHeader = "X-Client-ID"
)

// Middleware copies caller identity from trusted gateway headers into the
// request context. Requests without a valid user id are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseID(r.Header.Get(UserIDHeader))
		if !ok {
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}
		ctx := ContextWithUserID(r.Context(), userID)

		if raw := strings.TrimSpace(r.Header.Get(ClientIDHeader)); raw != "" {
			clientID, ok := parseID(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid "+ClientIDHeader+" header")
				return
			}
			ctx = ContextWithClientID(ctx, clientID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
