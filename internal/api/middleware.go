package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hbinjamal/travelhub/internal/auth"
	"github.com/hbinjamal/travelhub/internal/storage"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// JWTAuth returns middleware that validates the Authorization: Bearer token,
// loads the authenticated user, and stores it on the request context.
func JWTAuth(secret string, users UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w)
				return
			}

			userID, err := auth.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := users.UserByID(r.Context(), userID)
			if err != nil || user == nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), userContextKey, user),
			))
		})
	}
}

// currentUser returns the authenticated user placed by JWTAuth, or nil.
func currentUser(r *http.Request) *storage.User {
	user, _ := r.Context().Value(userContextKey).(*storage.User)
	return user
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
