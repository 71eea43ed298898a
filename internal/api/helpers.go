package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/beyahq/inbox/internal/auth"
	"github.com/beyahq/inbox/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GetUserIDFromContext extracts the user's email from context, resolves/creates
// the DB user, and writes appropriate HTTP errors when it fails. Returns
// (userID, true) on success. Shared across handlers so authentication and user
// resolution fail the same way everywhere.
func GetUserIDFromContext(ctx context.Context, w http.ResponseWriter, pool *pgxpool.Pool) (string, bool) {
	email, ok := auth.GetUserEmailFromContext(ctx)
	if !ok {
		log.Println("API: No user email in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	userID, err := db.GetOrCreateUser(ctx, pool, email)
	if err != nil {
		log.Printf("API: Failed to get/create user: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return "", false
	}

	return userID, true
}

// ParsePaginationParams parses page and limit from query parameters, falling
// back to page=1 and the given default limit when missing or invalid.
func ParsePaginationParams(r *http.Request, defaultLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	return page, limit
}

// WriteJSONResponse marshals the payload and writes it with the JSON content
// type. Marshals before writing so an encoding failure never produces a
// partial body. Returns false when the response could not be written.
func WriteJSONResponse(w http.ResponseWriter, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		log.Printf("API: Failed to write response: %v", err)
		return false
	}
	return true
}
