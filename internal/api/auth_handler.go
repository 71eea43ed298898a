package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/beyahq/inbox/internal/auth"
	"github.com/beyahq/inbox/internal/db"
	"github.com/beyahq/inbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuthHandler struct {
	pool *pgxpool.Pool
}

func NewAuthHandler(pool *pgxpool.Pool) *AuthHandler {
	return &AuthHandler{pool: pool}
}

// GetAuthStatus confirms the caller's token resolved to a user, creating the
// account on first contact.
func (h *AuthHandler) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, ok := auth.GetUserEmailFromContext(ctx)
	if !ok {
		log.Println("AuthHandler: No user email in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if _, err := db.GetOrCreateUser(ctx, h.pool, email); err != nil {
		log.Printf("AuthHandler: Failed to get/create user: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := models.AuthStatusResponse{
		IsAuthenticated: true,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("AuthHandler: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
}
