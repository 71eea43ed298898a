package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/beyahq/inbox/internal/auth"
	"github.com/beyahq/inbox/internal/inbox"
	"github.com/beyahq/inbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SendHandler handles POST /api/v1/send.
type SendHandler struct {
	pool    *pgxpool.Pool
	service *inbox.Service
}

// NewSendHandler creates a SendHandler.
func NewSendHandler(pool *pgxpool.Pool, service *inbox.Service) *SendHandler {
	return &SendHandler{
		pool:    pool,
		service: service,
	}
}

// Send delivers an outbound message and returns the stored record. The
// sender's own address comes from the authenticated identity, never from the
// request body.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}
	userEmail, _ := auth.GetUserEmailFromContext(ctx)

	var req inbox.OutboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("SendHandler: Failed to decode request: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if req.Channel == "" {
		req.Channel = models.ChannelEmail
	}
	if len(req.To) == 0 {
		http.Error(w, "to is required", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}

	msg, err := h.service.SendMessage(ctx, userID, userEmail, &req)
	if err != nil {
		log.Printf("SendHandler: Failed to send message: %v", err)
		http.Error(w, "Failed to send message", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		log.Printf("SendHandler: Failed to encode response: %v", err)
	}
}
