package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/beyahq/inbox/internal/db"
	"github.com/beyahq/inbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketsHandler serves the Kanban board endpoints. Tickets are a thin
// presentational layer over flows; there is no workflow logic here.
type TicketsHandler struct {
	pool *pgxpool.Pool
}

// NewTicketsHandler creates a TicketsHandler.
func NewTicketsHandler(pool *pgxpool.Pool) *TicketsHandler {
	return &TicketsHandler{pool: pool}
}

type createTicketRequest struct {
	FlowID      string `json:"flow_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Column      string `json:"column,omitempty"`
	Position    int    `json:"position,omitempty"`
}

type moveTicketRequest struct {
	Column   string `json:"column"`
	Position int    `json:"position"`
}

// Create adds a ticket to the board.
func (h *TicketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	if req.Column == "" {
		req.Column = models.TicketColumnTodo
	}

	ticket := &models.Ticket{
		UserID:      userID,
		FlowID:      req.FlowID,
		Title:       req.Title,
		Description: req.Description,
		Column:      req.Column,
		Position:    req.Position,
	}

	if err := db.CreateTicket(ctx, h.pool, ticket); err != nil {
		log.Printf("TicketsHandler: Failed to create ticket: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(ticket); err != nil {
		log.Printf("TicketsHandler: Failed to encode response: %v", err)
	}
}

// List returns the user's tickets in board order.
func (h *TicketsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	tickets, err := db.ListTickets(ctx, h.pool, userID)
	if err != nil {
		log.Printf("TicketsHandler: Failed to list tickets: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}

	if !WriteJSONResponse(w, tickets) {
		return
	}
}

// Move updates a ticket's column and position.
func (h *TicketsHandler) Move(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	ticketID := r.PathValue("id")
	if ticketID == "" {
		http.Error(w, "ticket id is required", http.StatusBadRequest)
		return
	}

	var req moveTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if req.Column == "" {
		http.Error(w, "column is required", http.StatusBadRequest)
		return
	}

	err := db.MoveTicket(ctx, h.pool, userID, ticketID, req.Column, req.Position)
	if errors.Is(err, db.ErrTicketNotFound) {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("TicketsHandler: Failed to move ticket %s: %v", ticketID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a ticket from the board.
func (h *TicketsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	ticketID := r.PathValue("id")
	if ticketID == "" {
		http.Error(w, "ticket id is required", http.StatusBadRequest)
		return
	}

	err := db.DeleteTicket(ctx, h.pool, userID, ticketID)
	if errors.Is(err, db.ErrTicketNotFound) {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("TicketsHandler: Failed to delete ticket %s: %v", ticketID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
