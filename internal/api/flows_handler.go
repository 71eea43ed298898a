package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/beyahq/inbox/internal/db"
	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/threading"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FlowsHandler serves the conversation list and detail endpoints.
type FlowsHandler struct {
	pool *pgxpool.Pool
}

// NewFlowsHandler creates a FlowsHandler.
func NewFlowsHandler(pool *pgxpool.Pool) *FlowsHandler {
	return &FlowsHandler{pool: pool}
}

// GetFlows returns a paginated list of the user's flows, most recently
// active first.
func (h *FlowsHandler) GetFlows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	page, limit := ParsePaginationParams(r, 50)
	offset := (page - 1) * limit

	flows, err := db.ListFlows(ctx, h.pool, userID, limit, offset)
	if err != nil {
		log.Printf("FlowsHandler: Failed to list flows: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	totalCount, err := db.GetFlowCount(ctx, h.pool, userID)
	if err != nil {
		log.Printf("FlowsHandler: Failed to get flow count: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := &models.FlowsResponse{
		Flows: flows,
		Pagination: models.PaginationInfo{
			TotalCount: totalCount,
			Page:       page,
			PerPage:    limit,
		},
	}

	if !WriteJSONResponse(w, response) {
		return
	}
}

// GetFlow returns one flow with its messages in timeline order.
func (h *FlowsHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	flowID := r.PathValue("id")
	if flowID == "" {
		http.Error(w, "flow id is required", http.StatusBadRequest)
		return
	}

	flow, err := db.GetFlow(ctx, h.pool, userID, flowID)
	if errors.Is(err, threading.ErrFlowNotFound) {
		http.Error(w, "Flow not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("FlowsHandler: Failed to get flow %s: %v", flowID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	messages, err := db.ListMessagesForFlow(ctx, h.pool, userID, flowID)
	if err != nil {
		log.Printf("FlowsHandler: Failed to list messages for flow %s: %v", flowID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	flow.Messages = make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg != nil {
			flow.Messages = append(flow.Messages, *msg)
		}
	}

	if !WriteJSONResponse(w, flow) {
		return
	}
}
