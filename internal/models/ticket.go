package models

import "time"

// Ticket columns on the Kanban board.
const (
	TicketColumnTodo       = "todo"
	TicketColumnInProgress = "in_progress"
	TicketColumnDone       = "done"
)

// Ticket is a Kanban task, optionally linked to a flow.
type Ticket struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	FlowID      string    `json:"flow_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Column      string    `json:"column"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
