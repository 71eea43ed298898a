package models

import "time"

// Flow is a conversation between a user and one or more external participants.
// Exactly one flow exists per (user, flow key) pair; the key is computed once
// at creation and never recomputed.
type Flow struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	ContactIdentifier string    `json:"contact_identifier"`
	Participants      []string  `json:"participants"`
	FlowKey           string    `json:"flow_key"`
	Subject           string    `json:"subject"`
	NormalizedSubject string    `json:"normalized_subject"`
	MessageCount      int64     `json:"message_count"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	Messages          []Message `json:"messages,omitempty"`
}

// FlowsResponse is the paginated flow-list API payload.
type FlowsResponse struct {
	Flows      []*Flow        `json:"flows"`
	Pagination PaginationInfo `json:"pagination"`
}

// PaginationInfo describes the position of a page within a listing.
type PaginationInfo struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
}
