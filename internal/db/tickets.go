package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/beyahq/inbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTicketNotFound is returned when a requested ticket cannot be found.
var ErrTicketNotFound = errors.New("ticket not found")

// CreateTicket inserts a new Kanban ticket.
func CreateTicket(ctx context.Context, pool *pgxpool.Pool, ticket *models.Ticket) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO tickets (user_id, flow_id, title, description, board_column, position)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`,
		ticket.UserID,
		ticket.FlowID,
		ticket.Title,
		ticket.Description,
		ticket.Column,
		ticket.Position,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	return nil
}

// ListTickets returns all tickets for a user, grouped by column order.
func ListTickets(ctx context.Context, pool *pgxpool.Pool, userID string) ([]*models.Ticket, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, user_id, COALESCE(flow_id::text, ''), title, description, board_column, position, created_at, updated_at
		FROM tickets
		WHERE user_id = $1
		ORDER BY board_column, position, created_at
	`, userID)

	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UserID,
			&ticket.FlowID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Column,
			&ticket.Position,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, &ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}

	return tickets, nil
}

// MoveTicket updates a ticket's column and position.
func MoveTicket(ctx context.Context, pool *pgxpool.Pool, userID, ticketID, column string, position int) error {
	tag, err := pool.Exec(ctx, `
		UPDATE tickets
		SET board_column = $3, position = $4, updated_at = now()
		WHERE user_id = $1 AND id = $2
	`, userID, ticketID, column, position)

	if err != nil {
		return fmt.Errorf("failed to move ticket: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}

	return nil
}

// DeleteTicket removes a ticket.
func DeleteTicket(ctx context.Context, pool *pgxpool.Pool, userID, ticketID string) error {
	tag, err := pool.Exec(ctx, `
		DELETE FROM tickets WHERE user_id = $1 AND id = $2
	`, userID, ticketID)

	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}

	return nil
}
