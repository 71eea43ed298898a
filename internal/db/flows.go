package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/threading"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const flowColumns = `
	id, user_id, contact_identifier, participants, flow_key,
	subject, normalized_subject, message_count, created_at, last_activity_at`

// CreateFlow conditionally inserts a flow. The insert is guarded on both the
// flow id and the (user_id, flow_key) uniqueness constraint, so the caller
// that loses a concurrent creation race gets threading.ErrFlowExists and can
// adopt the winner's record.
func CreateFlow(ctx context.Context, pool *pgxpool.Pool, flow *models.Flow) error {
	tag, err := pool.Exec(ctx, `
		INSERT INTO flows (
			id, user_id, contact_identifier, participants, flow_key,
			subject, normalized_subject, message_count, created_at, last_activity_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		ON CONFLICT DO NOTHING
	`,
		flow.ID,
		flow.UserID,
		flow.ContactIdentifier,
		flow.Participants,
		flow.FlowKey,
		flow.Subject,
		flow.NormalizedSubject,
		flow.CreatedAt,
		flow.LastActivityAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create flow: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return threading.ErrFlowExists
	}

	return nil
}

// GetFlowByKey returns the first flow matching the given flow key. More than
// one row cannot exist because of the uniqueness constraint, but ordering by
// creation keeps the query deterministic regardless.
func GetFlowByKey(ctx context.Context, pool *pgxpool.Pool, userID, flowKey string) (*models.Flow, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+flowColumns+`
		FROM flows
		WHERE user_id = $1 AND flow_key = $2
		ORDER BY created_at
		LIMIT 1
	`, userID, flowKey)

	flow, err := scanFlow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, threading.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow by key: %w", err)
	}

	return flow, nil
}

// GetFlow returns a flow by id, scoped to the user.
func GetFlow(ctx context.Context, pool *pgxpool.Pool, userID, flowID string) (*models.Flow, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+flowColumns+`
		FROM flows
		WHERE user_id = $1 AND id = $2
	`, userID, flowID)

	flow, err := scanFlow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, threading.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	return flow, nil
}

// TouchFlow bumps the message counter and advances the last-activity
// timestamp in a single atomic update. GREATEST keeps the timestamp monotonic
// when concurrent producers touch out of order.
func TouchFlow(ctx context.Context, pool *pgxpool.Pool, userID, flowID string, at time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE flows
		SET message_count = message_count + 1,
		    last_activity_at = GREATEST(last_activity_at, $3)
		WHERE user_id = $1 AND id = $2
	`, userID, flowID, at)

	if err != nil {
		return fmt.Errorf("failed to touch flow: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return threading.ErrFlowNotFound
	}

	return nil
}

// ListFlows returns the user's flows ordered by most recent activity.
func ListFlows(ctx context.Context, pool *pgxpool.Pool, userID string, limit, offset int) ([]*models.Flow, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+flowColumns+`
		FROM flows
		WHERE user_id = $1
		ORDER BY last_activity_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []*models.Flow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetFlowCount returns the total number of flows for a user.
func GetFlowCount(ctx context.Context, pool *pgxpool.Pool, userID string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM flows WHERE user_id = $1
	`, userID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to get flow count: %w", err)
	}

	return count, nil
}

func scanFlow(row pgx.Row) (*models.Flow, error) {
	var flow models.Flow
	err := row.Scan(
		&flow.ID,
		&flow.UserID,
		&flow.ContactIdentifier,
		&flow.Participants,
		&flow.FlowKey,
		&flow.Subject,
		&flow.NormalizedSubject,
		&flow.MessageCount,
		&flow.CreatedAt,
		&flow.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	return &flow, nil
}
