package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/threading"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `
	id, flow_id, user_id, channel, direction, provider, subject,
	body_text, body_html, headers, from_address, to_addresses, cc_addresses,
	bcc_addresses, message_id_header, provider_thread_id, created_at`

// scanPageSize is the page size used by ScanMessages.
const scanPageSize = 100

// PutMessage conditionally inserts a message, guarded on the message id not
// already existing. Returns false (and no error) when the message was already
// stored, so at-least-once redelivery is a no-op rather than a duplicate.
func PutMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.Message) (bool, error) {
	tag, err := pool.Exec(ctx, `
		INSERT INTO messages (
			id, flow_id, user_id, channel, direction, provider, subject,
			body_text, body_html, headers, from_address, to_addresses, cc_addresses,
			bcc_addresses, message_id_header, provider_thread_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`,
		msg.ID,
		msg.FlowID,
		msg.UserID,
		msg.Channel,
		msg.Direction,
		msg.Provider,
		msg.Subject,
		msg.BodyText,
		msg.BodyHTML,
		msg.Headers,
		msg.FromAddress,
		msg.ToAddresses,
		msg.CCAddresses,
		msg.BCCAddresses,
		msg.MessageIDHeader,
		msg.ProviderThreadID,
		msg.CreatedAt,
	)

	if err != nil {
		return false, fmt.Errorf("failed to put message: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// GetMessage returns a message by its internal id, scoped to the user.
func GetMessage(ctx context.Context, pool *pgxpool.Pool, userID, messageID string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = $1 AND id = $2
	`, userID, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, threading.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// FindMessageByProviderThreadID returns any message carrying the given
// provider-native thread id. Served by the (user_id, provider_thread_id)
// index.
func FindMessageByProviderThreadID(ctx context.Context, pool *pgxpool.Pool, userID, providerThreadID string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = $1 AND provider_thread_id = $2
		LIMIT 1
	`, userID, providerThreadID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, threading.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by provider thread id: %w", err)
	}

	return msg, nil
}

// FindMessageByMessageIDHeader returns any message whose Message-ID header
// equals one of the candidates. Served by the (user_id, message_id_header)
// index.
func FindMessageByMessageIDHeader(ctx context.Context, pool *pgxpool.Pool, userID string, candidates []string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = $1 AND message_id_header = ANY($2)
		LIMIT 1
	`, userID, candidates)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, threading.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by message id header: %w", err)
	}

	return msg, nil
}

// ScanMessages pages through a user's message history with keyset pagination
// on the message id. The returned token is empty on the last page.
func ScanMessages(ctx context.Context, pool *pgxpool.Pool, userID, pageToken string) ([]*models.Message, string, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = $1 AND ($2 = '' OR id > $2::uuid)
		ORDER BY id
		LIMIT $3
	`, userID, pageToken, scanPageSize+1)

	if err != nil {
		return nil, "", fmt.Errorf("failed to scan messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating messages: %w", err)
	}

	nextToken := ""
	if len(messages) > scanPageSize {
		messages = messages[:scanPageSize]
		nextToken = messages[len(messages)-1].ID
	}

	return messages, nextToken, nil
}

// ListMessagesForFlow returns the flow's messages ordered by creation time,
// with the message id as tiebreaker for same-millisecond arrivals.
func ListMessagesForFlow(ctx context.Context, pool *pgxpool.Pool, userID, flowID string) ([]*models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = $1 AND flow_id = $2
		ORDER BY created_at, id
	`, userID, flowID)

	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// AttachProviderIDs records the provider-returned Message-ID header and
// thread id after a send completes. This is the only mutation a stored
// message ever receives.
func AttachProviderIDs(ctx context.Context, pool *pgxpool.Pool, userID, messageID, messageIDHeader, providerThreadID string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE messages
		SET message_id_header = CASE WHEN $3 <> '' THEN $3 ELSE message_id_header END,
		    headers = CASE WHEN $3 <> '' THEN headers || jsonb_build_object('message-id', $3::text) ELSE headers END,
		    provider_thread_id = CASE WHEN $4 <> '' THEN $4 ELSE provider_thread_id END
		WHERE user_id = $1 AND id = $2
	`, userID, messageID, messageIDHeader, providerThreadID)

	if err != nil {
		return fmt.Errorf("failed to attach provider ids: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return threading.ErrMessageNotFound
	}

	return nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.FlowID,
		&msg.UserID,
		&msg.Channel,
		&msg.Direction,
		&msg.Provider,
		&msg.Subject,
		&msg.BodyText,
		&msg.BodyHTML,
		&msg.Headers,
		&msg.FromAddress,
		&msg.ToAddresses,
		&msg.CCAddresses,
		&msg.BCCAddresses,
		&msg.MessageIDHeader,
		&msg.ProviderThreadID,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
