// Package threading decides which flow a message belongs to.
//
// Given a message with incomplete or inconsistent metadata, the Resolver tries
// a strict priority chain of identification strategies (provider thread id,
// reply headers, normalized participants+subject) and falls back to creating a
// new flow. Creation is idempotent under concurrent calls: the conditional
// insert plus re-read in the Mutator guarantees at most one flow per
// (user, flow key) pair.
package threading

import (
	"context"
	"errors"
	"time"

	"github.com/beyahq/inbox/internal/models"
)

// ErrFlowNotFound is returned when no flow matches a lookup.
var ErrFlowNotFound = errors.New("flow not found")

// ErrFlowExists is returned by a conditional flow insert that lost to a
// concurrent writer.
var ErrFlowExists = errors.New("flow already exists")

// ErrMessageNotFound is returned when no stored message matches a lookup.
var ErrMessageNotFound = errors.New("message not found")

// FlowStore is the slice of the persistence layer the threading core needs
// for flow records. Implementations must scope every operation to the given
// user id.
type FlowStore interface {
	// CreateFlow inserts the flow only if no flow with the same id or the
	// same (user id, flow key) exists. Returns ErrFlowExists on conflict.
	CreateFlow(ctx context.Context, flow *models.Flow) error

	// GetFlowByKey returns the first flow matching the flow key, or
	// ErrFlowNotFound.
	GetFlowByKey(ctx context.Context, userID, flowKey string) (*models.Flow, error)

	// TouchFlow atomically increments the flow's message count and advances
	// its last-activity timestamp to at (if later than the stored value).
	TouchFlow(ctx context.Context, userID, flowID string, at time.Time) error
}

// MessageStore is the slice of the persistence layer the threading core needs
// for message records.
type MessageStore interface {
	// GetMessage returns the message with the given internal id, or
	// ErrMessageNotFound.
	GetMessage(ctx context.Context, userID, messageID string) (*models.Message, error)

	// FindByProviderThreadID returns any stored message carrying the given
	// provider-native thread identifier, or ErrMessageNotFound. Backed by a
	// secondary index on (user id, provider thread id).
	FindByProviderThreadID(ctx context.Context, userID, providerThreadID string) (*models.Message, error)

	// FindByMessageIDHeader returns any stored message whose Message-ID
	// header equals one of the candidate values, or ErrMessageNotFound.
	// Backed by a secondary index on (user id, message id header).
	FindByMessageIDHeader(ctx context.Context, userID string, candidates []string) (*models.Message, error)

	// ScanMessages pages through the user's message history. A non-empty
	// returned token means more pages follow. Degraded-mode path for lookups
	// the indexes cannot answer.
	ScanMessages(ctx context.Context, userID, pageToken string) ([]*models.Message, string, error)
}
