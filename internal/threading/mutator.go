package threading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beyahq/inbox/internal/models"
	"github.com/google/uuid"
)

// Mutator performs flow creation and metadata updates on top of a FlowStore.
type Mutator struct {
	flows FlowStore
}

// NewMutator creates a Mutator backed by the given flow store.
func NewMutator(flows FlowStore) *Mutator {
	return &Mutator{flows: flows}
}

// CreateFlow inserts a new flow record with a fresh id. When the conditional
// insert fails because a concurrent caller created a flow for the same key
// first, the winner's flow is re-read and returned instead of an error, so
// creation is idempotent under the new-flow race.
func (m *Mutator) CreateFlow(ctx context.Context, userID, contactIdentifier string, participants []string, subject, normalizedSubject, flowKey string) (*models.Flow, error) {
	now := time.Now().UTC()
	flow := &models.Flow{
		ID:                uuid.New().String(),
		UserID:            userID,
		ContactIdentifier: contactIdentifier,
		Participants:      participants,
		FlowKey:           flowKey,
		Subject:           subject,
		NormalizedSubject: normalizedSubject,
		CreatedAt:         now,
		LastActivityAt:    now,
	}

	err := m.flows.CreateFlow(ctx, flow)
	if err == nil {
		return flow, nil
	}
	if !errors.Is(err, ErrFlowExists) {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	// Lost the race. Adopt the concurrent winner's flow.
	winner, err := m.flows.GetFlowByKey(ctx, userID, flowKey)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read flow after conflict: %w", err)
	}
	return winner, nil
}

// TouchFlow bumps the flow's message count and last-activity timestamp. The
// underlying store update is atomic (add-and-set), never read-modify-write.
func (m *Mutator) TouchFlow(ctx context.Context, userID, flowID string, at time.Time) error {
	if err := m.flows.TouchFlow(ctx, userID, flowID, at); err != nil {
		return fmt.Errorf("failed to touch flow: %w", err)
	}
	return nil
}
