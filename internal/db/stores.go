package db

import (
	"context"
	"time"

	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/threading"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store adapts the package-level query functions to the store interfaces the
// threading core and the inbox service are built against, so both can be
// tested with in-memory doubles.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ threading.FlowStore = (*Store)(nil)
var _ threading.MessageStore = (*Store)(nil)

func (s *Store) CreateFlow(ctx context.Context, flow *models.Flow) error {
	return CreateFlow(ctx, s.pool, flow)
}

func (s *Store) GetFlowByKey(ctx context.Context, userID, flowKey string) (*models.Flow, error) {
	return GetFlowByKey(ctx, s.pool, userID, flowKey)
}

func (s *Store) TouchFlow(ctx context.Context, userID, flowID string, at time.Time) error {
	return TouchFlow(ctx, s.pool, userID, flowID, at)
}

func (s *Store) GetMessage(ctx context.Context, userID, messageID string) (*models.Message, error) {
	return GetMessage(ctx, s.pool, userID, messageID)
}

func (s *Store) FindByProviderThreadID(ctx context.Context, userID, providerThreadID string) (*models.Message, error) {
	return FindMessageByProviderThreadID(ctx, s.pool, userID, providerThreadID)
}

func (s *Store) FindByMessageIDHeader(ctx context.Context, userID string, candidates []string) (*models.Message, error) {
	return FindMessageByMessageIDHeader(ctx, s.pool, userID, candidates)
}

func (s *Store) ScanMessages(ctx context.Context, userID, pageToken string) ([]*models.Message, string, error) {
	return ScanMessages(ctx, s.pool, userID, pageToken)
}

func (s *Store) PutMessage(ctx context.Context, msg *models.Message) (bool, error) {
	return PutMessage(ctx, s.pool, msg)
}

func (s *Store) AttachProviderIDs(ctx context.Context, userID, messageID, messageIDHeader, providerThreadID string) error {
	return AttachProviderIDs(ctx, s.pool, userID, messageID, messageIDHeader, providerThreadID)
}
