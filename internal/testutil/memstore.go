package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/threading"
)

// MemStore is an in-memory implementation of the flow and message store
// contracts, for tests that exercise threading and pipeline behavior without
// a database. All operations take the same conditional/atomic semantics as
// the Postgres implementation.
type MemStore struct {
	mu       sync.Mutex
	flows    map[string]*models.Flow   // flow id -> flow
	flowKeys map[string]string         // user id + "/" + flow key -> flow id
	messages map[string]*models.Message // message id -> message
	order    []string                  // message ids in insert order, for scans

	// PageSize is the scan page size. Small by default so tests exercise
	// pagination.
	PageSize int
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		flows:    make(map[string]*models.Flow),
		flowKeys: make(map[string]string),
		messages: make(map[string]*models.Message),
		PageSize: 2,
	}
}

// CreateFlow inserts the flow unless a flow with the same id or the same
// (user id, flow key) already exists.
func (s *MemStore) CreateFlow(_ context.Context, flow *models.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := flow.UserID + "/" + flow.FlowKey
	if _, exists := s.flows[flow.ID]; exists {
		return threading.ErrFlowExists
	}
	if _, exists := s.flowKeys[key]; exists {
		return threading.ErrFlowExists
	}

	stored := *flow
	s.flows[flow.ID] = &stored
	s.flowKeys[key] = flow.ID
	return nil
}

// GetFlowByKey returns the flow stored under the given key.
func (s *MemStore) GetFlowByKey(_ context.Context, userID, flowKey string) (*models.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flowID, ok := s.flowKeys[userID+"/"+flowKey]
	if !ok {
		return nil, threading.ErrFlowNotFound
	}
	flow := *s.flows[flowID]
	return &flow, nil
}

// TouchFlow increments the message counter and advances the last-activity
// timestamp, mirroring the store's atomic add-and-set update.
func (s *MemStore) TouchFlow(_ context.Context, userID, flowID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[flowID]
	if !ok || flow.UserID != userID {
		return threading.ErrFlowNotFound
	}
	flow.MessageCount++
	if at.After(flow.LastActivityAt) {
		flow.LastActivityAt = at
	}
	return nil
}

// GetFlow returns a flow by id, for test assertions.
func (s *MemStore) GetFlow(flowID string) (*models.Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[flowID]
	if !ok {
		return nil, false
	}
	copied := *flow
	return &copied, true
}

// FlowCount returns the number of flows stored for a user.
func (s *MemStore) FlowCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, flow := range s.flows {
		if flow.UserID == userID {
			count++
		}
	}
	return count
}

// GetMessage returns a message by its internal id.
func (s *MemStore) GetMessage(_ context.Context, userID, messageID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.UserID != userID {
		return nil, threading.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// FindByProviderThreadID returns the first message carrying the provider
// thread id, in insert order.
func (s *MemStore) FindByProviderThreadID(_ context.Context, userID, providerThreadID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		msg := s.messages[id]
		if msg.UserID == userID && msg.ProviderThreadID == providerThreadID {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, threading.ErrMessageNotFound
}

// FindByMessageIDHeader returns the first message whose Message-ID header
// equals any candidate.
func (s *MemStore) FindByMessageIDHeader(_ context.Context, userID string, candidates []string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		msg := s.messages[id]
		if msg.UserID != userID {
			continue
		}
		for _, candidate := range candidates {
			if msg.MessageIDHeader == candidate {
				copied := *msg
				return &copied, nil
			}
		}
	}
	return nil, threading.ErrMessageNotFound
}

// ScanMessages pages through the user's messages in insert order.
func (s *MemStore) ScanMessages(_ context.Context, userID, pageToken string) ([]*models.Message, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if pageToken != "" {
		start, _ = strconv.Atoi(pageToken)
	}

	var page []*models.Message
	for i := start; i < len(s.order); i++ {
		msg := s.messages[s.order[i]]
		if msg.UserID == userID {
			copied := *msg
			page = append(page, &copied)
		}
		if len(page) == s.PageSize {
			next := ""
			if i+1 < len(s.order) {
				next = strconv.Itoa(i + 1)
			}
			return page, next, nil
		}
	}
	return page, "", nil
}

// PutMessage inserts the message only if its id is not already present.
// Returns false (and no error) when the message was already stored, making
// redelivery a no-op.
func (s *MemStore) PutMessage(_ context.Context, msg *models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return false, nil
	}
	stored := *msg
	s.messages[msg.ID] = &stored
	s.order = append(s.order, msg.ID)
	return true, nil
}

// AttachProviderIDs records the provider-returned Message-ID header and
// thread id on an already-stored message. The only mutation a message ever
// sees after creation.
func (s *MemStore) AttachProviderIDs(_ context.Context, userID, messageID, messageIDHeader, providerThreadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.UserID != userID {
		return threading.ErrMessageNotFound
	}
	if messageIDHeader != "" {
		msg.MessageIDHeader = messageIDHeader
		if msg.Headers == nil {
			msg.Headers = models.Headers{}
		}
		msg.Headers.Set("Message-ID", messageIDHeader)
	}
	if providerThreadID != "" {
		msg.ProviderThreadID = providerThreadID
	}
	return nil
}

// MessageCount returns the number of stored messages for a user.
func (s *MemStore) MessageCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msg := range s.messages {
		if msg.UserID == userID {
			count++
		}
	}
	return count
}
