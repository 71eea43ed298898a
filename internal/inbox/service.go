// Package inbox wires the threading core to persistence, outbound delivery,
// and event publication. Each inbound webhook or outbound API call runs as
// one independent, stateless pass through the pipeline; all coordination
// happens through the store's conditional and atomic operations.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/beyahq/inbox/internal/events"
	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/send"
	"github.com/beyahq/inbox/internal/threading"
	"github.com/google/uuid"
)

// Store is everything the pipeline needs from persistence.
type Store interface {
	threading.FlowStore
	threading.MessageStore

	// PutMessage conditionally inserts a message, returning false when the
	// id was already stored.
	PutMessage(ctx context.Context, msg *models.Message) (bool, error)

	// AttachProviderIDs records provider-returned identifiers on a stored
	// message after a send completes.
	AttachProviderIDs(ctx context.Context, userID, messageID, messageIDHeader, providerThreadID string) error
}

// EventPublisher hands normalized events to the bus.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.Event) error
}

// Notifier pushes payloads to a user's connected clients.
type Notifier interface {
	Send(userID string, payload []byte)
}

// OutboundRequest is a user-initiated send.
type OutboundRequest struct {
	Channel          models.Channel `json:"channel"`
	To               []string       `json:"to"`
	Cc               []string       `json:"cc,omitempty"`
	Bcc              []string       `json:"bcc,omitempty"`
	Subject          string         `json:"subject,omitempty"`
	Body             string         `json:"body"`
	ReplyToMessageID string         `json:"reply_to_message_id,omitempty"`
}

// Service runs the message pipeline: resolve flow, persist, touch, publish.
type Service struct {
	store     Store
	resolver  *threading.Resolver
	mutator   *threading.Mutator
	publisher EventPublisher
	notifier  Notifier
	senders   map[models.Channel]send.Sender
}

// NewService creates the pipeline service. publisher and notifier may be nil
// in tests; both are best-effort consumers.
func NewService(store Store, publisher EventPublisher, notifier Notifier) *Service {
	return &Service{
		store:     store,
		resolver:  threading.NewResolver(store, store),
		mutator:   threading.NewMutator(store),
		publisher: publisher,
		notifier:  notifier,
		senders:   make(map[models.Channel]send.Sender),
	}
}

// RegisterSender installs the outbound sender for a channel.
func (s *Service) RegisterSender(channel models.Channel, sender send.Sender) {
	s.senders[channel] = sender
}

// ReceiveMessage runs one inbound message through the pipeline. Redelivery
// of an already-stored message is a no-op: nothing is touched or published a
// second time.
func (s *Service) ReceiveMessage(ctx context.Context, userID string, in *models.Inbound) (*models.Message, error) {
	flowID, err := s.resolver.ResolveFlow(ctx, userID, in)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve flow: %w", err)
	}

	msg := messageFromInbound(userID, flowID, in)

	inserted, err := s.store.PutMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if !inserted {
		log.Printf("Inbox: message %s already stored for user %s, skipping redelivery", msg.ID, userID)
		return msg, nil
	}

	if err := s.mutator.TouchFlow(ctx, userID, flowID, msg.CreatedAt); err != nil {
		return nil, err
	}

	s.emit(ctx, events.NewEvent(models.EventMessageReceived, msg))
	return msg, nil
}

// SendMessage delivers an outbound message and records it in its flow. When
// the request names the message being replied to, that id is authoritative
// for flow resolution. The provider-returned Message-ID is attached to the
// stored message once the send completes.
func (s *Service) SendMessage(ctx context.Context, userID, userAddress string, req *OutboundRequest) (*models.Message, error) {
	sender, ok := s.senders[req.Channel]
	if !ok {
		return nil, fmt.Errorf("no sender configured for channel %q", req.Channel)
	}
	if len(req.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	in := &models.Inbound{
		Channel:           req.Channel,
		Direction:         models.DirectionOutgoing,
		From:              userAddress,
		To:                req.To,
		Cc:                req.Cc,
		Bcc:               req.Bcc,
		Subject:           req.Subject,
		BodyText:          req.Body,
		Headers:           models.Headers{},
		ReplyToMessageID:  req.ReplyToMessageID,
		ContactIdentifier: req.To[0],
		ReceivedAt:        time.Now().UTC(),
	}
	switch req.Channel {
	case models.ChannelWhatsApp:
		in.Provider = models.ProviderWhatsApp
	default:
		in.Provider = models.ProviderSES
	}

	inReplyTo := ""
	if req.ReplyToMessageID != "" {
		parent, err := s.store.GetMessage(ctx, userID, req.ReplyToMessageID)
		if err == nil {
			inReplyTo = parent.MessageIDHeader
		}
	}

	flowID, err := s.resolver.ResolveFlow(ctx, userID, in)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve flow: %w", err)
	}

	msg := messageFromInbound(userID, flowID, in)

	inserted, err := s.store.PutMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	if !inserted {
		return nil, fmt.Errorf("duplicate outbound message id %s", msg.ID)
	}

	if err := s.mutator.TouchFlow(ctx, userID, flowID, msg.CreatedAt); err != nil {
		return nil, err
	}

	result, err := sender.Send(ctx, &send.Request{
		From:      userAddress,
		To:        req.To,
		Cc:        req.Cc,
		Bcc:       req.Bcc,
		Subject:   req.Subject,
		Body:      req.Body,
		InReplyTo: inReplyTo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if result.ProviderMessageID != "" || result.ProviderThreadID != "" {
		if err := s.store.AttachProviderIDs(ctx, userID, msg.ID, result.ProviderMessageID, result.ProviderThreadID); err != nil {
			log.Printf("Inbox: failed to attach provider ids to message %s: %v", msg.ID, err)
		} else {
			msg.MessageIDHeader = result.ProviderMessageID
			msg.ProviderThreadID = result.ProviderThreadID
		}
	}

	s.emit(ctx, events.NewEvent(models.EventMessageSent, msg))
	return msg, nil
}

// emit publishes the event and pushes it to connected clients. Both are
// best-effort: failures are logged and never fail the pipeline.
func (s *Service) emit(ctx context.Context, event *models.Event) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Printf("Inbox: failed to publish event %s: %v", event.ID, err)
		}
	}

	if s.notifier != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("Inbox: failed to marshal event %s: %v", event.ID, err)
			return
		}
		s.notifier.Send(event.UserID, payload)
	}
}

// messageFromInbound builds the immutable message record. The internal id is
// derived from the provider's message id when one exists, so redelivered
// payloads map to the same record.
func messageFromInbound(userID, flowID string, in *models.Inbound) *models.Message {
	createdAt := in.ReceivedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	headers := in.Headers
	if headers == nil {
		headers = models.Headers{}
	}

	return &models.Message{
		ID:               stableMessageID(in),
		FlowID:           flowID,
		UserID:           userID,
		Channel:          in.Channel,
		Direction:        in.Direction,
		Provider:         in.Provider,
		Subject:          in.Subject,
		BodyText:         in.BodyText,
		BodyHTML:         in.BodyHTML,
		Headers:          headers,
		FromAddress:      in.From,
		ToAddresses:      in.To,
		CCAddresses:      in.Cc,
		BCCAddresses:     in.Bcc,
		MessageIDHeader:  headers.Get("Message-ID"),
		ProviderThreadID: in.ProviderThreadID,
		CreatedAt:        createdAt,
	}
}

func stableMessageID(in *models.Inbound) string {
	if in.ProviderMessageID == "" {
		return uuid.New().String()
	}
	name := string(in.Provider) + ":" + in.ProviderMessageID
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
