package threading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/beyahq/inbox/internal/models"
)

// Resolver locates the flow a message belongs to, or creates one.
type Resolver struct {
	flows    FlowStore
	messages MessageStore
	mutator  *Mutator
}

// NewResolver creates a Resolver over the given stores.
func NewResolver(flows FlowStore, messages MessageStore) *Resolver {
	return &Resolver{
		flows:    flows,
		messages: messages,
		mutator:  NewMutator(flows),
	}
}

// ResolveFlow returns the id of the flow the message belongs to, creating a
// new flow when nothing matches. Strategies are tried in strict priority
// order, first match wins:
//
//  1. explicit reply-to message id (authoritative, UI-initiated replies)
//  2. provider-native thread identifier
//  3. In-Reply-To / References headers against stored Message-IDs
//  4. normalized participants+subject key
//
// Safe to call concurrently for the same logical new flow: the losing caller
// adopts the winner's flow id.
func (r *Resolver) ResolveFlow(ctx context.Context, userID string, in *models.Inbound) (string, error) {
	if in.ReplyToMessageID != "" {
		flowID, err := r.resolveExplicitReply(ctx, userID, in.ReplyToMessageID)
		if err != nil {
			return "", err
		}
		if flowID != "" {
			return flowID, nil
		}
	}

	if in.ProviderThreadID != "" {
		flowID, err := r.resolveByProviderThreadID(ctx, userID, in.ProviderThreadID)
		if err != nil {
			return "", err
		}
		if flowID != "" {
			return flowID, nil
		}
	}

	if parentID := parentMessageID(in.Headers); parentID != "" {
		flowID, err := r.resolveByReplyHeaders(ctx, userID, parentID)
		if err != nil {
			return "", err
		}
		if flowID != "" {
			return flowID, nil
		}
	}

	return r.resolveByParticipants(ctx, userID, in)
}

// resolveExplicitReply looks up the flow of a known original message. Returns
// "" when the message does not exist so the heuristic chain can still run.
func (r *Resolver) resolveExplicitReply(ctx context.Context, userID, messageID string) (string, error) {
	msg, err := r.messages.GetMessage(ctx, userID, messageID)
	if errors.Is(err, ErrMessageNotFound) {
		log.Printf("Resolver: explicit reply-to message %s not found for user %s, falling back to heuristics", messageID, userID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up reply-to message: %w", err)
	}
	return msg.FlowID, nil
}

func (r *Resolver) resolveByProviderThreadID(ctx context.Context, userID, providerThreadID string) (string, error) {
	msg, err := r.messages.FindByProviderThreadID(ctx, userID, providerThreadID)
	if errors.Is(err, ErrMessageNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to search by provider thread id: %w", err)
	}
	return msg.FlowID, nil
}

// resolveByReplyHeaders matches the candidate parent Message-ID against
// stored messages: first via the indexed lookup on the exact and
// bracket-wrapped forms, then via a paginated scan that also accepts
// provider-qualified variants.
func (r *Resolver) resolveByReplyHeaders(ctx context.Context, userID, parentID string) (string, error) {
	candidates := []string{parentID, "<" + parentID + ">"}

	msg, err := r.messages.FindByMessageIDHeader(ctx, userID, candidates)
	if err == nil {
		return msg.FlowID, nil
	}
	if !errors.Is(err, ErrMessageNotFound) {
		return "", fmt.Errorf("failed to search by message id header: %w", err)
	}

	// Degraded mode: page through the user's history looking for a
	// provider-qualified variant. A single match is sufficient to stop.
	pageToken := ""
	for {
		page, next, err := r.messages.ScanMessages(ctx, userID, pageToken)
		if err != nil {
			return "", fmt.Errorf("failed to scan messages: %w", err)
		}
		for _, stored := range page {
			if matchesMessageID(stored.MessageIDHeader, parentID) {
				return stored.FlowID, nil
			}
		}
		if next == "" {
			return "", nil
		}
		pageToken = next
	}
}

func (r *Resolver) resolveByParticipants(ctx context.Context, userID string, in *models.Inbound) (string, error) {
	participants := effectiveParticipants(in)
	normalizedSubject := NormalizeSubject(in.Subject)
	flowKey := BuildFlowKey(participants, normalizedSubject)

	flow, err := r.flows.GetFlowByKey(ctx, userID, flowKey)
	if err == nil {
		return flow.ID, nil
	}
	if !errors.Is(err, ErrFlowNotFound) {
		return "", fmt.Errorf("failed to search by flow key: %w", err)
	}

	created, err := r.mutator.CreateFlow(ctx, userID, in.ContactIdentifier, participants, strings.TrimSpace(in.Subject), normalizedSubject, flowKey)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// effectiveParticipants is the sender plus all visible recipients. Bcc is
// excluded: hidden recipients must not influence what counts as "the same
// conversation". When no participant data survived normalization, the single
// known contact identifier stands in for the whole set.
func effectiveParticipants(in *models.Inbound) []string {
	participants := make([]string, 0, 1+len(in.To)+len(in.Cc))
	if in.From != "" {
		participants = append(participants, in.From)
	}
	participants = append(participants, in.To...)
	participants = append(participants, in.Cc...)

	if len(participants) == 0 && in.ContactIdentifier != "" {
		participants = append(participants, in.ContactIdentifier)
	}
	return participants
}

// parentMessageID extracts the candidate parent Message-ID from reply
// headers. In-Reply-To wins; otherwise the last (direct-parent) token of
// References. Enclosing angle brackets are stripped.
func parentMessageID(headers models.Headers) string {
	if raw := strings.TrimSpace(headers.Get("In-Reply-To")); raw != "" {
		return strings.Trim(strings.Fields(raw)[0], "<>")
	}

	refs := strings.Fields(headers.Get("References"))
	if len(refs) == 0 {
		return ""
	}
	return strings.Trim(refs[len(refs)-1], "<>")
}

// matchesMessageID reports whether a stored Message-ID header refers to the
// wanted id, tolerating angle brackets and provider qualification (a raw id
// re-wrapped as the local part of "<id@provider-domain>").
func matchesMessageID(stored, want string) bool {
	stored = strings.Trim(strings.TrimSpace(stored), "<>")
	if stored == "" {
		return false
	}
	if stored == want {
		return true
	}
	if local, _, found := strings.Cut(stored, "@"); found && local == want {
		return true
	}
	return false
}
