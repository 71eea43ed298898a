package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/beyahq/inbox/internal/db"
	"github.com/beyahq/inbox/internal/dedup"
	"github.com/beyahq/inbox/internal/inbox"
	"github.com/beyahq/inbox/internal/ingest"
	"github.com/beyahq/inbox/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxWebhookBody caps webhook payloads. SES notifications carry the full MIME
// content inline, so this is generous.
const maxWebhookBody = 25 << 20

// WebhookHandler receives provider push notifications and feeds them into the
// message pipeline. Providers deliver at least once and expect a 2xx ack;
// anything already processed or unroutable is acked and dropped, so providers
// never retry what we cannot use.
type WebhookHandler struct {
	pool    *pgxpool.Pool
	service *inbox.Service
	filter  *dedup.Filter

	// whatsappOwner is the email of the user owning the business WhatsApp
	// number. WhatsApp webhooks carry phone numbers, not emails, so routing
	// is per-deployment until multi-number support lands.
	whatsappOwner string
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(pool *pgxpool.Pool, service *inbox.Service, filter *dedup.Filter, whatsappOwner string) *WebhookHandler {
	return &WebhookHandler{
		pool:          pool,
		service:       service,
		filter:        filter,
		whatsappOwner: whatsappOwner,
	}
}

// HandleSES receives SNS-wrapped SES receipt notifications.
func (h *WebhookHandler) HandleSES(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	in, err := ingest.ParseSESNotification(body)
	if errors.Is(err, ingest.ErrIgnoredNotification) {
		// Subscription confirmations, bounces and other non-receipt types.
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		log.Printf("WebhookHandler: Failed to parse SES notification: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	h.ingestInbound(r.Context(), w, in)
}

// HandleGmail receives pushes from the Gmail relay.
func (h *WebhookHandler) HandleGmail(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	in, err := ingest.ParseGmailRelay(body)
	if err != nil {
		log.Printf("WebhookHandler: Failed to parse Gmail relay payload: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	h.ingestInbound(r.Context(), w, in)
}

// HandleWhatsApp receives WhatsApp Cloud API webhooks. One webhook can batch
// several messages; each runs through the pipeline independently.
func (h *WebhookHandler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	inbounds, err := ingest.ParseWhatsAppWebhook(body)
	if err != nil {
		log.Printf("WebhookHandler: Failed to parse WhatsApp webhook: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for _, in := range inbounds {
		if !h.passesDedup(ctx, in) {
			continue
		}

		if h.whatsappOwner == "" {
			log.Printf("WebhookHandler: No WhatsApp owner configured, dropping message %s", in.ProviderMessageID)
			continue
		}
		userID, err := db.GetOrCreateUser(ctx, h.pool, h.whatsappOwner)
		if err != nil {
			log.Printf("WebhookHandler: Failed to resolve WhatsApp owner: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if _, err := h.service.ReceiveMessage(ctx, userID, in); err != nil {
			log.Printf("WebhookHandler: Failed to ingest WhatsApp message %s: %v", in.ProviderMessageID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// ingestInbound routes an email inbound to its owning user and runs the
// pipeline. Messages for addresses we don't host are acked and dropped.
func (h *WebhookHandler) ingestInbound(ctx context.Context, w http.ResponseWriter, in *models.Inbound) {
	if !h.passesDedup(ctx, in) {
		w.WriteHeader(http.StatusOK)
		return
	}

	userID, ok := h.routeByRecipient(ctx, in)
	if !ok {
		log.Printf("WebhookHandler: No user owns recipients %v, dropping message %s", in.To, in.ProviderMessageID)
		w.WriteHeader(http.StatusOK)
		return
	}

	msg, err := h.service.ReceiveMessage(ctx, userID, in)
	if err != nil {
		log.Printf("WebhookHandler: Failed to ingest message %s: %v", in.ProviderMessageID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("WebhookHandler: Ingested message %s into flow %s", msg.ID, msg.FlowID)
	w.WriteHeader(http.StatusOK)
}

// routeByRecipient finds the user owning one of the inbound's recipient
// addresses.
func (h *WebhookHandler) routeByRecipient(ctx context.Context, in *models.Inbound) (string, bool) {
	for _, addr := range in.To {
		userID, err := db.GetUserByEmail(ctx, h.pool, addr)
		if err == nil {
			return userID, true
		}
		if !errors.Is(err, db.ErrUserNotFound) {
			log.Printf("WebhookHandler: Failed to look up recipient %s: %v", addr, err)
		}
	}
	return "", false
}

// passesDedup runs the fast-path redelivery filter. Fails open: when Redis is
// unavailable the conditional message insert still guarantees idempotency.
func (h *WebhookHandler) passesDedup(ctx context.Context, in *models.Inbound) bool {
	if h.filter == nil || in.ProviderMessageID == "" {
		return true
	}

	isNew, err := h.filter.IsNew(ctx, string(in.Provider)+":"+in.ProviderMessageID)
	if err != nil {
		log.Printf("WebhookHandler: Dedup filter unavailable: %v", err)
		return true
	}
	if !isNew {
		log.Printf("WebhookHandler: Dropping redelivered message %s", in.ProviderMessageID)
	}
	return isNew
}

func (h *WebhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Printf("WebhookHandler: Failed to read request body: %v", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}
