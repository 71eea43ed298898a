package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beyahq/inbox/internal/auth"
	"github.com/beyahq/inbox/internal/db"
	"github.com/beyahq/inbox/internal/inbox"
	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ownerEmail = "owner@shop.com"

func buildSESWebhookBody(t *testing.T, providerMessageID, rawMIME string) []byte {
	t.Helper()

	message, err := json.Marshal(map[string]interface{}{
		"notificationType": "Received",
		"mail": map[string]interface{}{
			"messageId":   providerMessageID,
			"source":      "jane@example.com",
			"destination": []string{ownerEmail},
			"timestamp":   "2026-08-05T10:30:00Z",
		},
		"content": base64.StdEncoding.EncodeToString([]byte(rawMIME)),
	})
	if err != nil {
		t.Fatalf("Failed to marshal notification: %v", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"Type":      "Notification",
		"MessageId": "sns-" + providerMessageID,
		"Message":   string(message),
	})
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	return body
}

func newTestHandlers(t *testing.T) (*pgxpool.Pool, *WebhookHandler, *FlowsHandler) {
	t.Helper()

	pool := testutil.NewTestDB(t)
	service := inbox.NewService(db.NewStore(pool), nil, nil)
	return pool, NewWebhookHandler(pool, service, nil, ownerEmail), NewFlowsHandler(pool)
}

func postWebhook(t *testing.T, handler http.HandlerFunc, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/webhooks/ses", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func authedRequest(method, target string) *http.Request {
	return authedRequestBody(method, target, "")
}

func authedRequestBody(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), auth.UserEmailKey, ownerEmail)
	return req.WithContext(ctx)
}

func TestWebhookSESIngestsAndThreads(t *testing.T) {
	pool, webhooks, flows := newTestHandlers(t)

	if _, err := db.GetOrCreateUser(context.Background(), pool, ownerEmail); err != nil {
		t.Fatalf("Failed to create owner: %v", err)
	}

	original := "From: jane@example.com\r\n" +
		"To: " + ownerEmail + "\r\n" +
		"Subject: order question\r\n" +
		"Message-ID: <orig@mail.example.com>\r\n" +
		"\r\n" +
		"Is my order on the way?\r\n"
	rr := postWebhook(t, webhooks.HandleSES, buildSESWebhookBody(t, "ses-msg-1", original))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	reply := "From: jane@example.com\r\n" +
		"To: " + ownerEmail + "\r\n" +
		"Subject: Re: order question\r\n" +
		"Message-ID: <reply@mail.example.com>\r\n" +
		"In-Reply-To: <orig@mail.example.com>\r\n" +
		"\r\n" +
		"Just checking in again.\r\n"
	rr = postWebhook(t, webhooks.HandleSES, buildSESWebhookBody(t, "ses-msg-2", reply))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Redelivery of the first notification must not create anything new.
	rr = postWebhook(t, webhooks.HandleSES, buildSESWebhookBody(t, "ses-msg-1", original))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on redelivery, got %d", rr.Code)
	}

	listRR := httptest.NewRecorder()
	flows.GetFlows(listRR, authedRequest("GET", "/api/v1/flows"))
	if listRR.Code != http.StatusOK {
		t.Fatalf("Expected status 200 listing flows, got %d", listRR.Code)
	}

	var listing models.FlowsResponse
	if err := json.Unmarshal(listRR.Body.Bytes(), &listing); err != nil {
		t.Fatalf("Failed to decode flows response: %v", err)
	}
	if len(listing.Flows) != 1 {
		t.Fatalf("Expected 1 flow, got %d", len(listing.Flows))
	}
	if listing.Flows[0].MessageCount != 2 {
		t.Errorf("Expected message count 2, got %d", listing.Flows[0].MessageCount)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/flow/{id}", flows.GetFlow)

	detailRR := httptest.NewRecorder()
	mux.ServeHTTP(detailRR, authedRequest("GET", "/api/v1/flow/"+listing.Flows[0].ID))
	if detailRR.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for flow detail, got %d", detailRR.Code)
	}

	var flow models.Flow
	if err := json.Unmarshal(detailRR.Body.Bytes(), &flow); err != nil {
		t.Fatalf("Failed to decode flow response: %v", err)
	}
	if len(flow.Messages) != 2 {
		t.Fatalf("Expected 2 messages in flow, got %d", len(flow.Messages))
	}
	if flow.Messages[0].Subject != "order question" {
		t.Errorf("Expected oldest message first, got subject %q", flow.Messages[0].Subject)
	}
}

func TestWebhookSESUnknownRecipientIsAcked(t *testing.T) {
	_, webhooks, _ := newTestHandlers(t)

	raw := "From: jane@example.com\r\n" +
		"To: nobody@elsewhere.example\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"anyone there?\r\n"
	rr := postWebhook(t, webhooks.HandleSES, buildSESWebhookBody(t, "ses-stray-1", raw))

	// Unroutable mail is acked so the provider stops retrying.
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestWebhookSESRejectsMalformedPayload(t *testing.T) {
	_, webhooks, _ := newTestHandlers(t)

	rr := postWebhook(t, webhooks.HandleSES, []byte("{not json"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}
