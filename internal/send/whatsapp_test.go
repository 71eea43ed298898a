package send

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppSenderSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.sent-1"}]}`))
	}))
	defer server.Close()

	sender := NewWhatsAppSender(server.URL, "phone-1", "secret-token")
	result, err := sender.Send(context.Background(), &Request{
		To:   []string{"15551234567"},
		Body: "your order has shipped",
	})

	require.NoError(t, err)
	assert.Equal(t, "wamid.sent-1", result.ProviderMessageID)
	assert.Equal(t, "/phone-1/messages", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "15551234567", gotBody["to"])
}

func TestWhatsAppSenderSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	sender := NewWhatsAppSender(server.URL, "phone-1", "wrong")
	_, err := sender.Send(context.Background(), &Request{To: []string{"1555"}, Body: "hi"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestWhatsAppSenderRequiresRecipient(t *testing.T) {
	sender := NewWhatsAppSender("http://unused", "phone-1", "token")
	_, err := sender.Send(context.Background(), &Request{Body: "hi"})
	require.Error(t, err)
}
