package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/beyahq/inbox/internal/api"
	"github.com/beyahq/inbox/internal/auth"
	"github.com/beyahq/inbox/internal/config"
	"github.com/beyahq/inbox/internal/db"
	"github.com/beyahq/inbox/internal/dedup"
	"github.com/beyahq/inbox/internal/events"
	"github.com/beyahq/inbox/internal/inbox"
	"github.com/beyahq/inbox/internal/models"
	"github.com/beyahq/inbox/internal/send"
	ws "github.com/beyahq/inbox/internal/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	server := NewServer(ctx, cfg, pool)

	address := ":" + cfg.Port
	log.Printf("Beya Inbox server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer wires the pipeline and returns the HTTP handler for the Beya
// Inbox API.
func NewServer(ctx context.Context, cfg *config.Config, dbPool *pgxpool.Pool) http.Handler {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	publisher := events.NewPublisher(rdb, cfg.EventQueue)
	if err := publisher.Ping(ctx); err != nil {
		// Events and dedup degrade gracefully; the conditional insert still
		// guards against redelivery.
		log.Printf("Warning: Redis unreachable at %s: %v", cfg.RedisAddr, err)
	}

	wsHub := ws.NewHub(10)
	service := inbox.NewService(db.NewStore(dbPool), publisher, wsHub)

	if cfg.SMTPAddr != "" {
		service.RegisterSender(models.ChannelEmail,
			send.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	}
	if cfg.WhatsAppToken != "" {
		service.RegisterSender(models.ChannelWhatsApp,
			send.NewWhatsAppSender(cfg.WhatsAppAPIBase, cfg.WhatsAppPhoneID, cfg.WhatsAppToken))
	}

	filter := dedup.NewFilter(rdb)

	authHandler := api.NewAuthHandler(dbPool)
	webhookHandler := api.NewWebhookHandler(dbPool, service, filter, cfg.WhatsAppOwner)
	sendHandler := api.NewSendHandler(dbPool, service)
	flowsHandler := api.NewFlowsHandler(dbPool)
	ticketsHandler := api.NewTicketsHandler(dbPool)
	wsHandler := api.NewWebSocketHandler(dbPool, wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	// Provider push endpoints. Authenticated by provider signature at the
	// edge, not by user tokens.
	mux.HandleFunc("POST /webhooks/ses", webhookHandler.HandleSES)
	mux.HandleFunc("POST /webhooks/gmail", webhookHandler.HandleGmail)
	mux.HandleFunc("POST /webhooks/whatsapp", webhookHandler.HandleWhatsApp)

	mux.Handle("GET /api/v1/auth/status", auth.RequireAuth(http.HandlerFunc(authHandler.GetAuthStatus)))
	mux.Handle("POST /api/v1/send", auth.RequireAuth(http.HandlerFunc(sendHandler.Send)))
	mux.Handle("GET /api/v1/flows", auth.RequireAuth(http.HandlerFunc(flowsHandler.GetFlows)))
	mux.Handle("GET /api/v1/flow/{id}", auth.RequireAuth(http.HandlerFunc(flowsHandler.GetFlow)))

	mux.Handle("POST /api/v1/tickets", auth.RequireAuth(http.HandlerFunc(ticketsHandler.Create)))
	mux.Handle("GET /api/v1/tickets", auth.RequireAuth(http.HandlerFunc(ticketsHandler.List)))
	mux.Handle("PATCH /api/v1/tickets/{id}", auth.RequireAuth(http.HandlerFunc(ticketsHandler.Move)))
	mux.Handle("DELETE /api/v1/tickets/{id}", auth.RequireAuth(http.HandlerFunc(ticketsHandler.Delete)))

	// The WebSocket handler authenticates itself via query parameter, since
	// browsers can't set headers on WebSocket connections.
	mux.Handle("GET /api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Beya Inbox API is running")
}
