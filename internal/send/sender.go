// Package send defines the outbound delivery contract and the provider
// implementations behind it. The pipeline only depends on the Sender
// interface; delivery mechanics stay swappable.
package send

import "context"

// Result is what a provider reports back after accepting a message. The
// provider Message-ID (and thread id, when one exists) is attached to the
// stored message after the fact.
type Result struct {
	ProviderMessageID string
	ProviderThreadID  string
}

// Request carries everything a provider needs to deliver one message.
type Request struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string

	// InReplyTo is the parent Message-ID header for email replies, so
	// recipients' clients thread the reply correctly.
	InReplyTo string
}

// Sender delivers a message through one provider.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Result, error)
}
