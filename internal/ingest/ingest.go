// Package ingest normalizes provider webhook payloads into the common
// inbound-message shape the threading core consumes. Each provider (SES,
// Gmail relay, WhatsApp Cloud) exposes different, unreliable identifiers;
// the adapters reduce them all to models.Inbound so the resolver stays
// provider-agnostic.
package ingest

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrIgnoredNotification marks payloads that are well-formed but carry no
// message to ingest (subscription handshakes, bounce notifications). Webhook
// handlers ack these instead of failing them.
var ErrIgnoredNotification = errors.New("notification ignored")

// splitAddressList parses a comma-separated RFC 5322 address list into bare
// addresses. Unparseable input degrades to naive comma splitting rather than
// failing the whole message.
func splitAddressList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parsed, err := mail.ParseAddressList(raw)
	if err != nil {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	out := make([]string, 0, len(parsed))
	for _, addr := range parsed {
		out = append(out, addr.Address)
	}
	return out
}

// bareAddress extracts the address part of a single mailbox string.
func bareAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if parsed, err := mail.ParseAddress(raw); err == nil {
		return parsed.Address
	}
	return raw
}
