package models

import (
	"strings"
	"time"
)

// Channel identifies the transport a message travels over.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Direction tells whether a message was received or sent by the owning user.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Provider identifies which transport produced or sent a message.
type Provider string

const (
	ProviderSES      Provider = "ses"
	ProviderGmail    Provider = "gmail"
	ProviderWhatsApp Provider = "whatsapp"
)

// Headers is a case-insensitive header bag. Providers deliver headers with
// inconsistent casing ("Message-ID", "Message-Id", "message-id"), so keys are
// stored lowercased and all lookups go through Get.
type Headers map[string]string

// NewHeaders builds a Headers bag from a plain map, normalizing key casing.
func NewHeaders(raw map[string]string) Headers {
	h := make(Headers, len(raw))
	for k, v := range raw {
		h.Set(k, v)
	}
	return h
}

// Get returns the value for the given header name, ignoring case.
func (h Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(name)]
}

// Set stores a header value under the lowercased name.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Message is a single inbound or outbound communication. A message is created
// exactly once and never mutated afterward, except to attach the
// provider-returned Message-ID once a send completes.
type Message struct {
	ID               string    `json:"id"`
	FlowID           string    `json:"flow_id"`
	UserID           string    `json:"user_id"`
	Channel          Channel   `json:"channel"`
	Direction        Direction `json:"direction"`
	Provider         Provider  `json:"provider"`
	Subject          string    `json:"subject,omitempty"`
	BodyText         string    `json:"body_text"`
	BodyHTML         string    `json:"body_html,omitempty"`
	Headers          Headers   `json:"headers,omitempty"`
	FromAddress      string    `json:"from_address"`
	ToAddresses      []string  `json:"to_addresses"`
	CCAddresses      []string  `json:"cc_addresses,omitempty"`
	BCCAddresses     []string  `json:"bcc_addresses,omitempty"`
	MessageIDHeader  string    `json:"message_id_header,omitempty"`
	ProviderThreadID string    `json:"provider_thread_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Inbound is the normalized shape every provider adapter reduces a raw
// payload to before the threading core sees it.
type Inbound struct {
	Provider  Provider
	Channel   Channel
	Direction Direction

	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string

	BodyText string
	BodyHTML string
	Headers  Headers

	// ProviderMessageID is the provider-assigned identifier, used to derive a
	// stable internal message id so redelivery of the same payload is a no-op.
	ProviderMessageID string

	// ProviderThreadID is the provider-native conversation identifier
	// (e.g. a Gmail thread id), when the provider exposes one.
	ProviderThreadID string

	// ReplyToMessageID is set when the UI sends an explicit reply to a known
	// message. It is authoritative and short-circuits all heuristics.
	ReplyToMessageID string

	// ContactIdentifier is the external party this message is attributed to
	// (an email address or a WhatsApp phone number).
	ContactIdentifier string

	ReceivedAt time.Time
}
