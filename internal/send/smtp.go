package send

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPSender delivers email through an SMTP relay (the SES SMTP endpoint in
// production). It assigns the Message-ID itself so the id is known even
// before the relay accepts the message.
type SMTPSender struct {
	addr     string
	username string
	password string
	from     string
}

// NewSMTPSender creates a sender for the given relay endpoint. from is the
// default envelope sender used when a request does not carry one.
func NewSMTPSender(addr, username, password, from string) *SMTPSender {
	return &SMTPSender{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
	}
}

// Send builds an RFC 5322 message and submits it to the relay.
func (s *SMTPSender) Send(_ context.Context, req *Request) (*Result, error) {
	from := req.From
	if from == "" {
		from = s.from
	}
	if from == "" {
		return nil, fmt.Errorf("no sender address configured")
	}
	if len(req.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(from))

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(req.To, ", "))
	if len(req.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(req.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", req.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	if req.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", req.InReplyTo)
		fmt.Fprintf(&b, "References: %s\r\n", req.InReplyTo)
	}
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(req.Body)
	b.WriteString("\r\n")

	// Bcc recipients go on the envelope only, never into the headers.
	recipients := make([]string, 0, len(req.To)+len(req.Cc)+len(req.Bcc))
	recipients = append(recipients, req.To...)
	recipients = append(recipients, req.Cc...)
	recipients = append(recipients, req.Bcc...)

	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	if err := smtp.SendMail(s.addr, auth, from, recipients, &b); err != nil {
		return nil, fmt.Errorf("failed to send via SMTP relay: %w", err)
	}

	return &Result{ProviderMessageID: messageID}, nil
}

func domainOf(address string) string {
	if _, domain, found := strings.Cut(address, "@"); found {
		return domain
	}
	return "beya.local"
}
