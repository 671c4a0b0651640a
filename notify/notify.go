/*
Package notify implements the receipt-email collaborator (spec §6.3:
"SMTP relay for receipt email ... best-effort, non-transactional").

No library in the retrieved pack talks SMTP (grounded search turned up
decimal, HTTP, cloud SDK, and DB clients, but nothing email-shaped), so
this package is built on the standard library's net/smtp — the one
ambient concern in this core without a pack-grounded third-party
replacement, recorded in DESIGN.md.
*/
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

// Receipt is the content of a payment-receipt email.
type Receipt struct {
	To      string
	CC      string
	Subject string
	HTML    string
}

// Sink is the narrow surface the billing core depends on for outbound
// notification; best-effort by contract (spec §6.3) — a Sink failure
// is logged, never returned to the caller that triggered it.
type Sink interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

// SMTPSink sends receipts over a configured SMTP relay.
type SMTPSink struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
}

func NewSMTPSink(host string, port int, from string, auth smtp.Auth) *SMTPSink {
	return &SMTPSink{Host: host, Port: port, From: from, Auth: auth}
}

func (s *SMTPSink) SendReceipt(_ context.Context, r Receipt) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", r.To)
	if r.CC != "" {
		fmt.Fprintf(&msg, "Cc: %s\r\n", r.CC)
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", r.Subject)
	msg.WriteString("MIME-version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(r.HTML)

	return smtp.SendMail(addr, s.Auth, s.From, []string{r.To}, msg.Bytes())
}

// BestEffortSink wraps a Sink so a send failure is logged and swallowed
// rather than propagated, matching spec §6.3's "best-effort,
// non-transactional" contract.
type BestEffortSink struct {
	Sink   Sink
	Logger zerolog.Logger
}

func (b *BestEffortSink) SendReceipt(ctx context.Context, r Receipt) {
	if b.Sink == nil {
		return
	}
	if err := b.Sink.SendReceipt(ctx, r); err != nil {
		b.Logger.Warn().Err(err).Str("to", r.To).Msg("receipt email failed")
	}
}
