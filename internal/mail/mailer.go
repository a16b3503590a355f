// Package mail delivers transactional email for the notice board backend.
//
// The only message today is the password reset link. Delivery failures
// are reported as ErrDeliveryFailed so callers can distinguish a mail
// outage from a store error: the reset ticket is already persisted when
// the send runs, so the caller may surface the failure without rolling
// the ticket back.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/shivsys/noticeboard/internal/infrastructure/config"
	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
)

// ErrDeliveryFailed wraps any transport-level send failure.
var ErrDeliveryFailed = errors.New("email delivery failed")

// Sender delivers a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender implements Sender over SMTP with STARTTLS.
//
// The whole exchange (dial, handshake, send) is bounded by the configured
// timeout and by ctx, whichever is sooner. A slow or dead relay therefore
// cannot stall the calling request indefinitely.
type SMTPSender struct {
	cfg    config.MailConfig
	logger *logging.Logger
}

// NewSMTPSender creates an SMTP sender from mail configuration.
func NewSMTPSender(cfg config.MailConfig, logger *logging.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.With("component", "mail"),
	}
}

// Send delivers one message. All transport errors are wrapped in
// ErrDeliveryFailed.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	timeout := time.Duration(s.cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ErrDeliveryFailed, addr, err)
	}
	defer conn.Close()

	// One deadline covers the entire SMTP conversation.
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: setting deadline: %w", ErrDeliveryFailed, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("%w: smtp handshake: %w", ErrDeliveryFailed, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("%w: starttls: %w", ErrDeliveryFailed, err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: smtp auth: %w", ErrDeliveryFailed, err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("%w: mail from: %w", ErrDeliveryFailed, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%w: rcpt to: %w", ErrDeliveryFailed, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %w", ErrDeliveryFailed, err)
	}
	if _, err := w.Write(buildMessage(s.cfg.From, to, subject, htmlBody)); err != nil {
		return fmt.Errorf("%w: writing body: %w", ErrDeliveryFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: closing body: %w", ErrDeliveryFailed, err)
	}

	if err := client.Quit(); err != nil {
		// Message already accepted; log and move on.
		s.logger.Debug("smtp quit failed", "error", err)
	}

	s.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// buildMessage assembles RFC 5322 headers plus the HTML body.
func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ResetMessage builds the password reset email body.
// The link embeds the raw reset secret; it is never logged or stored.
func ResetMessage(name, resetURL string) (subject, htmlBody string) {
	subject = "Password Reset Request"
	htmlBody = fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>We received a request to reset the password for your account.
Click the link below to choose a new password. The link is valid for one hour
and can be used once.</p>
<p><a href=%q>Reset your password</a></p>
<p>If you did not request a reset, you can safely ignore this email.</p>
</body></html>`, html.EscapeString(name), resetURL)
	return subject, htmlBody
}

// LogSender is a Sender used when SMTP is disabled (development, tests).
// It records that a send would have happened without the message content.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "mail")}
}

// Send logs the delivery attempt and succeeds.
func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info("mail disabled, skipping send", "to", to, "subject", subject)
	return nil
}
