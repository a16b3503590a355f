package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shivsys/noticeboard/internal/infrastructure/config"
	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
)

func TestResetMessage(t *testing.T) {
	subject, body := ResetMessage("John Smith", "http://localhost:3000/reset-password/abc123")

	if subject != "Password Reset Request" {
		t.Errorf("subject = %q, want Password Reset Request", subject)
	}
	if !strings.Contains(body, "Hi John Smith,") {
		t.Errorf("body should greet the user by name: %s", body)
	}
	if !strings.Contains(body, `"http://localhost:3000/reset-password/abc123"`) {
		t.Errorf("body should embed the quoted reset link: %s", body)
	}
	if !strings.Contains(body, "one hour") {
		t.Errorf("body should state the link validity window: %s", body)
	}
}

func TestResetMessage_EscapesName(t *testing.T) {
	_, body := ResetMessage(`<script>alert("x")</script>`, "http://localhost:3000/reset-password/abc")

	if strings.Contains(body, "<script>") {
		t.Errorf("name must be HTML-escaped: %s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("escaped name should appear in body: %s", body)
	}
}

func TestBuildMessage_Headers(t *testing.T) {
	msg := string(buildMessage("board@example.com", "jsmith@example.com", "Hello", "<p>hi</p>"))

	for _, want := range []string{
		"From: board@example.com\r\n",
		"To: jsmith@example.com\r\n",
		"Subject: Hello\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing header %q", want)
		}
	}

	// Headers and body are separated by a blank line.
	if !strings.Contains(msg, "\r\n\r\n<p>hi</p>\r\n") {
		t.Errorf("body should follow the blank line: %q", msg)
	}
}

func TestSMTPSender_DialFailure(t *testing.T) {
	// Nothing listens on this port; the dial must fail fast and wrap
	// the transport error.
	sender := NewSMTPSender(config.MailConfig{
		Host:    "127.0.0.1",
		Port:    1, // reserved, nothing listens here
		From:    "board@example.com",
		Timeout: 1,
	}, logging.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sender.Send(ctx, "jsmith@example.com", "Hello", "<p>hi</p>")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("Send() error = %v, want ErrDeliveryFailed", err)
	}
}

func TestLogSender_AlwaysSucceeds(t *testing.T) {
	sender := NewLogSender(logging.Default())

	if err := sender.Send(context.Background(), "jsmith@example.com", "Hello", "<p>hi</p>"); err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
}
