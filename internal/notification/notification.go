package notification

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// KindEmailCode carries a one-time code to an email address.
	KindEmailCode = "otp_email"
	// KindSMSCode carries a one-time code to a phone number.
	KindSMSCode = "otp_sms"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
	// Secret is the part of Body a redacting channel must not reveal.
	Secret string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier stands in for the email/SMS channel by writing messages to
// the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
	redact bool
}

// NewLoggerNotifier constructs a logging notifier stub. With redact set the
// message secret is masked before logging.
func NewLoggerNotifier(logger *slog.Logger, redact bool) *LoggerNotifier {
	return &LoggerNotifier{logger: logger, redact: redact}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	channel := "mock_sms"
	if message.Kind == KindEmailCode {
		channel = "mock_email"
	}
	body := message.Body
	if n.redact && message.Secret != "" {
		body = strings.ReplaceAll(body, message.Secret, strings.Repeat("*", len(message.Secret)))
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("channel", channel),
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", body),
	)
	return nil
}

// Recorder keeps every message it is sent. Useful for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
