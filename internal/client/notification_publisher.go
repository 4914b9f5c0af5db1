// Package client holds outbound collaborators: the NATS notification
// publisher and its log-only fallback.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes approval workflow notifications to NATS
// for consumption by the platform notification service.
//
// Subject convention: notifications.fin.<severity>
//
// All publish operations are non-fatal. Errors are logged but never
// propagated, so notification failures never interrupt or roll back an
// approval decision.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	Recipient string    `json:"recipient"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	SentAt    time.Time `json:"sent_at"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// Notify publishes one notification event. Implements engine.NotificationSink.
func (p *NotificationPublisher) Notify(ctx context.Context, recipient, severity, message string) {
	if p.nc == nil || recipient == "" {
		return
	}

	event := &NotificationEvent{
		Recipient: recipient,
		Severity:  severity,
		Message:   message,
		Category:  "fin_approval",
		SentAt:    time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("recipient", recipient).Msg("notification: failed to marshal event")
		return
	}

	subject := "notifications.fin." + severity
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("recipient", recipient).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("recipient", recipient).
		Msg("notification: event published")
}

// LogNotifier is a NotificationSink that only writes to the service log.
// Used when no NATS URL is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-only notification sink.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the notification instead of delivering it.
func (n *LogNotifier) Notify(ctx context.Context, recipient, severity, message string) {
	n.log.Info().
		Str("recipient", recipient).
		Str("severity", severity).
		Str("message", message).
		Msg("notification (log-only delivery)")
}
