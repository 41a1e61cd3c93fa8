// Package notify delivers customer notifications over a configurable transport.
package notify

import (
	"context"
	"log/slog"
	"time"

	"library-api/internal/infrastructure/monitoring"
)

const (
	TransportLog      = "log"
	TransportSMTP     = "smtp"
	TransportRabbitMQ = "rabbitmq"
)

// Dispatcher sends one message to every recipient. An empty recipient list is a no-op.
// Transport failures wrap apperrors.ErrTransport.
type Dispatcher interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// MailRequest is the broker payload exchanged between the API and the notifier worker.
type MailRequest struct {
	ID          string    `json:"id"`
	Recipients  []string  `json:"recipients"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requestedAt"`
}

// LogDispatcher only writes the notification to the log.
type LogDispatcher struct {
	logger *slog.Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("component", "LogDispatcher")}
}

func (d *LogDispatcher) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	d.logger.InfoContext(ctx, "Notification dispatched",
		slog.Any("recipients", recipients),
		slog.String("subject", subject),
		slog.Int("bodySize", len(body)),
	)
	monitoring.RecordNotification(TransportLog, "success")
	return nil
}
