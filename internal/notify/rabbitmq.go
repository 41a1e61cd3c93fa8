package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/pkg/apperrors"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyMailRequested = "mail.requested"
	publisherAppID          = "library-api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQDispatcher hands mail requests to the notifier worker through a topic exchange.
type RabbitMQDispatcher struct {
	openChannel  func() (publishChannel, error)
	exchangeName string
	now          func() time.Time
	logger       *slog.Logger
}

var _ Dispatcher = (*RabbitMQDispatcher)(nil)

func NewRabbitMQDispatcher(conn *amqp.Connection, exchangeName string, logger *slog.Logger) (*RabbitMQDispatcher, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection cannot be nil")
	}
	if exchangeName == "" {
		return nil, fmt.Errorf("RabbitMQ exchange name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for exchange declaration: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Ensured RabbitMQ exchange exists", "exchange", exchangeName, "type", amqp.ExchangeTopic)

	open := func() (publishChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	return newRabbitMQDispatcher(open, exchangeName, logger), nil
}

func newRabbitMQDispatcher(open func() (publishChannel, error), exchangeName string, logger *slog.Logger) *RabbitMQDispatcher {
	return &RabbitMQDispatcher{
		openChannel:  open,
		exchangeName: exchangeName,
		now:          time.Now,
		logger:       logger.With("component", "RabbitMQDispatcher", "exchange", exchangeName),
	}
}

func (d *RabbitMQDispatcher) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return d.fail(ctx, "Failed to generate mail request id", err)
	}
	req := MailRequest{
		ID:          id.String(),
		Recipients:  recipients,
		Subject:     subject,
		Body:        body,
		RequestedAt: d.now().UTC(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return d.fail(ctx, "Failed to marshal mail request", err)
	}

	ch, err := d.openChannel()
	if err != nil {
		return d.fail(ctx, "Failed to open RabbitMQ channel", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, d.exchangeName, RoutingKeyMailRequested, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.ID,
		Timestamp:    req.RequestedAt,
		Body:         payload,
		AppId:        publisherAppID,
	})
	if err != nil {
		return d.fail(ctx, "Failed to publish mail request", err)
	}

	d.logger.InfoContext(ctx, "Published mail request", slog.String("requestID", req.ID), slog.Int("recipients", len(recipients)))
	monitoring.RecordNotification(TransportRabbitMQ, "success")
	return nil
}

func (d *RabbitMQDispatcher) fail(ctx context.Context, msg string, err error) error {
	d.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	monitoring.RecordNotification(TransportRabbitMQ, "error")
	return apperrors.WrapTransportError(err, TransportRabbitMQ)
}
