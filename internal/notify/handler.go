package notify

import (
	"context"
	"log/slog"

	"library-api/internal/infrastructure/monitoring"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MailRequestHandler delivers consumed mail requests through a Dispatcher.
// A failed delivery is requeued once; a redelivered failure is dropped.
type MailRequestHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewMailRequestHandler(dispatcher Dispatcher, logger *slog.Logger) *MailRequestHandler {
	return &MailRequestHandler{
		dispatcher: dispatcher,
		logger:     logger.With("component", "MailRequestHandler"),
	}
}

func (h *MailRequestHandler) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	logCtx := h.logger.With(slog.Uint64("deliveryTag", d.DeliveryTag), slog.String("routingKey", d.RoutingKey))

	if d.RoutingKey != RoutingKeyMailRequested {
		logCtx.WarnContext(ctx, "Received message with unknown routing key. Discarding.")
		h.settle(ctx, logCtx, "rejected", d.Reject(false))
		return
	}

	var req MailRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		logCtx.ErrorContext(ctx, "Failed to unmarshal mail request", "error", err, "body", string(d.Body))
		h.settle(ctx, logCtx, "malformed", d.Nack(false, false))
		return
	}

	logCtx = logCtx.With(slog.String("requestID", req.ID))
	if err := h.dispatcher.Send(ctx, req.Recipients, req.Subject, req.Body); err != nil {
		if !d.Redelivered {
			logCtx.WarnContext(ctx, "Mail delivery failed, requeueing", "error", err)
			h.settle(ctx, logCtx, "requeued", d.Nack(false, true))
			return
		}
		logCtx.ErrorContext(ctx, "Mail delivery failed again, dropping request", "error", err)
		h.settle(ctx, logCtx, "failed", d.Nack(false, false))
		return
	}

	logCtx.InfoContext(ctx, "Mail request delivered", slog.Int("recipients", len(req.Recipients)))
	h.settle(ctx, logCtx, "delivered", d.Ack(false))
}

func (h *MailRequestHandler) settle(ctx context.Context, logCtx *slog.Logger, status string, err error) {
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to settle delivery", "status", status, "error", err)
	}
	monitoring.RecordNotifierMessage(status)
}
