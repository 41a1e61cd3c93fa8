package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type DeliveryHandler func(ctx context.Context, d amqp.Delivery)

// Consumer reads mail requests from a durable queue bound to the library exchange.
type Consumer struct {
	channel     *amqp.Channel
	queueName   string
	consumerTag string
	handler     DeliveryHandler
	logger      *slog.Logger
	wg          sync.WaitGroup
	cancel      context.CancelFunc
}

func NewConsumer(conn *amqp.Connection, exchangeName, queueName, consumerTag string, handler DeliveryHandler, logger *slog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}

	logger.Info("Binding queue", "queue", q.Name, "exchange", exchangeName, "key", RoutingKeyMailRequested)
	if err := ch.QueueBind(q.Name, RoutingKeyMailRequested, exchangeName, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to bind queue '%s': %w", q.Name, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		channel:     ch,
		queueName:   q.Name,
		consumerTag: consumerTag,
		handler:     handler,
		logger:      logger.With("component", "Consumer", "queue", q.Name),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queueName, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(loopCtx, deliveries)
	}()
	return nil
}

// consume runs until loopCtx is done or deliveries closes. Handlers get a context
// that keeps loopCtx's values but not its cancellation, so Stop lets an in-flight send finish.
func (c *Consumer) consume(loopCtx context.Context, deliveries <-chan amqp.Delivery) {
	handlerCtx := context.WithoutCancel(loopCtx)
	c.logger.Info("Consuming mail requests")
	for {
		select {
		case <-loopCtx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			c.handler(handlerCtx, d)
		}
	}
}

// Stop cancels consumption and waits for the in-flight delivery to finish.
func (c *Consumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()

	if err := c.channel.Cancel(c.consumerTag, false); err != nil {
		c.logger.Warn("Failed to cancel consumer tag", "tag", c.consumerTag, "error", err)
	}
	c.wg.Wait()

	if err := c.channel.Close(); err != nil {
		c.logger.Error("Failed to close consumer channel", "error", err)
	}
}
