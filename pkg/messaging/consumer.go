package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

const defaultPrefetch = 32

type Handler func(context.Context, amqp091.Delivery)

// Consumer reads one durable queue bound to a fanout exchange. Deliveries
// nacked without requeue are routed to "<queue>.dead" through the
// "<queue>.dlx" exchange.
type Consumer struct {
	conn     *amqp091.Connection
	queue    string
	prefetch int
	logger   *slog.Logger
}

func NewRabbitConsumer(url, exchange, queue string, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareTopology(ch, exchange, queue); err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:     conn,
		queue:    queue,
		prefetch: defaultPrefetch,
		logger:   logger.With("queue", queue),
	}, nil
}

func declareTopology(ch *amqp091.Channel, exchange, queue string) error {
	dlx, dead := deadLetterNames(queue)

	if err := declareFanout(ch, dlx); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", dead, err)
	}
	if err := ch.QueueBind(dead, "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", dead, err)
	}

	if err := declareFanout(ch, exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, queueArgs(dlx)); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, "", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func deadLetterNames(queue string) (exchange, deadQueue string) {
	return queue + ".dlx", queue + ".dead"
}

func queueArgs(dlx string) amqp091.Table {
	return amqp091.Table{"x-dead-letter-exchange": dlx}
}

// Start blocks, handing deliveries to handler until ctx is cancelled or the
// broker closes the channel. handler must ack or nack every delivery.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}
	c.logger.Info("consuming status commands", "prefetch", c.prefetch)

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Info("consumer channel closed")
				return nil
			}
			handler(ctx, d)
		}
	}
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
