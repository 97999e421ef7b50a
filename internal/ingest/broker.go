package ingest

import (
	"fmt"
	"strings"

	"github.com/streadway/amqp"
)

const defaultPrefetch = 16

// Subscription is an open AMQP channel consuming one durable queue.
type Subscription struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	Deliveries <-chan amqp.Delivery
}

// Subscribe dials the broker, declares queue as durable and starts a
// manual-ack consumer on it.
func Subscribe(url, queue, consumerTag string) (*Subscription, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ingest: amqp url is required")
	}
	if strings.TrimSpace(queue) == "" {
		return nil, fmt.Errorf("ingest: amqp queue is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ingest: dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ingest: open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ingest: declare queue %s: %w", queue, err)
	}
	if err := channel.Qos(defaultPrefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ingest: set prefetch: %w", err)
	}
	deliveries, err := channel.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ingest: consume %s: %w", queue, err)
	}
	return &Subscription{conn: conn, channel: channel, Deliveries: deliveries}, nil
}

// Close stops the consumer and releases the connection.
func (s *Subscription) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if s.channel != nil {
		_ = s.channel.Close()
	}
	return s.conn.Close()
}
