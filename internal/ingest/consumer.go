package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Event names carried in the "event" field of a queued message.
const (
	EventLike              = "like"
	EventComment           = "comment"
	EventReply             = "reply"
	EventFollowerBroadcast = "follower_broadcast"
)

var (
	errMissingRecorder = errors.New("ingest: recorder is required")
	errUnknownEvent    = errors.New("ingest: unknown event")
)

// ErrDeliveriesClosed reports that the broker closed the delivery channel,
// which streadway/amqp does when the connection or channel drops.
var ErrDeliveriesClosed = errors.New("ingest: amqp deliveries closed")

// Recorder is the best-effort write side of the notification engine.
type Recorder interface {
	Liked(ctx context.Context, event notifications.LikeEvent) bool
	Commented(ctx context.Context, event notifications.CommentEvent) bool
	Replied(ctx context.Context, event notifications.ReplyEvent) bool
	Published(ctx context.Context, request notifications.FollowerBroadcast) bool
}

// ConsumerConfig describes the dependencies of a Consumer.
type ConsumerConfig struct {
	Recorder Recorder
	Logger   *zap.Logger
}

// Consumer turns queued collaborator events into engine calls. Messages that
// cannot be decoded are rejected without requeue; everything else is acked
// once the recorder returns, whether or not recording succeeded.
type Consumer struct {
	recorder Recorder
	logger   *zap.Logger
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Recorder == nil {
		return nil, errMissingRecorder
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{recorder: cfg.Recorder, logger: logger}, nil
}

// Run handles deliveries until ctx is cancelled or the channel closes. A
// closed channel while ctx is still live returns ErrDeliveriesClosed so the
// caller can stop instead of serving without ingestion.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return ErrDeliveriesClosed
			}
			c.Handle(ctx, delivery)
		}
	}
}

// Handle processes a single delivery and settles it with the broker.
func (c *Consumer) Handle(ctx context.Context, delivery amqp.Delivery) {
	eventName, err := c.dispatch(ctx, delivery.Body)
	if err != nil {
		c.logger.Warn("notification event rejected",
			zap.Uint64("delivery_tag", delivery.DeliveryTag),
			zap.Error(err))
		if rejectErr := delivery.Reject(false); rejectErr != nil {
			c.logger.Error("failed to reject delivery", zap.Error(rejectErr))
		}
		return
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack delivery", zap.String("event", eventName), zap.Error(ackErr))
	}
}

type envelope struct {
	Event string `json:"event"`
}

func (c *Consumer) dispatch(ctx context.Context, body []byte) (string, error) {
	var header envelope
	if err := json.Unmarshal(body, &header); err != nil {
		return "", fmt.Errorf("ingest: decode envelope: %w", err)
	}
	eventName := strings.ToLower(strings.TrimSpace(header.Event))

	var recorded bool
	switch eventName {
	case EventLike:
		var event notifications.LikeEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return eventName, fmt.Errorf("ingest: decode %s: %w", eventName, err)
		}
		recorded = c.recorder.Liked(ctx, event)
	case EventComment:
		var event notifications.CommentEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return eventName, fmt.Errorf("ingest: decode %s: %w", eventName, err)
		}
		recorded = c.recorder.Commented(ctx, event)
	case EventReply:
		var event notifications.ReplyEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return eventName, fmt.Errorf("ingest: decode %s: %w", eventName, err)
		}
		recorded = c.recorder.Replied(ctx, event)
	case EventFollowerBroadcast:
		var request notifications.FollowerBroadcast
		if err := json.Unmarshal(body, &request); err != nil {
			return eventName, fmt.Errorf("ingest: decode %s: %w", eventName, err)
		}
		recorded = c.recorder.Published(ctx, request)
	default:
		return eventName, fmt.Errorf("%w %q", errUnknownEvent, header.Event)
	}

	c.logger.Debug("notification event consumed", zap.String("event", eventName), zap.Bool("recorded", recorded))
	return eventName, nil
}
