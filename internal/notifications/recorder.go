package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// EventRecorder is the write side of the engine used by triggering collaborators.
type EventRecorder interface {
	RecordLikeEvent(ctx context.Context, event LikeEvent) (RecordOutcome, error)
	RecordCommentEvent(ctx context.Context, event CommentEvent) (RecordOutcome, error)
	RecordReplyEvent(ctx context.Context, event ReplyEvent) (RecordOutcome, error)
	CreateFollowerBroadcast(ctx context.Context, request FollowerBroadcast) (BroadcastNotification, error)
}

// BestEffortRecorder wraps an EventRecorder for business operations that must
// succeed regardless of notification health. Failures are logged at warn and
// reported only as a false return.
type BestEffortRecorder struct {
	recorder EventRecorder
	logger   *zap.Logger
}

func NewBestEffortRecorder(recorder EventRecorder, logger *zap.Logger) *BestEffortRecorder {
	if logger == nil {
		logger = noOpLogger
	}
	return &BestEffortRecorder{recorder: recorder, logger: logger}
}

func (r *BestEffortRecorder) Liked(ctx context.Context, event LikeEvent) bool {
	_, err := r.recorder.RecordLikeEvent(ctx, event)
	return r.settle("like", err, zap.String(fieldRecipientID, event.RecipientID), zap.String("entity_id", event.EntityID))
}

func (r *BestEffortRecorder) Commented(ctx context.Context, event CommentEvent) bool {
	_, err := r.recorder.RecordCommentEvent(ctx, event)
	return r.settle("comment", err, zap.String(fieldRecipientID, event.RecipientID), zap.String("entity_id", event.EntityID))
}

func (r *BestEffortRecorder) Replied(ctx context.Context, event ReplyEvent) bool {
	_, err := r.recorder.RecordReplyEvent(ctx, event)
	return r.settle("reply", err, zap.String(fieldRecipientID, event.RecipientID), zap.String("reply_id", event.ReplyID))
}

func (r *BestEffortRecorder) Published(ctx context.Context, request FollowerBroadcast) bool {
	_, err := r.recorder.CreateFollowerBroadcast(ctx, request)
	return r.settle("follower_broadcast", err, zap.String("author_id", request.AuthorID), zap.String("entity_id", request.EntityID))
}

func (r *BestEffortRecorder) settle(event string, err error, fields ...zap.Field) bool {
	if err == nil {
		return true
	}
	attrs := []zap.Field{zap.String("event", event), zap.Error(err)}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		attrs = append(attrs, zap.String("code", serviceErr.Code()))
	}
	attrs = append(attrs, fields...)
	r.logger.Warn("notification recording failed", attrs...)
	return false
}
