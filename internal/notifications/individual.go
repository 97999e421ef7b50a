package notifications

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queryOpenWindow      = "recipient_id = ? AND open_batch_key = ?"
	queryRecipientUnread = "recipient_id = ? AND read_at_s IS NULL"
	secondsPerDay        = int64(24 * time.Hour / time.Second)
)

// RecordLikeEvent records that an actor liked an entity owned by the recipient.
func (s *Service) RecordLikeEvent(ctx context.Context, event LikeEvent) (RecordOutcome, error) {
	if err := s.ready(opRecordEvent); err != nil {
		return RecordOutcome{}, err
	}
	if err := s.validateInput(opRecordEvent, event); err != nil {
		return RecordOutcome{}, err
	}
	notificationType, err := NotificationTypeFor(FamilyLike, event.EntityType)
	if err != nil {
		s.logError(opRecordEvent, reasonUnmappedEvent, err, zap.String(fieldRecipientID, event.RecipientID))
		return RecordOutcome{}, newServiceError(opRecordEvent, reasonUnmappedEvent, err)
	}
	return s.RecordEvent(ctx, Event{
		RecipientID: event.RecipientID,
		ActorID:     event.ActorID,
		Type:        notificationType,
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
		URL:         event.URL,
	})
}

// RecordCommentEvent records that an actor commented on an entity owned by the recipient.
func (s *Service) RecordCommentEvent(ctx context.Context, event CommentEvent) (RecordOutcome, error) {
	if err := s.ready(opRecordEvent); err != nil {
		return RecordOutcome{}, err
	}
	if err := s.validateInput(opRecordEvent, event); err != nil {
		return RecordOutcome{}, err
	}
	notificationType, err := NotificationTypeFor(FamilyComment, event.EntityType)
	if err != nil {
		s.logError(opRecordEvent, reasonUnmappedEvent, err, zap.String(fieldRecipientID, event.RecipientID))
		return RecordOutcome{}, newServiceError(opRecordEvent, reasonUnmappedEvent, err)
	}
	return s.RecordEvent(ctx, Event{
		RecipientID: event.RecipientID,
		ActorID:     event.ActorID,
		Type:        notificationType,
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
		URL:         event.URL,
	})
}

// RecordReplyEvent records a reply to the recipient's comment. Replies never
// batch; the record points at the comment and keeps the reply as its source.
func (s *Service) RecordReplyEvent(ctx context.Context, event ReplyEvent) (RecordOutcome, error) {
	if err := s.ready(opRecordEvent); err != nil {
		return RecordOutcome{}, err
	}
	if err := s.validateInput(opRecordEvent, event); err != nil {
		return RecordOutcome{}, err
	}
	return s.RecordEvent(ctx, Event{
		RecipientID: event.RecipientID,
		ActorID:     event.ActorID,
		Type:        TypeReplyComment,
		EntityType:  EntityTypeComment,
		EntityID:    event.CommentID,
		SourceID:    event.ReplyID,
		URL:         event.URL,
	})
}

// RecordEvent stores an event for its recipient, folding it into the open
// batching window for the same batch key when one exists.
func (s *Service) RecordEvent(ctx context.Context, event Event) (RecordOutcome, error) {
	if err := s.ready(opRecordEvent); err != nil {
		return RecordOutcome{}, err
	}
	if err := s.validateInput(opRecordEvent, event); err != nil {
		return RecordOutcome{}, err
	}
	if event.RecipientID == event.ActorID {
		return RecordOutcome{Skipped: true}, nil
	}

	batchKey, err := ResolveBatchKey(event.Type, event.EntityType, event.EntityID)
	if err != nil {
		s.logError(opRecordEvent, reasonUnmappedEvent, err, zap.String(fieldRecipientID, event.RecipientID))
		return RecordOutcome{}, newServiceError(opRecordEvent, reasonUnmappedEvent, err)
	}

	if !Batches(event.Type) {
		return s.insertUnbatched(ctx, event, batchKey)
	}

	window := s.BatchWindowFor(event.Type)
	var lastConflict error
	for attempt := 0; attempt < s.recordAttempts; attempt++ {
		outcome, err := s.foldOrInsert(ctx, event, batchKey, window)
		if err == nil {
			return outcome, nil
		}
		if errors.Is(err, errBatchConflict) || isTransactionAborted(err) {
			lastConflict = err
			continue
		}
		return RecordOutcome{}, s.recordFailure(err, event, batchKey)
	}

	s.logError(opRecordEvent, reasonBatchContention, lastConflict,
		zap.String(fieldRecipientID, event.RecipientID),
		zap.String(fieldBatchKey, batchKey))
	return RecordOutcome{}, newServiceError(opRecordEvent, reasonBatchContention, &StorageError{Err: lastConflict})
}

func (s *Service) recordFailure(err error, event Event, batchKey string) error {
	var configurationErr *ConfigurationError
	if errors.As(err, &configurationErr) {
		s.logError(opRecordEvent, reasonUnmappedEvent, err, zap.String(fieldRecipientID, event.RecipientID))
		return newServiceError(opRecordEvent, reasonUnmappedEvent, err)
	}
	var idErr *idGenerationError
	if errors.As(err, &idErr) {
		s.logError(opRecordEvent, reasonIDGenerationFailed, idErr.err, zap.String(fieldRecipientID, event.RecipientID))
		return newServiceError(opRecordEvent, reasonIDGenerationFailed, idErr.err)
	}
	return s.storageError(opRecordEvent, err,
		zap.String(fieldRecipientID, event.RecipientID),
		zap.String(fieldBatchKey, batchKey))
}

// foldOrInsert runs one attempt of the batching write. A concurrent writer
// that moved the window first surfaces as errBatchConflict; a writer that
// made the database abort the transaction surfaces as a deadlock or
// serialization error. RecordEvent retries both.
func (s *Service) foldOrInsert(ctx context.Context, event Event, batchKey string, window time.Duration) (RecordOutcome, error) {
	nowSeconds := s.nowSeconds()
	var outcome RecordOutcome

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open IndividualNotification
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(queryOpenWindow, event.RecipientID, batchKey).
			Take(&open).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		case open.ReadAtSeconds == nil && withinWindow(open.CreatedAtSeconds, nowSeconds, window):
			nextCount := open.BatchCount + 1
			singleActor := open.SingleActor && open.ActorID == event.ActorID
			message, err := ComposeMessage(event.Type, event.EntityType, nextCount, singleActor)
			if err != nil {
				return err
			}
			result := tx.Model(&IndividualNotification{}).
				Where("id = ? AND batch_count = ? AND read_at_s IS NULL", open.ID, open.BatchCount).
				Updates(map[string]any{
					"batch_count":       nextCount,
					"actor_id":          event.ActorID,
					"single_actor":      singleActor,
					"message":           message,
					"last_batched_at_s": nowSeconds,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errBatchConflict
			}
			outcome = RecordOutcome{NotificationID: open.ID, BatchCount: nextCount, Folded: true}
			return nil
		default:
			result := tx.Model(&IndividualNotification{}).
				Where("id = ? AND open_batch_key = ?", open.ID, batchKey).
				Update("open_batch_key", nil)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errBatchConflict
			}
		}

		record, err := s.newIndividualRecord(event, batchKey, nowSeconds)
		if err != nil {
			return err
		}
		openKey := batchKey
		record.OpenBatchKey = &openKey
		if err := tx.Create(&record).Error; err != nil {
			if isUniqueViolation(err) {
				return errBatchConflict
			}
			return err
		}
		outcome = RecordOutcome{NotificationID: record.ID, BatchCount: record.BatchCount}
		return nil
	})
	if err != nil {
		return RecordOutcome{}, err
	}
	return outcome, nil
}

func (s *Service) insertUnbatched(ctx context.Context, event Event, batchKey string) (RecordOutcome, error) {
	record, err := s.newIndividualRecord(event, batchKey, s.nowSeconds())
	if err != nil {
		return RecordOutcome{}, s.recordFailure(err, event, batchKey)
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return RecordOutcome{}, s.recordFailure(err, event, batchKey)
	}
	return RecordOutcome{NotificationID: record.ID, BatchCount: record.BatchCount}, nil
}

type idGenerationError struct {
	err error
}

func (e *idGenerationError) Error() string {
	return e.err.Error()
}

func (e *idGenerationError) Unwrap() error {
	return e.err
}

func (s *Service) newIndividualRecord(event Event, batchKey string, nowSeconds int64) (IndividualNotification, error) {
	message, err := ComposeMessage(event.Type, event.EntityType, 1, true)
	if err != nil {
		return IndividualNotification{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return IndividualNotification{}, &idGenerationError{err: err}
	}
	return IndividualNotification{
		ID:                   id,
		RecipientID:          event.RecipientID,
		ActorID:              event.ActorID,
		Type:                 event.Type,
		EntityType:           event.EntityType,
		EntityID:             event.EntityID,
		SourceID:             event.SourceID,
		BatchKey:             batchKey,
		Message:              message,
		URL:                  event.URL,
		BatchCount:           1,
		SingleActor:          true,
		LastBatchedAtSeconds: nowSeconds,
		CreatedAtSeconds:     nowSeconds,
	}, nil
}

// withinWindow compares whole seconds on both sides, matching the stored
// timestamps, so sub-second clock offsets never move an event across the
// boundary. The boundary itself is inclusive.
func withinWindow(createdAtSeconds, nowSeconds int64, window time.Duration) bool {
	return nowSeconds-createdAtSeconds <= int64(window/time.Second)
}

// MarkIndividualRead marks one of the viewer's notifications read. Ids that do
// not belong to the viewer are reported as not found.
func (s *Service) MarkIndividualRead(ctx context.Context, viewerID, notificationID string) error {
	if err := s.ready(opMarkIndividualRead); err != nil {
		return err
	}
	if err := s.requireViewer(opMarkIndividualRead, viewerID); err != nil {
		return err
	}

	db := s.primary(ctx)
	result := db.Model(&IndividualNotification{}).
		Where("id = ? AND recipient_id = ? AND read_at_s IS NULL", notificationID, viewerID).
		Updates(map[string]any{
			"read_at_s":      s.nowSeconds(),
			"open_batch_key": nil,
		})
	if result.Error != nil {
		return s.storageError(opMarkIndividualRead, result.Error,
			zap.String(fieldViewerID, viewerID),
			zap.String(fieldNotificationID, notificationID))
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var existing int64
	if err := db.Model(&IndividualNotification{}).
		Where("id = ? AND recipient_id = ?", notificationID, viewerID).
		Count(&existing).Error; err != nil {
		return s.storageError(opMarkIndividualRead, err,
			zap.String(fieldViewerID, viewerID),
			zap.String(fieldNotificationID, notificationID))
	}
	if existing == 0 {
		return newServiceError(opMarkIndividualRead, reasonNotificationMissing,
			&NotFoundError{Kind: "notification", ID: notificationID})
	}
	return nil
}

// MarkAllRead marks every unread individual notification of the viewer read and
// returns how many changed. Broadcasts are untouched.
func (s *Service) MarkAllRead(ctx context.Context, viewerID string) (int64, error) {
	if err := s.ready(opMarkAllRead); err != nil {
		return 0, err
	}
	if err := s.requireViewer(opMarkAllRead, viewerID); err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Model(&IndividualNotification{}).
		Where(queryRecipientUnread, viewerID).
		Updates(map[string]any{
			"read_at_s":      s.nowSeconds(),
			"open_batch_key": nil,
		})
	if result.Error != nil {
		return 0, s.storageError(opMarkAllRead, result.Error, zap.String(fieldViewerID, viewerID))
	}
	return result.RowsAffected, nil
}

// PurgeReadOlderThan deletes read individual notifications created more than
// days ago and returns the number removed.
func (s *Service) PurgeReadOlderThan(ctx context.Context, days int) (int64, error) {
	if err := s.ready(opPurgeReadOlderThan); err != nil {
		return 0, err
	}
	if days <= 0 {
		return 0, newServiceError(opPurgeReadOlderThan, reasonInvalidInput,
			&ValidationError{Err: errors.New("retention days must be positive")})
	}
	cutoff := s.nowSeconds() - int64(days)*secondsPerDay
	result := s.db.WithContext(ctx).
		Where("read_at_s IS NOT NULL AND created_at_s < ?", cutoff).
		Delete(&IndividualNotification{})
	if result.Error != nil {
		return 0, s.storageError(opPurgeReadOlderThan, result.Error, zap.Int("days", days))
	}
	if result.RowsAffected > 0 {
		s.loggerOrDefault().Info("purged read notifications",
			zap.Int64("deleted", result.RowsAffected),
			zap.Int("days", days))
	}
	return result.RowsAffected, nil
}
