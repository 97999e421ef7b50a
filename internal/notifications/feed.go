package notifications

import (
	"context"

	"go.uber.org/zap"
)

// ListNotifications returns the viewer's individual notifications, newest
// first and capped at the feed limit, together with every relevant broadcast.
func (s *Service) ListNotifications(ctx context.Context, viewerID string) (Feed, error) {
	if err := s.ready(opListNotifications); err != nil {
		return Feed{}, err
	}
	if err := s.requireViewer(opListNotifications, viewerID); err != nil {
		return Feed{}, err
	}

	var records []IndividualNotification
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", viewerID).
		Order("created_at_s DESC").
		Order("id DESC").
		Limit(s.feedLimit).
		Find(&records).Error; err != nil {
		return Feed{}, s.storageError(opListNotifications, err, zap.String(fieldViewerID, viewerID))
	}

	broadcasts, err := s.relevantBroadcasts(ctx, s.db.WithContext(ctx), opListNotifications, viewerID)
	if err != nil {
		return Feed{}, err
	}

	individual := make([]IndividualItem, 0, len(records))
	for _, record := range records {
		individual = append(individual, toIndividualItem(record))
	}
	return Feed{Individual: individual, Broadcast: broadcasts}, nil
}

// UnreadCount returns unread individual notifications plus unread relevant
// broadcasts. It always reads the primary so a count taken right after a
// mark-read reflects it.
func (s *Service) UnreadCount(ctx context.Context, viewerID string) (int64, error) {
	if err := s.ready(opUnreadCount); err != nil {
		return 0, err
	}
	if err := s.requireViewer(opUnreadCount, viewerID); err != nil {
		return 0, err
	}

	db := s.primary(ctx)
	var individual int64
	if err := db.Model(&IndividualNotification{}).
		Where(queryRecipientUnread, viewerID).
		Count(&individual).Error; err != nil {
		return 0, s.storageError(opUnreadCount, err, zap.String(fieldViewerID, viewerID))
	}

	broadcasts, err := s.relevantBroadcasts(ctx, db, opUnreadCount, viewerID)
	if err != nil {
		return 0, err
	}
	unread := individual
	for _, broadcast := range broadcasts {
		if !broadcast.IsRead {
			unread++
		}
	}
	return unread, nil
}

func toIndividualItem(record IndividualNotification) IndividualItem {
	return IndividualItem{
		ID:            record.ID,
		Type:          record.Type,
		EntityType:    record.EntityType,
		EntityID:      record.EntityID,
		SourceID:      record.SourceID,
		ActorID:       record.ActorID,
		Message:       record.Message,
		URL:           record.URL,
		BatchCount:    record.BatchCount,
		IsRead:        record.ReadAtSeconds != nil,
		ReadAt:        optionalUnixSeconds(record.ReadAtSeconds),
		CreatedAt:     unixSeconds(record.CreatedAtSeconds),
		LastBatchedAt: unixSeconds(record.LastBatchedAtSeconds),
	}
}
