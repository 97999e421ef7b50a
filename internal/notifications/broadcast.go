package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var followerBroadcastTypes = map[EntityType]BroadcastType{
	EntityTypePost:    BroadcastFollowerPost,
	EntityTypeRoadmap: BroadcastFollowerRoadmap,
}

var followerBroadcastCopy = map[BroadcastType]struct {
	title   string
	content string
}{
	BroadcastFollowerPost:    {title: "New post", content: "published a new post"},
	BroadcastFollowerRoadmap: {title: "New roadmap", content: "published a new roadmap"},
}

// CreateFollowerBroadcast stores one broadcast addressed to every follower of
// the author. The audience is resolved when followers read their feed.
func (s *Service) CreateFollowerBroadcast(ctx context.Context, request FollowerBroadcast) (BroadcastNotification, error) {
	if err := s.ready(opCreateBroadcast); err != nil {
		return BroadcastNotification{}, err
	}
	if err := s.validateInput(opCreateBroadcast, request); err != nil {
		return BroadcastNotification{}, err
	}
	broadcastType, ok := followerBroadcastTypes[request.EntityKind]
	if !ok {
		err := &ConfigurationError{Family: "follower_broadcast", EntityType: request.EntityKind}
		s.logError(opCreateBroadcast, reasonUnmappedEvent, err, zap.String("author_id", request.AuthorID))
		return BroadcastNotification{}, newServiceError(opCreateBroadcast, reasonUnmappedEvent, err)
	}
	copyText := followerBroadcastCopy[broadcastType]
	return s.insertBroadcast(ctx, BroadcastNotification{
		Title:   copyText.title,
		Content: copyText.content,
		Type:    broadcastType,
		URL:     request.URL,
	}, FollowersOf{UserID: request.AuthorID, EntityID: request.EntityID})
}

// CreateAdminAnnouncement stores one broadcast addressed to every user.
func (s *Service) CreateAdminAnnouncement(ctx context.Context, announcement Announcement) (BroadcastNotification, error) {
	if err := s.ready(opCreateBroadcast); err != nil {
		return BroadcastNotification{}, err
	}
	if err := s.validateInput(opCreateBroadcast, announcement); err != nil {
		return BroadcastNotification{}, err
	}
	broadcastType := announcement.Type
	if broadcastType == "" {
		broadcastType = BroadcastAdminAnnouncement
	}
	var expiresAt *int64
	if announcement.ExpiresAt != nil {
		seconds := announcement.ExpiresAt.UTC().Unix()
		expiresAt = &seconds
	}
	return s.insertBroadcast(ctx, BroadcastNotification{
		Title:            announcement.Title,
		Content:          announcement.Content,
		Type:             broadcastType,
		URL:              announcement.URL,
		ExpiresAtSeconds: expiresAt,
	}, AllUsers{})
}

func (s *Service) insertBroadcast(ctx context.Context, broadcast BroadcastNotification, criteria TargetCriteria) (BroadcastNotification, error) {
	encoded, err := EncodeCriteria(criteria)
	if err != nil {
		s.logError(opCreateBroadcast, reasonCriteriaEncoding, err)
		return BroadcastNotification{}, newServiceError(opCreateBroadcast, reasonCriteriaEncoding, err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateBroadcast, reasonIDGenerationFailed, err)
		return BroadcastNotification{}, newServiceError(opCreateBroadcast, reasonIDGenerationFailed, err)
	}
	broadcast.ID = id
	broadcast.TargetCriteria = encoded
	broadcast.CreatedAtSeconds = s.nowSeconds()
	if err := s.db.WithContext(ctx).Create(&broadcast).Error; err != nil {
		return BroadcastNotification{}, s.storageError(opCreateBroadcast, err, zap.String(fieldBroadcastID, id))
	}
	return broadcast, nil
}

// RelevantBroadcasts evaluates every live broadcast against the viewer's
// following set and attaches the viewer's read state. Nothing is cached.
func (s *Service) RelevantBroadcasts(ctx context.Context, viewerID string) ([]BroadcastItem, error) {
	if err := s.ready(opRelevantBroadcasts); err != nil {
		return nil, err
	}
	if err := s.requireViewer(opRelevantBroadcasts, viewerID); err != nil {
		return nil, err
	}
	return s.relevantBroadcasts(ctx, s.db.WithContext(ctx), opRelevantBroadcasts, viewerID)
}

func (s *Service) relevantBroadcasts(ctx context.Context, db *gorm.DB, operation, viewerID string) ([]BroadcastItem, error) {
	var live []BroadcastNotification
	if err := db.Where("expires_at_s IS NULL OR expires_at_s > ?", s.nowSeconds()).
		Order("created_at_s DESC").
		Order("id DESC").
		Find(&live).Error; err != nil {
		return nil, s.storageError(operation, err, zap.String(fieldViewerID, viewerID))
	}
	if len(live) == 0 {
		return []BroadcastItem{}, nil
	}

	followingIDs, err := s.graph.FollowingIDs(ctx, viewerID)
	if err != nil {
		s.logError(operation, reasonFollowGraphFailed, err, zap.String(fieldViewerID, viewerID))
		return nil, newServiceError(operation, reasonFollowGraphFailed, &StorageError{Err: err})
	}
	relevant := s.evaluator.selectRelevant(viewerID, newFollowingSet(followingIDs), live)
	if len(relevant) == 0 {
		return []BroadcastItem{}, nil
	}

	broadcastIDs := make([]string, 0, len(relevant))
	for _, targeted := range relevant {
		broadcastIDs = append(broadcastIDs, targeted.broadcast.ID)
	}
	var reads []UserBroadcastRead
	if err := db.Where("user_id = ? AND broadcast_notification_id IN ?", viewerID, broadcastIDs).
		Find(&reads).Error; err != nil {
		return nil, s.storageError(operation, err, zap.String(fieldViewerID, viewerID))
	}
	seen := make(map[string]struct{}, len(reads))
	for _, read := range reads {
		seen[read.BroadcastID] = struct{}{}
	}

	items := make([]BroadcastItem, 0, len(relevant))
	for _, targeted := range relevant {
		_, isRead := seen[targeted.broadcast.ID]
		items = append(items, toBroadcastItem(targeted, isRead))
	}
	return items, nil
}

func toBroadcastItem(targeted targetedBroadcast, isRead bool) BroadcastItem {
	broadcast := targeted.broadcast
	item := BroadcastItem{
		ID:        broadcast.ID,
		Type:      broadcast.Type,
		Title:     broadcast.Title,
		Message:   broadcast.Content,
		URL:       broadcast.URL,
		IsRead:    isRead,
		CreatedAt: unixSeconds(broadcast.CreatedAtSeconds),
		ExpiresAt: optionalUnixSeconds(broadcast.ExpiresAtSeconds),
	}
	if followers, ok := targeted.criteria.(FollowersOf); ok {
		item.ActorID = followers.UserID
	}
	return item
}

// MarkBroadcastRead records that the viewer has seen a broadcast. Repeated
// calls leave a single read row.
func (s *Service) MarkBroadcastRead(ctx context.Context, viewerID, broadcastID string) error {
	if err := s.ready(opMarkBroadcastRead); err != nil {
		return err
	}
	if err := s.requireViewer(opMarkBroadcastRead, viewerID); err != nil {
		return err
	}

	db := s.primary(ctx)
	var broadcast BroadcastNotification
	err := db.Select("id").Where("id = ?", broadcastID).Take(&broadcast).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opMarkBroadcastRead, reasonBroadcastMissing,
			&NotFoundError{Kind: "broadcast", ID: broadcastID})
	}
	if err != nil {
		return s.storageError(opMarkBroadcastRead, err,
			zap.String(fieldViewerID, viewerID),
			zap.String(fieldBroadcastID, broadcastID))
	}

	read := UserBroadcastRead{UserID: viewerID, BroadcastID: broadcastID, ReadAtSeconds: s.nowSeconds()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&read).Error; err != nil {
		return s.storageError(opMarkBroadcastRead, err,
			zap.String(fieldViewerID, viewerID),
			zap.String(fieldBroadcastID, broadcastID))
	}
	return nil
}

// MarkAllBroadcastsRead records a read row for every relevant broadcast the
// viewer has not seen yet and returns how many were added.
func (s *Service) MarkAllBroadcastsRead(ctx context.Context, viewerID string) (int64, error) {
	if err := s.ready(opMarkAllBroadcastsRead); err != nil {
		return 0, err
	}
	if err := s.requireViewer(opMarkAllBroadcastsRead, viewerID); err != nil {
		return 0, err
	}
	db := s.primary(ctx)
	items, err := s.relevantBroadcasts(ctx, db, opMarkAllBroadcastsRead, viewerID)
	if err != nil {
		return 0, err
	}
	nowSeconds := s.nowSeconds()
	reads := make([]UserBroadcastRead, 0, len(items))
	for _, item := range items {
		if item.IsRead {
			continue
		}
		reads = append(reads, UserBroadcastRead{UserID: viewerID, BroadcastID: item.ID, ReadAtSeconds: nowSeconds})
	}
	if len(reads) == 0 {
		return 0, nil
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads)
	if result.Error != nil {
		return 0, s.storageError(opMarkAllBroadcastsRead, result.Error, zap.String(fieldViewerID, viewerID))
	}
	return result.RowsAffected, nil
}
