package notifications

import (
	"time"

	"gorm.io/datatypes"
)

// EntityType names the kind of content a notification points at.
type EntityType string

const (
	EntityTypePost    EntityType = "POST"
	EntityTypeComment EntityType = "COMMENT"
	EntityTypeReview  EntityType = "REVIEW"
	EntityTypeRoadmap EntityType = "ROADMAP"
)

// NotificationType enumerates per-recipient notification kinds.
type NotificationType string

const (
	TypeLikePost       NotificationType = "LIKE_POST"
	TypeLikeComment    NotificationType = "LIKE_COMMENT"
	TypeLikeReview     NotificationType = "LIKE_REVIEW"
	TypeLikeRoadmap    NotificationType = "LIKE_ROADMAP"
	TypeCommentPost    NotificationType = "COMMENT_POST"
	TypeCommentReview  NotificationType = "COMMENT_REVIEW"
	TypeCommentRoadmap NotificationType = "COMMENT_ROADMAP"
	TypeReplyComment   NotificationType = "REPLY_COMMENT"
)

// BroadcastType enumerates criteria-targeted notification kinds.
type BroadcastType string

const (
	BroadcastFollowerPost      BroadcastType = "FOLLOWER_POST"
	BroadcastFollowerRoadmap   BroadcastType = "FOLLOWER_ROADMAP"
	BroadcastAdminAnnouncement BroadcastType = "ADMIN_ANNOUNCEMENT"
	BroadcastSystem            BroadcastType = "SYSTEM"
)

// EventFamily groups notification types that share batching and message rules.
type EventFamily string

const (
	FamilyLike    EventFamily = "like"
	FamilyComment EventFamily = "comment"
	FamilyReply   EventFamily = "reply"
)

// IndividualNotification is a per-recipient record that may fold several events.
// OpenBatchKey is non-nil only while the record is the active batching window for
// its recipient and batch key; the unique index on it keeps that window singular.
type IndividualNotification struct {
	ID                   string           `gorm:"column:id;primaryKey;size:64;not null"`
	RecipientID          string           `gorm:"column:recipient_id;size:190;not null;index:idx_individual_recipient_created,priority:1;uniqueIndex:idx_individual_open_batch,priority:1"`
	ActorID              string           `gorm:"column:actor_id;size:190;not null"`
	Type                 NotificationType `gorm:"column:type;size:32;not null"`
	EntityType           EntityType       `gorm:"column:entity_type;size:16;not null"`
	EntityID             string           `gorm:"column:entity_id;size:190;not null"`
	SourceID             string           `gorm:"column:source_id;size:190"`
	BatchKey             string           `gorm:"column:batch_key;size:255;not null;index"`
	OpenBatchKey         *string          `gorm:"column:open_batch_key;size:255;uniqueIndex:idx_individual_open_batch,priority:2"`
	Message              string           `gorm:"column:message;size:255;not null"`
	URL                  string           `gorm:"column:url;size:512;not null"`
	BatchCount           int64            `gorm:"column:batch_count;not null"`
	SingleActor          bool             `gorm:"column:single_actor;not null"`
	LastBatchedAtSeconds int64            `gorm:"column:last_batched_at_s;not null"`
	ReadAtSeconds        *int64           `gorm:"column:read_at_s;index"`
	CreatedAtSeconds     int64            `gorm:"column:created_at_s;not null;index:idx_individual_recipient_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (IndividualNotification) TableName() string {
	return "individual_notifications"
}

// BroadcastNotification is a single stored record for a fan-out event.
type BroadcastNotification struct {
	ID               string         `gorm:"column:id;primaryKey;size:64;not null"`
	Title            string         `gorm:"column:title;size:255;not null"`
	Content          string         `gorm:"column:content;type:text;not null"`
	Type             BroadcastType  `gorm:"column:type;size:32;not null"`
	TargetCriteria   datatypes.JSON `gorm:"column:target_criteria;not null"`
	URL              string         `gorm:"column:url;size:512;not null"`
	ExpiresAtSeconds *int64         `gorm:"column:expires_at_s;index"`
	CreatedAtSeconds int64          `gorm:"column:created_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (BroadcastNotification) TableName() string {
	return "broadcast_notifications"
}

// UserBroadcastRead records that a user has seen a broadcast.
type UserBroadcastRead struct {
	UserID        string `gorm:"column:user_id;primaryKey;size:190;not null"`
	BroadcastID   string `gorm:"column:broadcast_notification_id;primaryKey;size:64;not null"`
	ReadAtSeconds int64  `gorm:"column:read_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UserBroadcastRead) TableName() string {
	return "user_broadcast_reads"
}

// Event is a single user action addressed to one recipient. SourceID names the
// content the action created, such as the reply under a comment, when it
// differs from the entity the notification points at.
type Event struct {
	RecipientID string           `json:"recipient_id" validate:"required,max=190"`
	ActorID     string           `json:"actor_id" validate:"required,max=190"`
	Type        NotificationType `json:"type" validate:"required"`
	EntityType  EntityType       `json:"entity_type" validate:"required"`
	EntityID    string           `json:"entity_id" validate:"required,max=190"`
	SourceID    string           `json:"source_id,omitempty" validate:"max=190"`
	URL         string           `json:"url,omitempty" validate:"max=512"`
}

// LikeEvent reports that ActorID liked an entity owned by RecipientID.
type LikeEvent struct {
	RecipientID string     `json:"recipient_id" validate:"required,max=190"`
	ActorID     string     `json:"actor_id" validate:"required,max=190"`
	EntityType  EntityType `json:"entity_type" validate:"required"`
	EntityID    string     `json:"entity_id" validate:"required,max=190"`
	URL         string     `json:"url,omitempty" validate:"max=512"`
}

// CommentEvent reports that ActorID commented on an entity owned by RecipientID.
type CommentEvent struct {
	RecipientID string     `json:"recipient_id" validate:"required,max=190"`
	ActorID     string     `json:"actor_id" validate:"required,max=190"`
	EntityType  EntityType `json:"entity_type" validate:"required"`
	EntityID    string     `json:"entity_id" validate:"required,max=190"`
	URL         string     `json:"url,omitempty" validate:"max=512"`
}

// ReplyEvent reports that ActorID replied to a comment written by RecipientID.
type ReplyEvent struct {
	RecipientID string `json:"recipient_id" validate:"required,max=190"`
	ActorID     string `json:"actor_id" validate:"required,max=190"`
	CommentID   string `json:"comment_id" validate:"required,max=190"`
	ReplyID     string `json:"reply_id" validate:"required,max=190"`
	URL         string `json:"url,omitempty" validate:"max=512"`
}

// FollowerBroadcast announces new content from AuthorID to everyone following them.
type FollowerBroadcast struct {
	AuthorID   string     `json:"author_id" validate:"required,max=190"`
	EntityID   string     `json:"entity_id" validate:"required,max=190"`
	EntityKind EntityType `json:"entity_kind" validate:"required"`
	URL        string     `json:"url,omitempty" validate:"max=512"`
}

// Announcement is an operator-authored broadcast shown to every user.
type Announcement struct {
	Title     string        `json:"title" validate:"required,max=255"`
	Content   string        `json:"content" validate:"required"`
	URL       string        `json:"url,omitempty" validate:"max=512"`
	Type      BroadcastType `json:"type,omitempty" validate:"omitempty,oneof=ADMIN_ANNOUNCEMENT SYSTEM"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

// RecordOutcome describes what RecordEvent did with an event.
type RecordOutcome struct {
	NotificationID string
	BatchCount     int64
	Folded         bool
	Skipped        bool
}

// IndividualItem is the viewer-facing projection of an IndividualNotification.
type IndividualItem struct {
	ID            string
	Type          NotificationType
	EntityType    EntityType
	EntityID      string
	SourceID      string
	ActorID       string
	Message       string
	URL           string
	BatchCount    int64
	IsRead        bool
	ReadAt        *time.Time
	CreatedAt     time.Time
	LastBatchedAt time.Time
}

// BroadcastItem is a broadcast relevant to a viewer with its per-viewer read state.
type BroadcastItem struct {
	ID        string
	Type      BroadcastType
	Title     string
	Message   string
	URL       string
	ActorID   string
	IsRead    bool
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Feed merges a viewer's individual and broadcast notifications.
type Feed struct {
	Individual []IndividualItem
	Broadcast  []BroadcastItem
}

func unixSeconds(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}

func optionalUnixSeconds(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	converted := unixSeconds(*value)
	return &converted
}
