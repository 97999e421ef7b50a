package notifications

import (
	"errors"
	"testing"
)

func TestResolveBatchKey(t *testing.T) {
	testCases := []struct {
		name             string
		notificationType NotificationType
		entityType       EntityType
		entityID         string
		want             string
	}{
		{name: "like-post", notificationType: TypeLikePost, entityType: EntityTypePost, entityID: "post-1", want: "like_post_post-1"},
		{name: "like-review", notificationType: TypeLikeReview, entityType: EntityTypeReview, entityID: "rev-7", want: "like_review_rev-7"},
		{name: "like-comment", notificationType: TypeLikeComment, entityType: EntityTypeComment, entityID: "c-3", want: "like_comment_c-3"},
		{name: "comment-roadmap", notificationType: TypeCommentRoadmap, entityType: EntityTypeRoadmap, entityID: "map-2", want: "comment_roadmap_map-2"},
		{name: "comment-post", notificationType: TypeCommentPost, entityType: EntityTypePost, entityID: "post-1", want: "comment_post_post-1"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBatchKey(tt.notificationType, tt.entityType, tt.entityID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("unexpected batch key: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveBatchKeyIsDeterministic(t *testing.T) {
	first, err := ResolveBatchKey(TypeLikePost, EntityTypePost, "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ResolveBatchKey(TypeLikePost, EntityTypePost, "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical keys, got %q and %q", first, second)
	}
	other, err := ResolveBatchKey(TypeCommentPost, EntityTypePost, "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == first {
		t.Fatalf("likes and comments on the same post must not share a key")
	}
}

func TestResolveBatchKeyRejectsUnmappedPairs(t *testing.T) {
	testCases := []struct {
		name             string
		notificationType NotificationType
		entityType       EntityType
	}{
		{name: "type-entity-mismatch", notificationType: TypeLikePost, entityType: EntityTypeReview},
		{name: "unknown-type", notificationType: NotificationType("SHARE_POST"), entityType: EntityTypePost},
		{name: "unknown-entity", notificationType: TypeCommentPost, entityType: EntityType("PANEL")},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveBatchKey(tt.notificationType, tt.entityType, "x")
			var configurationErr *ConfigurationError
			if !errors.As(err, &configurationErr) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestNotificationTypeFor(t *testing.T) {
	notificationType, err := NotificationTypeFor(FamilyLike, EntityTypeRoadmap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notificationType != TypeLikeRoadmap {
		t.Fatalf("unexpected type %q", notificationType)
	}

	_, err = NotificationTypeFor(FamilyComment, EntityTypeComment)
	var configurationErr *ConfigurationError
	if !errors.As(err, &configurationErr) {
		t.Fatalf("expected configuration error for comment on comment, got %v", err)
	}
	if configurationErr.Family != FamilyComment || configurationErr.EntityType != EntityTypeComment {
		t.Fatalf("unexpected configuration error details: %+v", configurationErr)
	}
}

func TestBatchesExcludesReplies(t *testing.T) {
	if Batches(TypeReplyComment) {
		t.Fatalf("replies must never batch")
	}
	if !Batches(TypeLikePost) || !Batches(TypeCommentReview) {
		t.Fatalf("likes and comments must batch")
	}
	if Batches(NotificationType("UNKNOWN")) {
		t.Fatalf("unknown types must not batch")
	}
}
