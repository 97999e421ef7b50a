package notifications

import (
	"errors"
	"testing"
)

func TestComposeMessage(t *testing.T) {
	testCases := []struct {
		name             string
		notificationType NotificationType
		entityType       EntityType
		count            int64
		sameActor        bool
		want             string
	}{
		{name: "like-single", notificationType: TypeLikePost, entityType: EntityTypePost, count: 1, sameActor: true, want: "liked your post"},
		{name: "like-twice-same", notificationType: TypeLikePost, entityType: EntityTypePost, count: 2, sameActor: true, want: "liked your post again"},
		{name: "like-twice-other", notificationType: TypeLikePost, entityType: EntityTypePost, count: 2, sameActor: false, want: "and 1 other liked your post"},
		{name: "like-many-same", notificationType: TypeLikeReview, entityType: EntityTypeReview, count: 4, sameActor: true, want: "liked your review 4 times"},
		{name: "like-many-other", notificationType: TypeLikeReview, entityType: EntityTypeReview, count: 4, sameActor: false, want: "and 3 others liked your review"},
		{name: "comment-single", notificationType: TypeCommentRoadmap, entityType: EntityTypeRoadmap, count: 1, sameActor: true, want: "commented on your roadmap"},
		{name: "comment-twice-same", notificationType: TypeCommentRoadmap, entityType: EntityTypeRoadmap, count: 2, sameActor: true, want: "commented on your roadmap again"},
		{name: "comment-twice-other", notificationType: TypeCommentPost, entityType: EntityTypePost, count: 2, sameActor: false, want: "and 1 other commented on your post"},
		{name: "comment-many-same", notificationType: TypeCommentPost, entityType: EntityTypePost, count: 3, sameActor: true, want: "commented on your post 3 times"},
		{name: "comment-many-other", notificationType: TypeCommentReview, entityType: EntityTypeReview, count: 5, sameActor: false, want: "and 4 others commented on your review"},
		{name: "reply-single", notificationType: TypeReplyComment, entityType: EntityTypeComment, count: 1, sameActor: true, want: "replied to your comment"},
		{name: "reply-twice-same", notificationType: TypeReplyComment, entityType: EntityTypeComment, count: 2, sameActor: true, want: "replied to your comment again"},
		{name: "reply-twice-other", notificationType: TypeReplyComment, entityType: EntityTypeComment, count: 2, sameActor: false, want: "and 1 other replied to your comment"},
		{name: "reply-many-same", notificationType: TypeReplyComment, entityType: EntityTypeComment, count: 3, sameActor: true, want: "replied to your comment 3 times"},
		{name: "reply-many-other", notificationType: TypeReplyComment, entityType: EntityTypeComment, count: 3, sameActor: false, want: "and 2 others replied to your comment"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComposeMessage(tt.notificationType, tt.entityType, tt.count, tt.sameActor)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("unexpected message: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComposeMessageRejectsUnknownType(t *testing.T) {
	_, err := ComposeMessage(NotificationType("MENTION_POST"), EntityTypePost, 1, true)
	var configurationErr *ConfigurationError
	if !errors.As(err, &configurationErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
