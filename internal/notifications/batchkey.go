package notifications

import "strings"

var notificationTypesByFamily = map[EventFamily]map[EntityType]NotificationType{
	FamilyLike: {
		EntityTypePost:    TypeLikePost,
		EntityTypeComment: TypeLikeComment,
		EntityTypeReview:  TypeLikeReview,
		EntityTypeRoadmap: TypeLikeRoadmap,
	},
	FamilyComment: {
		EntityTypePost:    TypeCommentPost,
		EntityTypeReview:  TypeCommentReview,
		EntityTypeRoadmap: TypeCommentRoadmap,
	},
	FamilyReply: {
		EntityTypeComment: TypeReplyComment,
	},
}

type typeBinding struct {
	family     EventFamily
	entityType EntityType
}

var bindingsByType = func() map[NotificationType]typeBinding {
	bindings := make(map[NotificationType]typeBinding)
	for family, byEntity := range notificationTypesByFamily {
		for entityType, notificationType := range byEntity {
			bindings[notificationType] = typeBinding{family: family, entityType: entityType}
		}
	}
	return bindings
}()

// NotificationTypeFor maps an event family and entity type to the notification type.
func NotificationTypeFor(family EventFamily, entityType EntityType) (NotificationType, error) {
	notificationType, ok := notificationTypesByFamily[family][entityType]
	if !ok {
		return "", &ConfigurationError{Family: family, EntityType: entityType}
	}
	return notificationType, nil
}

// FamilyOf returns the event family a notification type belongs to.
func FamilyOf(notificationType NotificationType) (EventFamily, error) {
	binding, ok := bindingsByType[notificationType]
	if !ok {
		return "", &ConfigurationError{Type: notificationType}
	}
	return binding.family, nil
}

// ResolveBatchKey returns the grouping key for an event.
//
// Likes group by "<type>_<entity id>", comments by "comment_<entity type>_<entity id>".
// Replies get a key for bookkeeping but never batch; see Batches.
func ResolveBatchKey(notificationType NotificationType, entityType EntityType, entityID string) (string, error) {
	binding, ok := bindingsByType[notificationType]
	if !ok || binding.entityType != entityType {
		return "", &ConfigurationError{Type: notificationType, EntityType: entityType}
	}
	switch binding.family {
	case FamilyLike:
		return strings.ToLower(string(notificationType)) + "_" + entityID, nil
	case FamilyComment:
		return "comment_" + strings.ToLower(string(entityType)) + "_" + entityID, nil
	case FamilyReply:
		return "reply_" + strings.ToLower(string(entityType)) + "_" + entityID, nil
	default:
		return "", &ConfigurationError{Type: notificationType, EntityType: entityType}
	}
}

// Batches reports whether events of the given type fold into an open window.
func Batches(notificationType NotificationType) bool {
	binding, ok := bindingsByType[notificationType]
	if !ok {
		return false
	}
	return binding.family != FamilyReply
}
