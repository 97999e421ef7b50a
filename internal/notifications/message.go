package notifications

import (
	"fmt"
	"strings"
)

var baseVerbs = map[EventFamily]string{
	FamilyLike:    "liked your %s",
	FamilyComment: "commented on your %s",
	FamilyReply:   "replied to your %s",
}

// ComposeMessage renders the display text for a notification that folded count events.
// sameActor is true when a single actor produced every folded event.
func ComposeMessage(notificationType NotificationType, entityType EntityType, count int64, sameActor bool) (string, error) {
	family, err := FamilyOf(notificationType)
	if err != nil {
		return "", err
	}
	verb, ok := baseVerbs[family]
	if !ok {
		return "", &ConfigurationError{Type: notificationType, EntityType: entityType}
	}
	base := fmt.Sprintf(verb, strings.ToLower(string(entityType)))

	switch {
	case count <= 1:
		return base, nil
	case count == 2 && sameActor:
		return base + " again", nil
	case count == 2:
		return "and 1 other " + base, nil
	case sameActor:
		return fmt.Sprintf("%s %d times", base, count), nil
	default:
		return fmt.Sprintf("and %d others %s", count-1, base), nil
	}
}
