package notifications

import (
	"fmt"

	"github.com/google/uuid"
)

// IDProviderFunc adapts a plain function to IDProvider.
type IDProviderFunc func() (string, error)

func (f IDProviderFunc) NewID() (string, error) {
	return f()
}

// NewUUIDProvider returns an IDProvider issuing UUIDv7 strings, which sort by
// creation time and keep the newest-first tie break on id meaningful.
func NewUUIDProvider() IDProvider {
	return IDProviderFunc(func() (string, error) {
		value, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("notifications: generate id: %w", err)
		}
		return value.String(), nil
	})
}
