package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// CriteriaKind tags a stored targeting criteria document.
type CriteriaKind string

const (
	CriteriaKindAll       CriteriaKind = "all"
	CriteriaKindFollowers CriteriaKind = "followers"
)

// ErrMalformedCriteria indicates a stored criteria document that cannot be evaluated.
var ErrMalformedCriteria = errors.New("notifications: malformed target criteria")

// TargetCriteria describes the audience of a broadcast. Implementations are
// limited to AllUsers and FollowersOf.
type TargetCriteria interface {
	Kind() CriteriaKind
	sealedTargetCriteria()
}

// AllUsers targets every user.
type AllUsers struct{}

func (AllUsers) Kind() CriteriaKind { return CriteriaKindAll }

func (AllUsers) sealedTargetCriteria() {}

// FollowersOf targets every user following UserID, about EntityID.
type FollowersOf struct {
	UserID   string
	EntityID string
}

func (FollowersOf) Kind() CriteriaKind { return CriteriaKindFollowers }

func (FollowersOf) sealedTargetCriteria() {}

type criteriaDocument struct {
	Kind     CriteriaKind `json:"kind"`
	UserID   string       `json:"userId,omitempty"`
	EntityID string       `json:"entityId,omitempty"`
}

// EncodeCriteria serializes criteria into the stored JSON column value.
func EncodeCriteria(criteria TargetCriteria) (datatypes.JSON, error) {
	var document criteriaDocument
	switch value := criteria.(type) {
	case AllUsers:
		document = criteriaDocument{Kind: CriteriaKindAll}
	case FollowersOf:
		if strings.TrimSpace(value.UserID) == "" {
			return nil, fmt.Errorf("%w: followers criteria without user id", ErrMalformedCriteria)
		}
		document = criteriaDocument{Kind: CriteriaKindFollowers, UserID: value.UserID, EntityID: value.EntityID}
	default:
		return nil, fmt.Errorf("%w: unsupported criteria %T", ErrMalformedCriteria, criteria)
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

// DecodeCriteria parses a stored criteria document. Unknown kinds and missing
// fields yield ErrMalformedCriteria.
func DecodeCriteria(raw []byte) (TargetCriteria, error) {
	var document criteriaDocument
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCriteria, err)
	}
	switch document.Kind {
	case CriteriaKindAll:
		return AllUsers{}, nil
	case CriteriaKindFollowers:
		if strings.TrimSpace(document.UserID) == "" {
			return nil, fmt.Errorf("%w: followers criteria without user id", ErrMalformedCriteria)
		}
		return FollowersOf{UserID: document.UserID, EntityID: document.EntityID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedCriteria, document.Kind)
	}
}
