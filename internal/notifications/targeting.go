package notifications

import (
	"context"

	"go.uber.org/zap"
)

// FollowGraph is a read-only view over who follows whom.
type FollowGraph interface {
	FollowingIDs(ctx context.Context, followerID string) ([]string, error)
}

type followingSet map[string]struct{}

func newFollowingSet(ids []string) followingSet {
	set := make(followingSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s followingSet) contains(id string) bool {
	_, ok := s[id]
	return ok
}

type targetedBroadcast struct {
	broadcast BroadcastNotification
	criteria  TargetCriteria
}

// TargetingEvaluator decides which broadcasts are addressed to a viewer.
type TargetingEvaluator struct {
	logger *zap.Logger
}

// NewTargetingEvaluator constructs an evaluator; a nil logger discards warnings.
func NewTargetingEvaluator(logger *zap.Logger) TargetingEvaluator {
	if logger == nil {
		logger = noOpLogger
	}
	return TargetingEvaluator{logger: logger}
}

// Matches reports whether criteria addresses a viewer with the given following set.
func (e TargetingEvaluator) Matches(criteria TargetCriteria, following map[string]struct{}) bool {
	switch value := criteria.(type) {
	case AllUsers:
		return true
	case FollowersOf:
		return followingSet(following).contains(value.UserID)
	default:
		return false
	}
}

func (e TargetingEvaluator) selectRelevant(viewerID string, following followingSet, broadcasts []BroadcastNotification) []targetedBroadcast {
	relevant := make([]targetedBroadcast, 0, len(broadcasts))
	for _, broadcast := range broadcasts {
		criteria, err := DecodeCriteria(broadcast.TargetCriteria)
		if err != nil {
			e.logger.Warn("broadcast excluded: malformed target criteria",
				zap.String("broadcast_id", broadcast.ID),
				zap.String("viewer_id", viewerID),
				zap.Error(err))
			continue
		}
		if !e.Matches(criteria, following) {
			continue
		}
		relevant = append(relevant, targetedBroadcast{broadcast: broadcast, criteria: criteria})
	}
	return relevant
}
