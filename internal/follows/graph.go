package follows

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// Follow is a directed edge: FollowerID follows FollowingID. The table is owned
// by the follow service; this package only reads it.
type Follow struct {
	FollowerID       string `gorm:"column:follower_id;primaryKey;size:190;not null"`
	FollowingID      string `gorm:"column:following_id;primaryKey;size:190;not null;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing follow edges.
func (Follow) TableName() string {
	return "follows"
}

// GraphConfig describes the dependencies required for follow lookups.
type GraphConfig struct {
	Database *gorm.DB
}

// Graph is a read-only accessor over follow edges.
type Graph struct {
	db *gorm.DB
}

// NewGraph constructs the accessor.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("follows: database connection required")
	}
	return &Graph{db: cfg.Database}, nil
}

// FollowingIDs returns every user id the follower follows. Edges are read from
// the primary because unread counts and mark-all-read derive from them.
func (g *Graph) FollowingIDs(ctx context.Context, followerID string) ([]string, error) {
	followerID = strings.TrimSpace(followerID)
	if followerID == "" {
		return nil, fmt.Errorf("follows: follower id required")
	}
	var ids []string
	if err := g.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Model(&Follow{}).
		Where("follower_id = ?", followerID).
		Pluck("following_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("follows: load following ids: %w", err)
	}
	return ids, nil
}
