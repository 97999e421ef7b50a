package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/follows"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

var testEpoch = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(value time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = value
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("n-%04d", g.next), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type stubGraph struct {
	ids []string
	err error
}

func (g stubGraph) FollowingIDs(context.Context, string) ([]string, error) {
	return g.ids, g.err
}

type testHarness struct {
	service *Service
	db      *gorm.DB
	clock   *testClock
}

type harnessOption func(*ServiceConfig)

func withLogger(logger *zap.Logger) harnessOption {
	return func(cfg *ServiceConfig) { cfg.Logger = logger }
}

func withGraph(graph FollowGraph) harnessOption {
	return func(cfg *ServiceConfig) { cfg.FollowGraph = graph }
}

func withWindowOverride(family EventFamily, window time.Duration) harnessOption {
	return func(cfg *ServiceConfig) {
		if cfg.BatchWindowOverrides == nil {
			cfg.BatchWindowOverrides = map[EventFamily]time.Duration{}
		}
		cfg.BatchWindowOverrides[family] = window
	}
}

func withRecordAttempts(attempts int) harnessOption {
	return func(cfg *ServiceConfig) { cfg.RecordAttempts = attempts }
}

func withIDProvider(provider IDProvider) harnessOption {
	return func(cfg *ServiceConfig) { cfg.IDProvider = provider }
}

func newTestHarness(t *testing.T, options ...harnessOption) *testHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:notifications_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&IndividualNotification{}, &BroadcastNotification{}, &UserBroadcastRead{}, &follows.Follow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	graph, err := follows.NewGraph(follows.GraphConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct follow graph: %v", err)
	}

	clock := newTestClock(testEpoch)
	cfg := ServiceConfig{
		Database:    db,
		Clock:       clock.Now,
		IDProvider:  &sequentialIDs{},
		FollowGraph: graph,
	}
	for _, option := range options {
		option(&cfg)
	}

	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct notifications service: %v", err)
	}
	return &testHarness{service: service, db: db, clock: clock}
}

// attachReplica registers a second sqlite database as a read replica of the
// harness database. The replica starts with the given rows only, which stands
// in for a replica that has not caught up with the primary.
func (h *testHarness) attachReplica(t *testing.T, snapshot ...any) {
	t.Helper()
	dsn := fmt.Sprintf("file:notifications_replica_%d?mode=memory&cache=shared", time.Now().UnixNano())
	replica, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open replica: %v", err)
	}
	replicaSQL, err := replica.DB()
	if err != nil {
		t.Fatalf("failed to access replica sql db: %v", err)
	}
	t.Cleanup(func() { _ = replicaSQL.Close() })
	if err := replica.AutoMigrate(&IndividualNotification{}, &BroadcastNotification{}, &UserBroadcastRead{}, &follows.Follow{}); err != nil {
		t.Fatalf("failed to migrate replica: %v", err)
	}
	for _, rows := range snapshot {
		if err := replica.Create(rows).Error; err != nil {
			t.Fatalf("failed to seed replica: %v", err)
		}
	}
	if err := h.db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: []gorm.Dialector{sqlite.Open(dsn)},
		Policy:   dbresolver.RandomPolicy{},
	})); err != nil {
		t.Fatalf("failed to register replica: %v", err)
	}
}

func (h *testHarness) follow(t *testing.T, followerID, followingID string) {
	t.Helper()
	edge := follows.Follow{FollowerID: followerID, FollowingID: followingID, CreatedAtSeconds: testEpoch.Unix()}
	if err := h.db.Create(&edge).Error; err != nil {
		t.Fatalf("failed to seed follow edge: %v", err)
	}
}

func (h *testHarness) individualRows(t *testing.T, recipientID string) []IndividualNotification {
	t.Helper()
	var rows []IndividualNotification
	if err := h.db.Where("recipient_id = ?", recipientID).Order("created_at_s ASC").Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("failed to load individual notifications: %v", err)
	}
	return rows
}

func (h *testHarness) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var count int64
	if err := h.db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func likePost(recipientID, actorID, postID string) LikeEvent {
	return LikeEvent{
		RecipientID: recipientID,
		ActorID:     actorID,
		EntityType:  EntityTypePost,
		EntityID:    postID,
		URL:         "/posts/" + postID,
	}
}

func mustRecordLike(t *testing.T, service *Service, event LikeEvent) RecordOutcome {
	t.Helper()
	outcome, err := service.RecordLikeEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected record error: %v", err)
	}
	return outcome
}

func requireServiceCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("unexpected service error code: got %q, want %q", serviceErr.Code(), code)
	}
}
