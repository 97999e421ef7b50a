package notifications

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

const (
	defaultBatchWindow    = 60 * time.Minute
	defaultFeedLimit      = 100
	defaultRecordAttempts = 5
)

const (
	opServiceNew              = "notifications.service.new"
	opRecordEvent             = "notifications.record_event"
	opCreateBroadcast         = "notifications.create_broadcast"
	opRelevantBroadcasts      = "notifications.relevant_broadcasts"
	opListNotifications       = "notifications.list_notifications"
	opUnreadCount             = "notifications.unread_count"
	opMarkIndividualRead      = "notifications.mark_individual_read"
	opMarkAllRead             = "notifications.mark_all_read"
	opMarkBroadcastRead       = "notifications.mark_broadcast_read"
	opMarkAllBroadcastsRead   = "notifications.mark_all_broadcasts_read"
	opPurgeReadOlderThan      = "notifications.purge_read_older_than"
	reasonMissingDatabase     = "missing_database"
	reasonMissingIDProvider   = "missing_id_provider"
	reasonMissingFollowGraph  = "missing_follow_graph"
	reasonMissingViewerID     = "missing_viewer_id"
	reasonInvalidInput        = "invalid_input"
	reasonUnmappedEvent       = "unmapped_event"
	reasonBatchContention     = "batch_contention"
	reasonStorageFailed       = "storage_failed"
	reasonIDGenerationFailed  = "id_generation_failed"
	reasonCriteriaEncoding    = "criteria_encoding_failed"
	reasonFollowGraphFailed   = "follow_graph_failed"
	reasonNotificationMissing = "notification_not_found"
	reasonBroadcastMissing    = "broadcast_not_found"
	fieldRecipientID          = "recipient_id"
	fieldViewerID             = "viewer_id"
	fieldBatchKey             = "batch_key"
	fieldNotificationID       = "notification_id"
	fieldBroadcastID          = "broadcast_id"
)

var noOpLogger = zap.NewNop()

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the notification engine.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	FollowGraph FollowGraph
	Logger      *zap.Logger
	// BatchWindow applies to every batching family without an override. Zero means 60 minutes.
	BatchWindow time.Duration
	// BatchWindowOverrides sets per-family windows; zero values inherit BatchWindow.
	BatchWindowOverrides map[EventFamily]time.Duration
	FeedLimit            int
	RecordAttempts       int
}

// Service is the notification engine. It holds no per-call state, so any
// number of instances may share one database.
type Service struct {
	db             *gorm.DB
	clock          func() time.Time
	idProvider     IDProvider
	graph          FollowGraph
	logger         *zap.Logger
	evaluator      TargetingEvaluator
	validate       *validator.Validate
	batchWindow    time.Duration
	windowOverride map[EventFamily]time.Duration
	feedLimit      int
	recordAttempts int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDProvider, errMissingIDProvider)
	}
	if cfg.FollowGraph == nil {
		return nil, newServiceError(opServiceNew, reasonMissingFollowGraph, errMissingFollowGraph)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	batchWindow := cfg.BatchWindow
	if batchWindow <= 0 {
		batchWindow = defaultBatchWindow
	}
	overrides := make(map[EventFamily]time.Duration, len(cfg.BatchWindowOverrides))
	for family, window := range cfg.BatchWindowOverrides {
		if window > 0 {
			overrides[family] = window
		}
	}

	feedLimit := cfg.FeedLimit
	if feedLimit <= 0 {
		feedLimit = defaultFeedLimit
	}
	recordAttempts := cfg.RecordAttempts
	if recordAttempts <= 0 {
		recordAttempts = defaultRecordAttempts
	}

	return &Service{
		db:             cfg.Database,
		clock:          clock,
		idProvider:     cfg.IDProvider,
		graph:          cfg.FollowGraph,
		logger:         logger,
		evaluator:      NewTargetingEvaluator(logger),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		batchWindow:    batchWindow,
		windowOverride: overrides,
		feedLimit:      feedLimit,
		recordAttempts: recordAttempts,
	}, nil
}

// BatchWindowFor returns the batching window applied to a notification type.
func (s *Service) BatchWindowFor(notificationType NotificationType) time.Duration {
	family, err := FamilyOf(notificationType)
	if err == nil {
		if window, ok := s.windowOverride[family]; ok {
			return window
		}
	}
	return s.batchWindow
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return nil
}

func (s *Service) validateInput(operation string, input any) error {
	if err := s.validate.Struct(input); err != nil {
		return newServiceError(operation, reasonInvalidInput, &ValidationError{Err: err})
	}
	return nil
}

func (s *Service) requireViewer(operation, viewerID string) error {
	if viewerID == "" {
		return newServiceError(operation, reasonMissingViewerID, &ValidationError{Err: errMissingViewerID})
	}
	return nil
}

// primary returns a handle whose reads bypass any registered replica. Reads
// that decide a write or report state right after one must use it.
func (s *Service) primary(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Clauses(dbresolver.Write).Session(&gorm.Session{})
}

func (s *Service) nowSeconds() int64 {
	return s.clock().UTC().Unix()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notifications service error", attrs...)
}

func (s *Service) storageError(operation string, err error, fields ...zap.Field) error {
	s.logError(operation, reasonStorageFailed, err, fields...)
	return newServiceError(operation, reasonStorageFailed, &StorageError{Err: err})
}
