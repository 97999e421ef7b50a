package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/auth"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessions struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessions) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

type stubNotificationService struct {
	err error
}

func (s stubNotificationService) RecordLikeEvent(context.Context, notifications.LikeEvent) (notifications.RecordOutcome, error) {
	return notifications.RecordOutcome{}, s.err
}

func (s stubNotificationService) RecordCommentEvent(context.Context, notifications.CommentEvent) (notifications.RecordOutcome, error) {
	return notifications.RecordOutcome{}, s.err
}

func (s stubNotificationService) RecordReplyEvent(context.Context, notifications.ReplyEvent) (notifications.RecordOutcome, error) {
	return notifications.RecordOutcome{}, s.err
}

func (s stubNotificationService) CreateFollowerBroadcast(context.Context, notifications.FollowerBroadcast) (notifications.BroadcastNotification, error) {
	return notifications.BroadcastNotification{}, s.err
}

func (s stubNotificationService) CreateAdminAnnouncement(context.Context, notifications.Announcement) (notifications.BroadcastNotification, error) {
	return notifications.BroadcastNotification{}, s.err
}

func (s stubNotificationService) ListNotifications(context.Context, string) (notifications.Feed, error) {
	return notifications.Feed{}, s.err
}

func (s stubNotificationService) UnreadCount(context.Context, string) (int64, error) {
	return 0, s.err
}

func (s stubNotificationService) MarkIndividualRead(context.Context, string, string) error {
	return s.err
}

func (s stubNotificationService) MarkAllRead(context.Context, string) (int64, error) {
	return 0, s.err
}

func (s stubNotificationService) MarkBroadcastRead(context.Context, string, string) error {
	return s.err
}

func (s stubNotificationService) MarkAllBroadcastsRead(context.Context, string) (int64, error) {
	return 0, s.err
}

func TestAuthorizeRequestLogLevels(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		level zapcore.Level
	}{
		{name: "expired", err: auth.ErrExpiredSessionToken, level: zapcore.InfoLevel},
		{name: "missing", err: auth.ErrMissingSessionToken, level: zapcore.InfoLevel},
		{name: "invalid", err: fmt.Errorf("%w: signature mismatch", auth.ErrInvalidSessionToken), level: zapcore.WarnLevel},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/notifications", http.NoBody)

			core, logs := observer.New(zapcore.DebugLevel)
			handler := &httpHandler{sessions: stubSessions{err: tt.err}, logger: zap.New(core)}
			handler.authorizeRequest(ctx)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected exactly one log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Fatalf("expected %s level, got %s", tt.level, entries[0].Level)
			}
			if entries[0].Message != "session validation failed" {
				t.Fatalf("unexpected log message: %q", entries[0].Message)
			}
		})
	}
}

func TestAuthorizeRequestStoresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/notifications", http.NoBody)

	handler := &httpHandler{sessions: stubSessions{claims: auth.SessionClaims{UserID: "bob"}}, logger: zap.NewNop()}
	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("valid session must not abort")
	}
	if viewerID(ctx) != "bob" {
		t.Fatalf("expected viewer bob, got %q", viewerID(ctx))
	}
}

func TestRespondErrorMapsStorageFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)
	handler, err := NewHTTPHandler(Dependencies{
		Notifications: stubNotificationService{err: &notifications.StorageError{Err: errors.New("disk full")}},
		Sessions:      stubSessions{claims: auth.SessionClaims{UserID: "bob"}},
		Logger:        zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/notifications/unread-count", http.NoBody))

	requireStatus(t, recorder, http.StatusInternalServerError)
	if body := decode[errorPayload](t, recorder); body.Error != "internal_error" {
		t.Fatalf("unexpected error body %+v", body)
	}
	if logs.FilterMessage("request failed").Len() != 1 {
		t.Fatalf("expected the failure to be logged")
	}
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: &notifications.ValidationError{Err: errors.New("bad")}, status: http.StatusBadRequest},
		{name: "not-found", err: &notifications.NotFoundError{Kind: "notification", ID: "x"}, status: http.StatusNotFound},
		{name: "configuration", err: &notifications.ConfigurationError{Type: "X"}, status: http.StatusUnprocessableEntity},
		{name: "storage", err: &notifications.StorageError{Err: errors.New("io")}, status: http.StatusInternalServerError},
		{name: "plain", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := classifyError(tt.err)
			if status != tt.status {
				t.Fatalf("unexpected status: got %d, want %d", status, tt.status)
			}
		})
	}
}
