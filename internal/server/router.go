package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/auth"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	viewerClaimsContextKey = "comichub_viewer_claims"
	internalTokenHeader    = "X-Internal-Token"
)

var (
	errMissingNotificationService = errors.New("notification service dependency required")
	errMissingSessionValidator    = errors.New("session validator dependency required")
)

// NotificationService is the engine surface the HTTP layer depends on.
type NotificationService interface {
	RecordLikeEvent(ctx context.Context, event notifications.LikeEvent) (notifications.RecordOutcome, error)
	RecordCommentEvent(ctx context.Context, event notifications.CommentEvent) (notifications.RecordOutcome, error)
	RecordReplyEvent(ctx context.Context, event notifications.ReplyEvent) (notifications.RecordOutcome, error)
	CreateFollowerBroadcast(ctx context.Context, request notifications.FollowerBroadcast) (notifications.BroadcastNotification, error)
	CreateAdminAnnouncement(ctx context.Context, announcement notifications.Announcement) (notifications.BroadcastNotification, error)
	ListNotifications(ctx context.Context, viewerID string) (notifications.Feed, error)
	UnreadCount(ctx context.Context, viewerID string) (int64, error)
	MarkIndividualRead(ctx context.Context, viewerID, notificationID string) error
	MarkAllRead(ctx context.Context, viewerID string) (int64, error)
	MarkBroadcastRead(ctx context.Context, viewerID, broadcastID string) error
	MarkAllBroadcastsRead(ctx context.Context, viewerID string) (int64, error)
}

// SessionValidator authenticates viewer requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP handler. An empty InternalToken leaves the
// collaborator routes unregistered.
type Dependencies struct {
	Notifications  NotificationService
	Sessions       SessionValidator
	InternalToken  string
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Notifications == nil {
		return nil, errMissingNotificationService
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		notifications: deps.Notifications,
		sessions:      deps.Sessions,
		internalToken: deps.InternalToken,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)

	viewer := router.Group("/")
	viewer.Use(handler.authorizeRequest)
	viewer.GET("/notifications", handler.handleListNotifications)
	viewer.GET("/notifications/unread-count", handler.handleUnreadCount)
	viewer.POST("/notifications/read-all", handler.handleMarkAllRead)
	viewer.POST("/notifications/:id/read", handler.handleMarkNotificationRead)
	viewer.POST("/broadcasts/:id/read", handler.handleMarkBroadcastRead)
	viewer.POST("/admin/announcements", handler.requireRole(auth.RoleAdmin), handler.handleCreateAnnouncement)

	if deps.InternalToken != "" {
		internal := router.Group("/internal")
		internal.Use(handler.authorizeCollaborator)
		internal.POST("/events/like", handler.handleLikeEvent)
		internal.POST("/events/comment", handler.handleCommentEvent)
		internal.POST("/events/reply", handler.handleReplyEvent)
		internal.POST("/broadcasts/follower", handler.handleFollowerBroadcast)
	}

	return router, nil
}

// corsMiddleware allows credentialed requests from the given origins, or from
// any origin when none are configured.
func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", internalTokenHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	notifications NotificationService
	sessions      SessionValidator
	internalToken string
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken), errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(viewerClaimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := viewerClaims(c)
		if !ok || !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) authorizeCollaborator(c *gin.Context) {
	supplied := c.GetHeader(internalTokenHeader)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.internalToken)) != 1 {
		h.logger.Warn("collaborator token rejected", zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func viewerClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(viewerClaimsContextKey)
	if !exists {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

func viewerID(c *gin.Context) string {
	claims, ok := viewerClaims(c)
	if !ok {
		return ""
	}
	return claims.UserID
}
