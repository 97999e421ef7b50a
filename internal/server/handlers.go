package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/gin-gonic/gin"
)

type individualPayload struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	EntityType    string  `json:"entity_type"`
	EntityID      string  `json:"entity_id"`
	SourceID      string  `json:"source_id,omitempty"`
	ActorID       string  `json:"actor_id"`
	Message       string  `json:"message"`
	URL           string  `json:"url"`
	BatchCount    int64   `json:"batch_count"`
	IsRead        bool    `json:"is_read"`
	ReadAt        *string `json:"read_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
	LastBatchedAt string  `json:"last_batched_at"`
}

type broadcastPayload struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	URL       string  `json:"url"`
	ActorID   string  `json:"actor_id,omitempty"`
	IsRead    bool    `json:"is_read"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

type feedPayload struct {
	Individual []individualPayload `json:"individual"`
	Broadcast  []broadcastPayload  `json:"broadcast"`
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	feed, err := h.notifications.ListNotifications(c.Request.Context(), viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := feedPayload{
		Individual: make([]individualPayload, 0, len(feed.Individual)),
		Broadcast:  make([]broadcastPayload, 0, len(feed.Broadcast)),
	}
	for _, item := range feed.Individual {
		response.Individual = append(response.Individual, individualPayload{
			ID:            item.ID,
			Type:          string(item.Type),
			EntityType:    string(item.EntityType),
			EntityID:      item.EntityID,
			SourceID:      item.SourceID,
			ActorID:       item.ActorID,
			Message:       item.Message,
			URL:           item.URL,
			BatchCount:    item.BatchCount,
			IsRead:        item.IsRead,
			ReadAt:        formatOptionalTime(item.ReadAt),
			CreatedAt:     formatTime(item.CreatedAt),
			LastBatchedAt: formatTime(item.LastBatchedAt),
		})
	}
	for _, item := range feed.Broadcast {
		response.Broadcast = append(response.Broadcast, broadcastPayload{
			ID:        item.ID,
			Type:      string(item.Type),
			Title:     item.Title,
			Message:   item.Message,
			URL:       item.URL,
			ActorID:   item.ActorID,
			IsRead:    item.IsRead,
			CreatedAt: formatTime(item.CreatedAt),
			ExpiresAt: formatOptionalTime(item.ExpiresAt),
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleUnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), viewerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *httpHandler) handleMarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkIndividualRead(c.Request.Context(), viewerID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleMarkAllRead clears both individual notifications and the viewer's
// relevant broadcasts.
func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := viewerID(c)
	individual, err := h.notifications.MarkAllRead(ctx, viewer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	broadcasts, err := h.notifications.MarkAllBroadcastsRead(ctx, viewer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"individual": individual, "broadcast": broadcasts})
}

func (h *httpHandler) handleMarkBroadcastRead(c *gin.Context) {
	if err := h.notifications.MarkBroadcastRead(c.Request.Context(), viewerID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreateAnnouncement(c *gin.Context) {
	var request notifications.Announcement
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	broadcast, err := h.notifications.CreateAdminAnnouncement(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": broadcast.ID, "type": broadcast.Type})
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}

func formatOptionalTime(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := formatTime(*value)
	return &formatted
}
