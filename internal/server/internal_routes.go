package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/gin-gonic/gin"
)

type recordResponsePayload struct {
	NotificationID string `json:"notification_id,omitempty"`
	BatchCount     int64  `json:"batch_count"`
	Folded         bool   `json:"folded"`
	Skipped        bool   `json:"skipped"`
}

func (h *httpHandler) handleLikeEvent(c *gin.Context) {
	var event notifications.LikeEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	outcome, err := h.notifications.RecordLikeEvent(c.Request.Context(), event)
	h.respondRecorded(c, outcome, err)
}

func (h *httpHandler) handleCommentEvent(c *gin.Context) {
	var event notifications.CommentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	outcome, err := h.notifications.RecordCommentEvent(c.Request.Context(), event)
	h.respondRecorded(c, outcome, err)
}

func (h *httpHandler) handleReplyEvent(c *gin.Context) {
	var event notifications.ReplyEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	outcome, err := h.notifications.RecordReplyEvent(c.Request.Context(), event)
	h.respondRecorded(c, outcome, err)
}

func (h *httpHandler) handleFollowerBroadcast(c *gin.Context) {
	var request notifications.FollowerBroadcast
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	broadcast, err := h.notifications.CreateFollowerBroadcast(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": broadcast.ID, "type": broadcast.Type})
}

func (h *httpHandler) respondRecorded(c *gin.Context, outcome notifications.RecordOutcome, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusAccepted
	if outcome.Skipped {
		status = http.StatusOK
	}
	c.JSON(status, recordResponsePayload{
		NotificationID: outcome.NotificationID,
		BatchCount:     outcome.BatchCount,
		Folded:         outcome.Folded,
		Skipped:        outcome.Skipped,
	})
}
