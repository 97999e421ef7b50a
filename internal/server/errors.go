package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError maps an engine error onto a status code. The engine has
// already logged storage failures, so only the mapping is logged here.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, short := classifyError(err)
	payload := errorPayload{Error: short}
	var serviceErr *notifications.ServiceError
	if errors.As(err, &serviceErr) {
		payload.Code = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", payload.Code),
			zap.Error(err))
	}
	c.JSON(status, payload)
}

func classifyError(err error) (int, string) {
	var validationErr *notifications.ValidationError
	var notFoundErr *notifications.NotFoundError
	var configurationErr *notifications.ConfigurationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &configurationErr):
		return http.StatusUnprocessableEntity, "unmapped_event"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
