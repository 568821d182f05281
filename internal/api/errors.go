package api

import (
	"errors"
	"net/http"
	"time"

	"booking-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorMessage = "An internal server error occurred."

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	var gwErr *service.GatewayError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": verr.Fields,
		})
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gwErr.Message,
		})
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid webhook signature",
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrReindexInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": internalErrorMessage,
		})
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseSchedule parses request dates. An empty start date is left zero for
// the service to reject.
func parseSchedule(start string, end *string) (time.Time, *time.Time, error) {
	fields := map[string]string{}

	var startDate time.Time
	if start != "" {
		t, ok := parseDate(start)
		if !ok {
			fields["startDate"] = "must be a date (YYYY-MM-DD)"
		}
		startDate = t
	}

	var endDate *time.Time
	if end != nil && *end != "" {
		t, ok := parseDate(*end)
		if !ok {
			fields["endDate"] = "must be a date (YYYY-MM-DD)"
		}
		endDate = &t
	}

	if len(fields) > 0 {
		return time.Time{}, nil, &service.ValidationError{Fields: fields}
	}
	return startDate, endDate, nil
}
