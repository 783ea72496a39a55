package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reviewdisplay/reviewdisplay/internal/places"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
)

type errorPayload struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type codedError interface {
	error
	Code() string
}

// respondError maps service errors onto HTTP statuses. Services have
// already logged anything unexpected.
func respondError(c *gin.Context, err error) {
	status, message := classifyError(err)
	payload := errorPayload{Error: message}

	var coded codedError
	if errors.As(err, &coded) {
		payload.Code = coded.Code()
	}
	var validationErr *widgets.ValidationError
	if errors.As(err, &validationErr) {
		payload.Fields = validationErr.Fields
	}
	_ = c.Error(err)
	c.JSON(status, payload)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, widgets.ErrWidgetNotFound):
		return http.StatusNotFound, "Widget not found"
	case errors.Is(err, widgets.ErrPlaceIDRequired):
		return http.StatusBadRequest, "place_id is required"
	case errors.Is(err, widgets.ErrInvalidWidget):
		var validationErr *widgets.ValidationError
		if errors.As(err, &validationErr) {
			return http.StatusBadRequest, validationErr.Error()
		}
		return http.StatusBadRequest, widgets.ErrInvalidWidget.Error()
	case errors.Is(err, reviews.ErrInvalidPlaceID):
		return http.StatusBadRequest, "place id is required"
	case errors.Is(err, places.ErrMissingAPIKey), errors.Is(err, places.ErrUpstream):
		return http.StatusInternalServerError, places.Message(err)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
