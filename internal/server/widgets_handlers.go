package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
)

// widgetRequestPayload uses pointers so that absent and null fields can be
// told apart from zero values.
type widgetRequestPayload struct {
	PlaceID      *string `json:"place_id"`
	Name         *string `json:"name"`
	Theme        *string `json:"theme"`
	Layout       *string `json:"layout"`
	MaxReviews   *int    `json:"max_reviews"`
	MinRating    *int    `json:"min_rating"`
	VisibleCards *int    `json:"visible_cards"`
	ShowAvatar   *bool   `json:"show_avatar"`
	ShowDate     *bool   `json:"show_date"`
	ShowRating   *bool   `json:"show_rating"`
	CustomCSS    *string `json:"custom_css"`
}

func (p widgetRequestPayload) input() widgets.Input {
	return widgets.Input{
		PlaceID:      p.PlaceID,
		Name:         p.Name,
		Theme:        p.Theme,
		Layout:       p.Layout,
		MaxReviews:   p.MaxReviews,
		MinRating:    p.MinRating,
		VisibleCards: p.VisibleCards,
		ShowAvatar:   p.ShowAvatar,
		ShowDate:     p.ShowDate,
		ShowRating:   p.ShowRating,
		CustomCSS:    p.CustomCSS,
	}
}

type widgetPayload struct {
	ID           string  `json:"id"`
	PlaceID      string  `json:"place_id"`
	Name         *string `json:"name"`
	Theme        string  `json:"theme"`
	Layout       string  `json:"layout"`
	MaxReviews   int     `json:"max_reviews"`
	MinRating    int     `json:"min_rating"`
	VisibleCards int     `json:"visible_cards"`
	ShowAvatar   bool    `json:"show_avatar"`
	ShowDate     bool    `json:"show_date"`
	ShowRating   bool    `json:"show_rating"`
	CustomCSS    *string `json:"custom_css"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func newWidgetPayload(widget widgets.Widget) widgetPayload {
	return widgetPayload{
		ID:           widget.ID,
		PlaceID:      widget.PlaceID,
		Name:         widget.Name,
		Theme:        string(widget.Theme),
		Layout:       string(widget.Layout),
		MaxReviews:   widget.MaxReviews,
		MinRating:    widget.MinRating,
		VisibleCards: widget.VisibleCards,
		ShowAvatar:   widget.ShowAvatar,
		ShowDate:     widget.ShowDate,
		ShowRating:   widget.ShowRating,
		CustomCSS:    widget.CustomCSS,
		CreatedAt:    widget.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    widget.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *httpHandler) handleListWidgets(c *gin.Context) {
	stored, err := h.widgetService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response := make([]widgetPayload, 0, len(stored))
	for _, widget := range stored {
		response = append(response, newWidgetPayload(widget))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetWidget(c *gin.Context) {
	widget, err := h.widgetService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newWidgetPayload(widget))
}

func (h *httpHandler) handleCreateWidget(c *gin.Context) {
	var request widgetRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	widget, err := h.widgetService.Create(c.Request.Context(), request.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newWidgetPayload(widget))
}

func (h *httpHandler) handleUpdateWidget(c *gin.Context) {
	// Unknown ids answer 404 even when the body is malformed.
	if _, err := h.widgetService.Get(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	var request widgetRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	widget, err := h.widgetService.Update(c.Request.Context(), c.Param("id"), request.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newWidgetPayload(widget))
}

func (h *httpHandler) handleDeleteWidget(c *gin.Context) {
	if err := h.widgetService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
