package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
	"github.com/reviewdisplay/reviewdisplay/internal/widgetscript"
	"go.uber.org/zap"
)

const (
	scriptSuffix       = ".js"
	scriptContentType  = "application/javascript; charset=utf-8"
	scriptCacheControl = "public, max-age=300"
	defaultScriptHost  = "localhost:3000"
)

type embedWidgetPayload struct {
	ID           string  `json:"id"`
	Theme        string  `json:"theme"`
	Layout       string  `json:"layout"`
	VisibleCards int     `json:"visible_cards"`
	ShowAvatar   bool    `json:"show_avatar"`
	ShowDate     bool    `json:"show_date"`
	ShowRating   bool    `json:"show_rating"`
	CustomCSS    *string `json:"custom_css"`
}

type embedPlacePayload struct {
	Name         string  `json:"name"`
	Rating       float64 `json:"rating"`
	TotalReviews int     `json:"totalReviews"`
}

type embedDataPayload struct {
	Widget  embedWidgetPayload `json:"widget"`
	Place   embedPlacePayload  `json:"place"`
	Reviews []reviewPayload    `json:"reviews"`
	Warning string             `json:"warning,omitempty"`
}

func (h *httpHandler) handleEmbedData(c *gin.Context) {
	widget, err := h.widgetService.Get(c.Request.Context(), c.Param("widgetId"))
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := h.reviewService.PlaceReviews(c.Request.Context(), widget.PlaceID)
	if err != nil {
		respondError(c, err)
		return
	}

	visibleCards := widget.VisibleCards
	if visibleCards <= 0 {
		visibleCards = widgets.DefaultVisibleCards
	}

	c.JSON(http.StatusOK, embedDataPayload{
		Widget: embedWidgetPayload{
			ID:           widget.ID,
			Theme:        string(widget.Theme),
			Layout:       string(widget.Layout),
			VisibleCards: visibleCards,
			ShowAvatar:   widget.ShowAvatar,
			ShowDate:     widget.ShowDate,
			ShowRating:   widget.ShowRating,
			CustomCSS:    widget.CustomCSS,
		},
		Place: embedPlacePayload{
			Name:         info.Name,
			Rating:       info.Rating,
			TotalReviews: info.TotalReviews,
		},
		Reviews: newReviewPayloads(reviews.Filter(info.Reviews, widget.MinRating, widget.MaxReviews)),
		Warning: info.Warning,
	})
}

func (h *httpHandler) handleEmbedScript(c *gin.Context) {
	file := c.Param("file")
	widgetID, isScript := strings.CutSuffix(file, scriptSuffix)
	if !isScript || widgetID == "" {
		c.String(http.StatusNotFound, "Not found")
		return
	}

	widget, err := h.widgetService.Get(c.Request.Context(), widgetID)
	if errors.Is(err, widgets.ErrWidgetNotFound) {
		c.Data(http.StatusNotFound, scriptContentType, []byte(widgetscript.NotFoundScript))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	var script bytes.Buffer
	err = h.scripts.Render(&script, widgetscript.Script{
		WidgetID: widget.ID,
		BaseURL:  requestBaseURL(c),
	})
	if err != nil {
		h.logger.Error("embed script render failed", zap.String("widget_id", widget.ID), zap.Error(err))
		c.String(http.StatusInternalServerError, "console.error('ReviewWidget: Script unavailable');")
		return
	}

	c.Header("Cache-Control", scriptCacheControl)
	c.Data(http.StatusOK, scriptContentType, script.Bytes())
}

// requestBaseURL rebuilds the public origin from the forwarded scheme and
// the Host header.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
		scheme, _, _ = strings.Cut(forwarded, ",")
		scheme = strings.ToLower(strings.TrimSpace(scheme))
	}
	if scheme != "http" && scheme != "https" {
		scheme = "http"
	}

	host := strings.TrimSpace(c.Request.Host)
	if host == "" {
		host = defaultScriptHost
	}
	return scheme + "://" + host
}
