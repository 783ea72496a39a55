package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
)

type reviewPayload struct {
	ID           string  `json:"id"`
	PlaceID      string  `json:"place_id"`
	AuthorName   string  `json:"author_name"`
	AuthorPhoto  *string `json:"author_photo"`
	AuthorURL    *string `json:"author_url"`
	Rating       int     `json:"rating"`
	Text         string  `json:"text"`
	Time         int64   `json:"time"`
	RelativeTime string  `json:"relative_time"`
	FetchedAt    string  `json:"fetched_at"`
}

type placeReviewsPayload struct {
	Name         string          `json:"name"`
	Rating       float64         `json:"rating"`
	TotalReviews int             `json:"totalReviews"`
	Reviews      []reviewPayload `json:"reviews"`
	Source       string          `json:"source"`
	Warning      string          `json:"warning,omitempty"`
}

func newReviewPayloads(source []reviews.Review) []reviewPayload {
	payloads := make([]reviewPayload, 0, len(source))
	for _, review := range source {
		payloads = append(payloads, reviewPayload{
			ID:           review.ID,
			PlaceID:      review.PlaceID,
			AuthorName:   review.AuthorName,
			AuthorPhoto:  review.AuthorPhoto,
			AuthorURL:    review.AuthorURL,
			Rating:       review.Rating,
			Text:         review.Text,
			Time:         review.Time,
			RelativeTime: review.RelativeTime,
			FetchedAt:    time.Unix(review.FetchedAtSeconds, 0).UTC().Format(time.RFC3339),
		})
	}
	return payloads
}

func newPlaceReviewsPayload(info reviews.PlaceInfo) placeReviewsPayload {
	return placeReviewsPayload{
		Name:         info.Name,
		Rating:       info.Rating,
		TotalReviews: info.TotalReviews,
		Reviews:      newReviewPayloads(info.Reviews),
		Source:       string(info.Source),
		Warning:      info.Warning,
	}
}

func (h *httpHandler) handlePlaceReviews(c *gin.Context) {
	info, err := h.reviewService.PlaceReviews(c.Request.Context(), c.Param("placeId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPlaceReviewsPayload(info))
}

func (h *httpHandler) handleRefreshReviews(c *gin.Context) {
	info, err := h.reviewService.Refresh(c.Request.Context(), c.Param("placeId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPlaceReviewsPayload(info))
}
