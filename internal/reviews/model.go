package reviews

import (
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Review is a cached third-party review for one place.
type Review struct {
	ID               string  `gorm:"column:id;primaryKey;size:32;not null"`
	PlaceID          string  `gorm:"column:place_id;primaryKey;size:512;not null;index:idx_reviews_place_id"`
	AuthorName       string  `gorm:"column:author_name;size:320"`
	AuthorPhoto      *string `gorm:"column:author_photo;size:2048"`
	AuthorURL        *string `gorm:"column:author_url;size:2048"`
	Rating           int     `gorm:"column:rating;not null"`
	Text             string  `gorm:"column:text;type:text"`
	Time             int64   `gorm:"column:time;not null;default:0"`
	RelativeTime     string  `gorm:"column:relative_time;size:64"`
	FetchedAtSeconds int64   `gorm:"column:fetched_at_s;not null;default:0;index:idx_reviews_fetched_at"`
}

// TableName provides the explicit table binding for GORM.
func (Review) TableName() string {
	return "reviews"
}

// Source tells whether a result came from the API or the local cache.
type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache"
)

// PlaceInfo is the aggregate place record plus its reviews.
type PlaceInfo struct {
	Name         string
	Rating       float64
	TotalReviews int
	Reviews      []Review
	Source       Source
	// Warning is set when the API failed and cached reviews were served instead.
	Warning string
}

// ReviewID derives the stable identifier of a review from its place, author
// and timestamp: a 32-bit polynomial string hash rendered in base 36.
func ReviewID(placeID, authorName string, unixTime int64) string {
	key := fmt.Sprintf("%s-%s-%d", placeID, authorName, unixTime)
	var hash int32
	for _, unit := range utf16.Encode([]rune(key)) {
		hash = hash<<5 - hash + int32(unit)
	}
	value := int64(hash)
	if value < 0 {
		value = -value
	}
	return strconv.FormatInt(value, 36)
}

// Filter keeps reviews rated at least minRating, capped at maxReviews, in
// their original order.
func Filter(reviews []Review, minRating, maxReviews int) []Review {
	filtered := make([]Review, 0, min(len(reviews), max(maxReviews, 0)))
	for _, review := range reviews {
		if len(filtered) >= maxReviews {
			break
		}
		if review.Rating < minRating {
			continue
		}
		filtered = append(filtered, review)
	}
	return filtered
}
