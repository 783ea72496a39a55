package widgets

import (
	"time"
)

// Theme selects the embed colour palette.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Layout selects one of the fixed embed templates.
type Layout string

const (
	LayoutBadge    Layout = "badge"
	LayoutCarousel Layout = "carousel"
	LayoutGrid     Layout = "grid"
	LayoutList     Layout = "list"
)

// Defaults applied when a create request omits a field.
const (
	DefaultTheme        = ThemeLight
	DefaultLayout       = LayoutCarousel
	DefaultMaxReviews   = 5
	DefaultMinRating    = 4
	DefaultVisibleCards = 2
)

// Widget is a saved display configuration bound to one external place id.
type Widget struct {
	ID           string    `gorm:"column:id;primaryKey;size:32;not null"`
	PlaceID      string    `gorm:"column:place_id;size:512;not null;index" validate:"required,max=512"`
	Name         *string   `gorm:"column:name;size:320" validate:"omitempty,max=320"`
	Theme        Theme     `gorm:"column:theme;size:16;not null" validate:"oneof=light dark"`
	Layout       Layout    `gorm:"column:layout;size:16;not null" validate:"oneof=badge carousel grid list"`
	MaxReviews   int       `gorm:"column:max_reviews;not null" validate:"gte=1,lte=50"`
	MinRating    int       `gorm:"column:min_rating;not null" validate:"gte=1,lte=5"`
	VisibleCards int       `gorm:"column:visible_cards;not null;default:2" validate:"gte=1,lte=6"`
	ShowAvatar   bool      `gorm:"column:show_avatar;not null"`
	ShowDate     bool      `gorm:"column:show_date;not null"`
	ShowRating   bool      `gorm:"column:show_rating;not null"`
	CustomCSS    *string   `gorm:"column:custom_css;type:text" validate:"omitempty,max=20000"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Widget) TableName() string {
	return "widgets"
}

// Input carries widget fields supplied by a client. A nil field means
// "not provided": Create substitutes the default, Update keeps the stored value.
type Input struct {
	PlaceID      *string
	Name         *string
	Theme        *string
	Layout       *string
	MaxReviews   *int
	MinRating    *int
	VisibleCards *int
	ShowAvatar   *bool
	ShowDate     *bool
	ShowRating   *bool
	CustomCSS    *string
}
