package widgets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrWidgetNotFound indicates that no widget exists for the identifier.
	ErrWidgetNotFound = errors.New("widgets: widget not found")
	// ErrPlaceIDRequired indicates a missing or blank place id.
	ErrPlaceIDRequired = errors.New("widgets: place_id is required")
	// ErrInvalidWidget indicates that one or more fields failed validation.
	ErrInvalidWidget = errors.New("widgets: invalid widget")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "widgets.service.new"
	opList       = "widgets.list"
	opGet        = "widgets.get"
	opCreate     = "widgets.create"
	opUpdate     = "widgets.update"
	opDelete     = "widgets.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists widget configurations.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns every widget, newest first.
func (s *Service) List(ctx context.Context) ([]Widget, error) {
	if s.db == nil {
		return nil, newServiceError(opList, "missing_database", errMissingDatabase)
	}

	var widgets []Widget
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&widgets).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	return widgets, nil
}

// Get loads a widget by id.
func (s *Service) Get(ctx context.Context, id string) (Widget, error) {
	if s.db == nil {
		return Widget{}, newServiceError(opGet, "missing_database", errMissingDatabase)
	}
	widget, err := s.find(s.db.WithContext(ctx), id)
	if errors.Is(err, ErrWidgetNotFound) {
		return Widget{}, newServiceError(opGet, "not_found", err)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("widget_id", id))
		return Widget{}, newServiceError(opGet, "query_failed", err)
	}
	return widget, nil
}

// Create stores a new widget with a server generated id. Absent and zero
// valued fields take their defaults; display toggles default to on.
func (s *Service) Create(ctx context.Context, input Input) (Widget, error) {
	if s.db == nil {
		return Widget{}, newServiceError(opCreate, "missing_database", errMissingDatabase)
	}
	if s.idProvider == nil {
		return Widget{}, newServiceError(opCreate, "missing_id_provider", errMissingIDProvider)
	}

	placeID := strings.TrimSpace(stringValue(input.PlaceID))
	if placeID == "" {
		return Widget{}, newServiceError(opCreate, "missing_place_id", ErrPlaceIDRequired)
	}

	now := s.clock().UTC()
	widget := Widget{
		PlaceID:      placeID,
		Name:         optionalText(input.Name),
		Theme:        Theme(textOrDefault(input.Theme, string(DefaultTheme))),
		Layout:       Layout(textOrDefault(input.Layout, string(DefaultLayout))),
		MaxReviews:   intOrDefault(input.MaxReviews, DefaultMaxReviews),
		MinRating:    intOrDefault(input.MinRating, DefaultMinRating),
		VisibleCards: intOrDefault(input.VisibleCards, DefaultVisibleCards),
		ShowAvatar:   input.ShowAvatar == nil || *input.ShowAvatar,
		ShowDate:     input.ShowDate == nil || *input.ShowDate,
		ShowRating:   input.ShowRating == nil || *input.ShowRating,
		CustomCSS:    optionalText(input.CustomCSS),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateWidget(widget); err != nil {
		return Widget{}, newServiceError(opCreate, "invalid_widget", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Widget{}, newServiceError(opCreate, "id_generation_failed", err)
	}
	widget.ID = id

	if err := s.db.WithContext(ctx).Create(&widget).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("widget_id", id))
		return Widget{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.loggerOrDefault().Info("widget created", zap.String("widget_id", id), zap.String("place_id", placeID))
	return widget, nil
}

// Update merges the provided fields into the stored widget. Fields left nil
// keep their stored value.
func (s *Service) Update(ctx context.Context, id string, input Input) (Widget, error) {
	if s.db == nil {
		return Widget{}, newServiceError(opUpdate, "missing_database", errMissingDatabase)
	}

	var updated Widget
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(tx, id)
		if errors.Is(err, ErrWidgetNotFound) {
			return newServiceError(opUpdate, "not_found", err)
		}
		if err != nil {
			s.logError(opUpdate, "query_failed", err, zap.String("widget_id", id))
			return newServiceError(opUpdate, "query_failed", err)
		}

		merged, err := mergeInput(existing, input)
		if err != nil {
			return newServiceError(opUpdate, "missing_place_id", err)
		}
		merged.UpdatedAt = s.clock().UTC()
		if err := validateWidget(merged); err != nil {
			return newServiceError(opUpdate, "invalid_widget", err)
		}

		if err := tx.Save(&merged).Error; err != nil {
			s.logError(opUpdate, "save_failed", err, zap.String("widget_id", id))
			return newServiceError(opUpdate, "save_failed", err)
		}
		updated = merged
		return nil
	})
	if txErr != nil {
		return Widget{}, txErr
	}
	return updated, nil
}

// Delete removes the widget. Cached reviews for its place are left alone.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return newServiceError(opDelete, "missing_database", errMissingDatabase)
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Widget{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("widget_id", id))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, "not_found", ErrWidgetNotFound)
	}

	s.loggerOrDefault().Info("widget deleted", zap.String("widget_id", id))
	return nil
}

func (s *Service) find(db *gorm.DB, id string) (Widget, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Widget{}, ErrWidgetNotFound
	}
	var widget Widget
	err := db.Where("id = ?", trimmed).Take(&widget).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Widget{}, ErrWidgetNotFound
	}
	if err != nil {
		return Widget{}, err
	}
	return widget, nil
}

func mergeInput(existing Widget, input Input) (Widget, error) {
	merged := existing
	if input.PlaceID != nil {
		placeID := strings.TrimSpace(*input.PlaceID)
		if placeID == "" {
			return Widget{}, ErrPlaceIDRequired
		}
		merged.PlaceID = placeID
	}
	if input.Name != nil {
		merged.Name = optionalText(input.Name)
	}
	if input.Theme != nil {
		merged.Theme = Theme(strings.TrimSpace(*input.Theme))
	}
	if input.Layout != nil {
		merged.Layout = Layout(strings.TrimSpace(*input.Layout))
	}
	if input.MaxReviews != nil {
		merged.MaxReviews = *input.MaxReviews
	}
	if input.MinRating != nil {
		merged.MinRating = *input.MinRating
	}
	if input.VisibleCards != nil {
		merged.VisibleCards = *input.VisibleCards
	}
	if input.ShowAvatar != nil {
		merged.ShowAvatar = *input.ShowAvatar
	}
	if input.ShowDate != nil {
		merged.ShowDate = *input.ShowDate
	}
	if input.ShowRating != nil {
		merged.ShowRating = *input.ShowRating
	}
	if input.CustomCSS != nil {
		merged.CustomCSS = optionalText(input.CustomCSS)
	}
	return merged, nil
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalText(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	text := *value
	return &text
}

func textOrDefault(value *string, fallback string) string {
	trimmed := strings.TrimSpace(stringValue(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func intOrDefault(value *int, fallback int) int {
	if value == nil || *value == 0 {
		return fallback
	}
	return *value
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("widgets service error", attrs...)
}
