package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/reviewdisplay/reviewdisplay/internal/places"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultCacheTTL  = 24 * time.Hour
	defaultRetention = 7 * 24 * time.Hour

	cachedPlaceName      = "Cached"
	unavailablePlaceName = "Cached (API unavailable)"
)

var (
	// ErrInvalidPlaceID indicates an empty place identifier.
	ErrInvalidPlaceID = errors.New("reviews: place id is required")

	errMissingDatabase = errors.New("database handle is required")
	errMissingFetcher  = errors.New("details fetcher is required")
	noOpLogger         = zap.NewNop()
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
	opServiceNew   = "reviews.service.new"
	opPlaceReviews = "reviews.place_reviews"
	opRefresh      = "reviews.refresh"
	opCached       = "reviews.cached"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// DetailsFetcher retrieves place details from the external reviews API.
type DetailsFetcher interface {
	FetchDetails(ctx context.Context, placeID string) (places.Details, error)
}

type ServiceConfig struct {
	Database  *gorm.DB
	Fetcher   DetailsFetcher
	Clock     func() time.Time
	Logger    *zap.Logger
	CacheTTL  time.Duration
	Retention time.Duration
}

// Service serves place reviews from the local cache while it is fresh and
// from the external API otherwise.
type Service struct {
	db        *gorm.DB
	fetcher   DetailsFetcher
	clock     func() time.Time
	logger    *zap.Logger
	cacheTTL  time.Duration
	retention time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Fetcher == nil {
		return nil, newServiceError(opServiceNew, "missing_fetcher", errMissingFetcher)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	return &Service{
		db:        cfg.Database,
		fetcher:   cfg.Fetcher,
		clock:     clock,
		logger:    logger,
		cacheTTL:  cacheTTL,
		retention: retention,
	}, nil
}

// PlaceReviews returns the place's reviews, preferring the cache while the
// newest cached row is younger than the cache TTL. When the API fails and
// cached rows exist they are returned with a warning instead of an error.
func (s *Service) PlaceReviews(ctx context.Context, placeID string) (PlaceInfo, error) {
	if s.db == nil {
		return PlaceInfo{}, newServiceError(opPlaceReviews, "missing_database", errMissingDatabase)
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return PlaceInfo{}, newServiceError(opPlaceReviews, "invalid_place_id", ErrInvalidPlaceID)
	}

	db := s.db.WithContext(ctx)
	now := s.clock().UTC()

	lastFetch, found, err := s.lastFetch(db, placeID)
	if err != nil {
		s.logError(opPlaceReviews, "last_fetch_query_failed", err, zap.String("place_id", placeID))
		return PlaceInfo{}, newServiceError(opPlaceReviews, "last_fetch_query_failed", err)
	}

	if found && now.Sub(lastFetch) < s.cacheTTL {
		cached, err := s.loadCached(db, placeID)
		if err != nil {
			s.logError(opPlaceReviews, "cache_query_failed", err, zap.String("place_id", placeID))
			return PlaceInfo{}, newServiceError(opPlaceReviews, "cache_query_failed", err)
		}
		if len(cached) > 0 {
			return cachedPlaceInfo(cachedPlaceName, cached), nil
		}
	}

	details, fetchErr := s.fetch(ctx, placeID)
	if fetchErr != nil {
		cached, err := s.loadCached(db, placeID)
		if err != nil {
			s.logError(opPlaceReviews, "cache_query_failed", err, zap.String("place_id", placeID))
		}
		if len(cached) == 0 {
			reason := fetchFailureReason(fetchErr)
			s.logError(opPlaceReviews, reason, fetchErr, zap.String("place_id", placeID))
			return PlaceInfo{}, newServiceError(opPlaceReviews, reason, fetchErr)
		}
		s.loggerOrDefault().Warn("serving cached reviews after fetch failure",
			zap.String("place_id", placeID),
			zap.Int("cached_reviews", len(cached)),
			zap.Error(fetchErr))
		info := cachedPlaceInfo(unavailablePlaceName, cached)
		info.Warning = places.Message(fetchErr)
		return info, nil
	}

	fresh := normalizeReviews(placeID, details.Reviews, now)
	if err := s.store(db, placeID, fresh, now, false); err != nil {
		s.logError(opPlaceReviews, "cache_write_failed", err, zap.String("place_id", placeID))
		return PlaceInfo{}, newServiceError(opPlaceReviews, "cache_write_failed", err)
	}

	return livePlaceInfo(details, fresh), nil
}

// Refresh bypasses the cache. On success the place's cached rows are
// replaced by the fetched set; on failure the cache is left untouched.
func (s *Service) Refresh(ctx context.Context, placeID string) (PlaceInfo, error) {
	if s.db == nil {
		return PlaceInfo{}, newServiceError(opRefresh, "missing_database", errMissingDatabase)
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return PlaceInfo{}, newServiceError(opRefresh, "invalid_place_id", ErrInvalidPlaceID)
	}

	details, err := s.fetch(ctx, placeID)
	if err != nil {
		reason := fetchFailureReason(err)
		s.logError(opRefresh, reason, err, zap.String("place_id", placeID))
		return PlaceInfo{}, newServiceError(opRefresh, reason, err)
	}

	now := s.clock().UTC()
	fresh := normalizeReviews(placeID, details.Reviews, now)
	if err := s.store(s.db.WithContext(ctx), placeID, fresh, now, true); err != nil {
		s.logError(opRefresh, "cache_write_failed", err, zap.String("place_id", placeID))
		return PlaceInfo{}, newServiceError(opRefresh, "cache_write_failed", err)
	}

	s.loggerOrDefault().Info("place reviews refreshed",
		zap.String("place_id", placeID),
		zap.Int("reviews", len(fresh)))
	return livePlaceInfo(details, fresh), nil
}

// CachedReviews returns the cached reviews of a place, newest first.
func (s *Service) CachedReviews(ctx context.Context, placeID string) ([]Review, error) {
	if s.db == nil {
		return nil, newServiceError(opCached, "missing_database", errMissingDatabase)
	}
	cached, err := s.loadCached(s.db.WithContext(ctx), strings.TrimSpace(placeID))
	if err != nil {
		s.logError(opCached, "query_failed", err, zap.String("place_id", placeID))
		return nil, newServiceError(opCached, "query_failed", err)
	}
	return cached, nil
}

func (s *Service) fetch(ctx context.Context, placeID string) (places.Details, error) {
	if s.fetcher == nil {
		return places.Details{}, errMissingFetcher
	}
	return s.fetcher.FetchDetails(ctx, placeID)
}

func (s *Service) lastFetch(db *gorm.DB, placeID string) (time.Time, bool, error) {
	var last sql.NullInt64
	err := db.Model(&Review{}).
		Select("MAX(fetched_at_s)").
		Where("place_id = ?", placeID).
		Row().
		Scan(&last)
	if err != nil {
		return time.Time{}, false, err
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(last.Int64, 0).UTC(), true, nil
}

func (s *Service) loadCached(db *gorm.DB, placeID string) ([]Review, error) {
	var cached []Review
	err := db.Where("place_id = ?", placeID).
		Order("time DESC").
		Find(&cached).Error
	return cached, err
}

// store upserts the fetched reviews and prunes rows older than the
// retention window in one transaction. With replace set, every existing row
// of the place is dropped first.
func (s *Service) store(db *gorm.DB, placeID string, fresh []Review, now time.Time, replace bool) error {
	cutoff := now.Add(-s.retention).Unix()
	return db.Transaction(func(tx *gorm.DB) error {
		if replace {
			if err := tx.Where("place_id = ?", placeID).Delete(&Review{}).Error; err != nil {
				return err
			}
		}
		if len(fresh) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&fresh).Error; err != nil {
				return err
			}
		}
		pruned := tx.Where("place_id = ? AND fetched_at_s < ?", placeID, cutoff).Delete(&Review{})
		if pruned.Error != nil {
			return pruned.Error
		}
		if pruned.RowsAffected > 0 {
			s.loggerOrDefault().Debug("pruned stale reviews",
				zap.String("place_id", placeID),
				zap.Int64("rows", pruned.RowsAffected))
		}
		return nil
	})
}

func normalizeReviews(placeID string, source []places.Review, fetchedAt time.Time) []Review {
	normalized := make([]Review, 0, len(source))
	seen := make(map[string]struct{}, len(source))
	for _, item := range source {
		id := ReviewID(placeID, item.AuthorName, item.Time)
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}

		relative := strings.TrimSpace(item.RelativeTimeDescription)
		if relative == "" && item.Time > 0 {
			relative = humanize.RelTime(time.Unix(item.Time, 0), fetchedAt, "ago", "from now")
		}
		normalized = append(normalized, Review{
			ID:               id,
			PlaceID:          placeID,
			AuthorName:       item.AuthorName,
			AuthorPhoto:      optionalText(item.ProfilePhotoURL),
			AuthorURL:        optionalText(item.AuthorURL),
			Rating:           item.Rating,
			Text:             item.Text,
			Time:             item.Time,
			RelativeTime:     relative,
			FetchedAtSeconds: fetchedAt.Unix(),
		})
	}
	return normalized
}

func livePlaceInfo(details places.Details, fresh []Review) PlaceInfo {
	return PlaceInfo{
		Name:         details.Name,
		Rating:       details.Rating,
		TotalReviews: details.UserRatingsTotal,
		Reviews:      fresh,
		Source:       SourceLive,
	}
}

func cachedPlaceInfo(name string, cached []Review) PlaceInfo {
	return PlaceInfo{
		Name:         name,
		Rating:       AverageRating(cached),
		TotalReviews: len(cached),
		Reviews:      cached,
		Source:       SourceCache,
	}
}

// AverageRating is the arithmetic mean of the ratings rounded to one decimal.
func AverageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, review := range reviews {
		sum += review.Rating
	}
	return math.Round(float64(sum)/float64(len(reviews))*10) / 10
}

func fetchFailureReason(err error) string {
	if errors.Is(err, places.ErrMissingAPIKey) {
		return "missing_api_key"
	}
	return "fetch_failed"
}

func optionalText(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
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
	s.loggerOrDefault().Error("reviews service error", attrs...)
}
