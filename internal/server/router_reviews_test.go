package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reviewdisplay/reviewdisplay/internal/database"
	"github.com/reviewdisplay/reviewdisplay/internal/places"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
	"go.uber.org/zap"
)

func TestPlaceReviewsServesLiveThenCache(testContext *testing.T) {
	server := newTestServer(testContext)

	live := server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", "")
	if live.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", live.Code, live.Body.String())
	}
	first := decodeBody[placeReviewsPayload](testContext, live)
	if first.Source != "live" || first.Name != "Corner Bakery" || first.TotalReviews != 87 {
		testContext.Fatalf("unexpected live payload: %+v", first)
	}
	if len(first.Reviews) != 3 || first.Reviews[0].AuthorName != "Ana" || first.Reviews[0].PlaceID != "ChIJ123" {
		testContext.Fatalf("unexpected live reviews: %+v", first.Reviews)
	}
	if first.Reviews[0].FetchedAt != fixedNow.Format(time.RFC3339) {
		testContext.Fatalf("expected fetched_at %s, got %s", fixedNow.Format(time.RFC3339), first.Reviews[0].FetchedAt)
	}

	cached := decodeBody[placeReviewsPayload](testContext, server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", ""))
	if cached.Source != "cache" || cached.Name != "Cached" || cached.Warning != "" {
		testContext.Fatalf("unexpected cached payload: %+v", cached)
	}
	if len(cached.Reviews) != 3 {
		testContext.Fatalf("expected three cached reviews, got %d", len(cached.Reviews))
	}
	if server.fetcher.calls != 1 {
		testContext.Fatalf("expected a single upstream call, got %d", server.fetcher.calls)
	}
}

func TestPlaceReviewsFallsBackToStaleCache(testContext *testing.T) {
	server := newTestServer(testContext)

	if recorder := server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", ""); recorder.Code != http.StatusOK {
		testContext.Fatalf("expected warm-up to succeed, got %d", recorder.Code)
	}

	server.reviewClock.Advance(25 * time.Hour)
	server.fetcher.set(places.Details{}, fmt.Errorf("%w: quota exceeded", places.ErrUpstream))

	recorder := server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", "")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected fallback to succeed, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody[placeReviewsPayload](testContext, recorder)
	if payload.Source != "cache" || payload.Name != "Cached (API unavailable)" {
		testContext.Fatalf("unexpected fallback payload: %+v", payload)
	}
	if !strings.Contains(payload.Warning, "quota exceeded") {
		testContext.Fatalf("expected warning to carry upstream reason, got %q", payload.Warning)
	}
	if len(payload.Reviews) != 3 {
		testContext.Fatalf("expected cached reviews, got %d", len(payload.Reviews))
	}
}

func TestPlaceReviewsFailureWithoutCache(testContext *testing.T) {
	testCases := []struct {
		name        string
		fetchErr    error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "missing-api-key",
			fetchErr:    places.ErrMissingAPIKey,
			wantCode:    "reviews.place_reviews.missing_api_key",
			wantMessage: "Google Places API key not configured",
		},
		{
			name:        "upstream-error",
			fetchErr:    fmt.Errorf("%w: REQUEST_DENIED", places.ErrUpstream),
			wantCode:    "reviews.place_reviews.fetch_failed",
			wantMessage: "REQUEST_DENIED",
		},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			server := newTestServer(t)
			server.fetcher.set(places.Details{}, testCase.fetchErr)

			recorder := server.do(t, http.MethodGet, "/api/reviews/ChIJ999", "")
			if recorder.Code != http.StatusInternalServerError {
				t.Fatalf("expected server error, got %d", recorder.Code)
			}
			body := decodeBody[errorPayload](t, recorder)
			if body.Code != testCase.wantCode {
				t.Fatalf("expected code %q, got %q", testCase.wantCode, body.Code)
			}
			if !strings.Contains(body.Error, testCase.wantMessage) {
				t.Fatalf("expected message to contain %q, got %q", testCase.wantMessage, body.Error)
			}
		})
	}
}

func TestRefreshReplacesCachedReviews(testContext *testing.T) {
	server := newTestServer(testContext)
	server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", "")

	server.fetcher.set(places.Details{
		Name:             "Corner Bakery",
		Rating:           4.8,
		UserRatingsTotal: 90,
		Reviews: []places.Review{
			{AuthorName: "Dora", Rating: 5, Text: "Fresh every morning", Time: 1700000400},
		},
	}, nil)

	refreshed := server.do(testContext, http.MethodPost, "/api/reviews/ChIJ123/refresh", "")
	if refreshed.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d: %s", refreshed.Code, refreshed.Body.String())
	}
	payload := decodeBody[placeReviewsPayload](testContext, refreshed)
	if payload.Source != "live" || len(payload.Reviews) != 1 || payload.Reviews[0].AuthorName != "Dora" {
		testContext.Fatalf("unexpected refresh payload: %+v", payload)
	}

	cached := decodeBody[placeReviewsPayload](testContext, server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", ""))
	if len(cached.Reviews) != 1 || cached.Reviews[0].AuthorName != "Dora" {
		testContext.Fatalf("expected refresh to replace the cache, got %+v", cached.Reviews)
	}
}

func TestRefreshFailureKeepsCache(testContext *testing.T) {
	server := newTestServer(testContext)
	server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", "")

	server.fetcher.set(places.Details{}, fmt.Errorf("%w: timeout", places.ErrUpstream))
	failed := server.do(testContext, http.MethodPost, "/api/reviews/ChIJ123/refresh", "")
	if failed.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected server error, got %d", failed.Code)
	}
	if body := decodeBody[errorPayload](testContext, failed); body.Code != "reviews.refresh.fetch_failed" {
		testContext.Fatalf("unexpected error code %q", body.Code)
	}

	cached := decodeBody[placeReviewsPayload](testContext, server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", ""))
	if len(cached.Reviews) != 3 {
		testContext.Fatalf("expected cache to survive failed refresh, got %d reviews", len(cached.Reviews))
	}
}

func TestRefreshRateLimited(testContext *testing.T) {
	server := newTestServer(testContext, func(deps *Dependencies) {
		deps.RefreshLimiter = denyingLimiter{}
	})

	recorder := server.do(testContext, http.MethodPost, "/api/reviews/ChIJ123/refresh", "")
	if recorder.Code != http.StatusTooManyRequests {
		testContext.Fatalf("expected too many requests, got %d", recorder.Code)
	}
	if server.fetcher.calls != 0 {
		testContext.Fatalf("expected no upstream call when limited, got %d", server.fetcher.calls)
	}

	if reads := server.do(testContext, http.MethodGet, "/api/reviews/ChIJ123", ""); reads.Code != http.StatusOK {
		testContext.Fatalf("expected reads to stay unlimited, got %d", reads.Code)
	}
}

func TestPlaceReviewsTransportFailureHidesAPIKey(testContext *testing.T) {
	unreachable := httptest.NewServer(http.NotFoundHandler())
	endpoint := unreachable.URL
	unreachable.Close()

	client, err := places.NewClient(places.ClientConfig{APIKey: "secret-places-key", Endpoint: endpoint})
	if err != nil {
		testContext.Fatalf("failed to build places client: %v", err)
	}
	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "unreachable.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	reviewService, err := reviews.NewService(reviews.ServiceConfig{Database: db, Fetcher: client})
	if err != nil {
		testContext.Fatalf("failed to build review service: %v", err)
	}
	server := newTestServer(testContext, func(deps *Dependencies) {
		deps.ReviewService = reviewService
	})

	recorder := server.do(testContext, http.MethodGet, "/api/reviews/ChIJ1", "")
	if recorder.Code != http.StatusInternalServerError {
		testContext.Fatalf("expected server error, got %d", recorder.Code)
	}
	if strings.Contains(recorder.Body.String(), "secret-places-key") {
		testContext.Fatalf("response exposes the places api key: %s", recorder.Body.String())
	}
	body := decodeBody[errorPayload](testContext, recorder)
	if body.Code != "reviews.place_reviews.fetch_failed" {
		testContext.Fatalf("unexpected error code %q", body.Code)
	}
	if strings.HasPrefix(body.Error, places.ErrUpstream.Error()) || !strings.Contains(body.Error, "details request failed") {
		testContext.Fatalf("expected bare upstream reason, got %q", body.Error)
	}
}
