package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reviewdisplay/reviewdisplay/internal/dashboard"
	"github.com/reviewdisplay/reviewdisplay/internal/database"
	"github.com/reviewdisplay/reviewdisplay/internal/places"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
	"github.com/reviewdisplay/reviewdisplay/internal/widgetscript"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	mu      sync.Mutex
	details places.Details
	err     error
	calls   int
}

func (f *stubFetcher) FetchDetails(context.Context, string) (places.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.details, f.err
}

func (f *stubFetcher) set(details places.Details, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = details
	f.err = err
}

type counterIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *counterIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("w%07d", p.next), nil
}

type denyingLimiter struct{}

func (denyingLimiter) Allow(string) bool { return false }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type testServer struct {
	handler     http.Handler
	fetcher     *stubFetcher
	reviewClock *manualClock
}

type testServerOption func(*Dependencies)

func newTestServer(t *testing.T, options ...testServerOption) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	var tick int64
	var tickMu sync.Mutex
	clock := func() time.Time {
		tickMu.Lock()
		defer tickMu.Unlock()
		tick++
		return fixedNow.Add(time.Duration(tick) * time.Second)
	}

	widgetService, err := widgets.NewService(widgets.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &counterIDProvider{},
	})
	if err != nil {
		t.Fatalf("failed to build widget service: %v", err)
	}

	fetcher := &stubFetcher{}
	fetcher.set(places.Details{
		Name:             "Corner Bakery",
		Rating:           4.4,
		UserRatingsTotal: 87,
		Reviews: []places.Review{
			{AuthorName: "Ana", Rating: 5, Text: "Great bread", Time: 1700000300, RelativeTimeDescription: "a week ago"},
			{AuthorName: "Ben", Rating: 2, Text: "Too slow", Time: 1700000200, RelativeTimeDescription: "2 weeks ago"},
			{AuthorName: "Cleo", Rating: 4, Text: "Nice coffee", Time: 1700000100, RelativeTimeDescription: "a month ago"},
		},
	}, nil)

	reviewClock := &manualClock{now: fixedNow}
	reviewService, err := reviews.NewService(reviews.ServiceConfig{
		Database: db,
		Fetcher:  fetcher,
		Clock:    reviewClock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build review service: %v", err)
	}

	renderer, err := widgetscript.NewRenderer()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}

	deps := Dependencies{
		WidgetService:  widgetService,
		ReviewService:  reviewService,
		ScriptRenderer: renderer,
		Dashboard:      dashboard.FileSystem(),
		Logger:         zap.NewNop(),
		Clock:          func() time.Time { return fixedNow },
	}
	for _, option := range options {
		option(&deps)
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return testServer{handler: handler, fetcher: fetcher, reviewClock: reviewClock}
}

func (s testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		request.Header.Set(headers[i], headers[i+1])
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}
