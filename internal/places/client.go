// Package places talks to the Google Places Details API.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "https://maps.googleapis.com/maps/api/place/details/json"
	defaultTimeout  = 10 * time.Second
	detailsFields   = "name,rating,user_ratings_total,reviews"
	statusOK        = "OK"
)

var (
	// ErrMissingAPIKey indicates that no API key is configured. It is a
	// configuration problem and is reported separately from call failures.
	ErrMissingAPIKey = errors.New("places: " + missingAPIKeyMessage)
	// ErrUpstream wraps every failure reported by or while talking to the API.
	ErrUpstream = errors.New("places: upstream request failed")

	errMissingPlaceID = errors.New("place id must not be empty")
)

const missingAPIKeyMessage = "Google Places API key not configured"

// upstreamError carries the client-facing reason of an upstream failure.
// The reason never includes the request URL, which holds the API key.
type upstreamError struct {
	reason string
}

func (e *upstreamError) Error() string {
	return ErrUpstream.Error() + ": " + e.reason
}

func (e *upstreamError) Is(target error) bool {
	return target == ErrUpstream
}

func upstreamErrorf(format string, args ...any) error {
	return &upstreamError{reason: fmt.Sprintf(format, args...)}
}

// transportReason drops the *url.Error wrapper so the request URL is not
// echoed into the reason.
func transportReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return fmt.Sprintf("details request failed: %v", urlErr.Err)
	}
	return err.Error()
}

// Message returns the reason of a FetchDetails error without the package
// prefix, suitable for API clients.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return missingAPIKeyMessage
	}
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		return upstream.reason
	}
	return err.Error()
}

// ClientConfig bundles configuration required to instantiate a Client.
type ClientConfig struct {
	APIKey            string
	Endpoint          string
	HTTPClient        *http.Client
	Timeout           time.Duration
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// Review is a single review as reported by the API.
type Review struct {
	AuthorName              string `json:"author_name"`
	AuthorURL               string `json:"author_url"`
	ProfilePhotoURL         string `json:"profile_photo_url"`
	Rating                  int    `json:"rating"`
	RelativeTimeDescription string `json:"relative_time_description"`
	Text                    string `json:"text"`
	Time                    int64  `json:"time"`
}

// Details is the aggregate place record returned by FetchDetails.
type Details struct {
	Name             string
	Rating           float64
	UserRatingsTotal int
	Reviews          []Review
}

// Client fetches place details. Calls are throttled by a shared token bucket.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient constructs a Client. A blank API key is accepted so the service
// can still serve cached data; FetchDetails then returns ErrMissingAPIKey.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("places: invalid endpoint: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   endpoint,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}, nil
}

type detailsResponse struct {
	Result *struct {
		Name             string   `json:"name"`
		Rating           float64  `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		Reviews          []Review `json:"reviews"`
	} `json:"result"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// FetchDetails retrieves name, rating, total and reviews for a place id.
func (c *Client) FetchDetails(ctx context.Context, placeID string) (Details, error) {
	if c.apiKey == "" {
		return Details{}, ErrMissingAPIKey
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return Details{}, upstreamErrorf("%v", errMissingPlaceID)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Details{}, upstreamErrorf("%v", err)
	}

	requestURL, err := c.detailsURL(placeID)
	if err != nil {
		return Details{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Details{}, upstreamErrorf("%s", transportReason(err))
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return Details{}, upstreamErrorf("%s", transportReason(err))
	}
	defer response.Body.Close()

	c.logger.Debug("places details fetched",
		zap.String("place_id", placeID),
		zap.Int("status", response.StatusCode),
		zap.Duration("latency", time.Since(started)))

	if response.StatusCode != http.StatusOK {
		return Details{}, upstreamErrorf("details request returned status %d", response.StatusCode)
	}

	var document detailsResponse
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return Details{}, upstreamErrorf("decode details: %v", err)
	}

	if document.Status != statusOK {
		message := document.ErrorMessage
		if message == "" {
			message = "Google API error: " + document.Status
		}
		return Details{}, upstreamErrorf("%s", message)
	}
	if document.Result == nil {
		return Details{}, upstreamErrorf("no place found")
	}

	reviews := document.Result.Reviews
	if reviews == nil {
		reviews = []Review{}
	}
	return Details{
		Name:             document.Result.Name,
		Rating:           document.Result.Rating,
		UserRatingsTotal: document.Result.UserRatingsTotal,
		Reviews:          reviews,
	}, nil
}

func (c *Client) detailsURL(placeID string) (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", upstreamErrorf("invalid endpoint")
	}
	query := parsed.Query()
	query.Set("place_id", placeID)
	query.Set("fields", detailsFields)
	query.Set("reviews_no_translations", "true")
	query.Set("key", c.apiKey)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
