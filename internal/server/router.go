package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/reviewdisplay/reviewdisplay/internal/auth"
	"github.com/reviewdisplay/reviewdisplay/internal/reviews"
	"github.com/reviewdisplay/reviewdisplay/internal/widgets"
	"github.com/reviewdisplay/reviewdisplay/internal/widgetscript"
	"go.uber.org/zap"
)

const (
	adminSubjectContextKey = "reviewdisplay_admin_subject"
	requestIDContextKey    = "reviewdisplay_request_id"
	requestIDHeader        = "X-Request-ID"
	maxRequestIDLength     = 128
)

var (
	errMissingWidgetService = errors.New("widget service dependency required")
	errMissingReviewService = errors.New("review service dependency required")
	errMissingScriptRender  = errors.New("script renderer dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// AdminTokenValidator validates admin bearer tokens and returns their subject.
type AdminTokenValidator interface {
	Validate(token string) (string, error)
}

// RequestLimiter decides whether a keyed request may proceed.
type RequestLimiter interface {
	Allow(key string) bool
}

type Dependencies struct {
	WidgetService  *widgets.Service
	ReviewService  *reviews.Service
	ScriptRenderer *widgetscript.Renderer
	Dashboard      http.FileSystem
	// AdminTokens guards /api when set. Nil leaves the API open.
	AdminTokens    AdminTokenValidator
	RefreshLimiter RequestLimiter
	Logger         *zap.Logger
	Clock          func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.WidgetService == nil {
		return nil, errMissingWidgetService
	}
	if deps.ReviewService == nil {
		return nil, errMissingReviewService
	}
	if deps.ScriptRenderer == nil {
		return nil, errMissingScriptRender
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	handler := &httpHandler{
		widgetService: deps.WidgetService,
		reviewService: deps.ReviewService,
		scripts:       deps.ScriptRenderer,
		tokens:        deps.AdminTokens,
		refreshLimit:  deps.RefreshLimiter,
		logger:        logger,
		clock:         clock,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.requestLogger)
	router.Use(corsMiddleware())

	router.GET("/health", handler.handleHealth)
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard/")
	})
	if deps.Dashboard != nil {
		router.StaticFS("/dashboard", deps.Dashboard)
	}

	api := router.Group("/api")
	if deps.AdminTokens != nil {
		api.Use(handler.authorizeRequest)
	}
	api.GET("/widgets", handler.handleListWidgets)
	api.GET("/widgets/:id", handler.handleGetWidget)
	api.POST("/widgets", handler.handleCreateWidget)
	api.PUT("/widgets/:id", handler.handleUpdateWidget)
	api.DELETE("/widgets/:id", handler.handleDeleteWidget)
	api.GET("/reviews/:placeId", handler.handlePlaceReviews)
	api.POST("/reviews/:placeId/refresh", handler.limitRefresh, handler.handleRefreshReviews)

	router.GET("/embed/data/:widgetId", handler.handleEmbedData)
	router.GET("/embed/:file", handler.handleEmbedScript)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router, nil
}

type httpHandler struct {
	widgetService *widgets.Service
	reviewService *reviews.Service
	scripts       *widgetscript.Renderer
	tokens        AdminTokenValidator
	refreshLimit  RequestLimiter
	logger        *zap.Logger
	clock         func() time.Time
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		ExposeHeaders:   []string{requestIDHeader},
		MaxAge:          12 * time.Hour,
	})
}

func (h *httpHandler) requestLogger(c *gin.Context) {
	started := h.clock()
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" || len(requestID) > maxRequestIDLength {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	c.Header(requestIDHeader, requestID)

	c.Next()

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", h.clock().Sub(started)),
		zap.String("request_id", requestID),
		zap.String("client_ip", c.ClientIP()),
	}
	if subject := c.GetString(adminSubjectContextKey); subject != "" {
		fields = append(fields, zap.String("admin_subject", subject))
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("errors", c.Errors.String()))
	}
	switch status := c.Writer.Status(); {
	case status >= http.StatusInternalServerError:
		h.logger.Error("http request", fields...)
	case status >= http.StatusBadRequest:
		h.logger.Warn("http request", fields...)
	default:
		h.logger.Info("http request", fields...)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		c.Next()
		return
	}
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}

func (h *httpHandler) limitRefresh(c *gin.Context) {
	if h.refreshLimit == nil || h.refreshLimit.Allow(c.ClientIP()) {
		c.Next()
		return
	}
	h.logger.Warn("refresh rate limit exceeded",
		zap.String("client_ip", c.ClientIP()),
		zap.String("place_id", c.Param("placeId")))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many refresh requests. Please try again later."})
}

type healthPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthPayload{
		Status:    "ok",
		Timestamp: h.clock().UTC().Format(time.RFC3339),
	})
}
