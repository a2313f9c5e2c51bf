package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"triage-service/internal/classifier"
	"triage-service/internal/models"
	"triage-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultStatsDays   = 7
	defaultRecentLimit = 50
	defaultHourlyHours = 24
)

// Options configures optional parts of the HTTP surface.
type Options struct {
	JWTSecret      string              // empty leaves analytics routes open
	MaxUploadBytes int64               // zero disables the limit
	Gatherer       prometheus.Gatherer // nil disables /metrics
}

// Handler handles HTTP requests
type Handler struct {
	predictor *service.Predictor
	opts      Options
	logger    *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(predictor *service.Predictor, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		predictor: predictor,
		opts:      opts,
		logger:    logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)
	r.GET("/readyz", h.Ready)
	r.POST("/predict", h.Predict)

	analytics := r.Group("/")
	if h.opts.JWTSecret != "" {
		analytics.Use(AuthMiddleware([]byte(h.opts.JWTSecret), h.logger))
	}
	{
		analytics.GET("/stats", h.GetStats)
		analytics.GET("/recent", h.GetRecent)
		analytics.GET("/hourly", h.GetHourly)
	}

	if h.predictor.Profile() == classifier.ProfileLite {
		r.GET("/test", h.SelfTest)
	}

	if h.opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}
}

type predictRequest struct {
	Type string `json:"type" form:"type"`
	Text string `json:"text" form:"text"`
}

// Predict handles a single prediction from form, multipart or JSON input
func (h *Handler) Predict(c *gin.Context) {
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	}

	var req predictRequest
	var file *multipart.FileHeader
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	} else {
		if err := c.ShouldBind(&req); err != nil {
			h.badRequest(c, err)
			return
		}
		fh, err := c.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			h.badRequest(c, err)
			return
		}
		file = fh
	}

	if req.Type == "" {
		req.Type = string(models.InputText)
	}
	inputType, ok := models.ParseInputType(req.Type)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content type"})
		return
	}

	svcReq := service.Request{Type: inputType, Text: req.Text}
	if inputType != models.InputText && file != nil {
		f, err := file.Open()
		if err != nil {
			h.predictFailed(c, err)
			return
		}
		defer f.Close()
		svcReq.Filename = file.Filename
		svcReq.File = f
	}

	result, err := h.predictor.Predict(c.Request.Context(), svcReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": missingInputMessage(inputType)})
		case errors.Is(err, service.ErrInvalidType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content type"})
		default:
			h.predictFailed(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func missingInputMessage(inputType models.InputType) string {
	switch inputType {
	case models.InputImage:
		return "No image file provided"
	case models.InputAudio:
		return "No audio file provided"
	default:
		return "No text provided"
	}
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// predictFailed answers an internal failure: the lite profile always returns
// a usable result, the full profile reports the error.
func (h *Handler) predictFailed(c *gin.Context, err error) {
	h.logger.Error("Prediction error", zap.Error(err))

	if h.predictor.Profile() == classifier.ProfileLite {
		c.JSON(http.StatusOK, gin.H{
			"disaster_type": models.Emergency.String(),
			"danger_score":  70,
			"confidence":    0.50,
			"tags":          []string{"error", "fallback"},
			"error":         err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// GetStats returns aggregate statistics over ?days=N (default 7)
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.predictor.Statistics(c.Request.Context(), queryInt(c, "days", defaultStatsDays))
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetRecent returns the newest predictions, ?limit=N (default 50)
func (h *Handler) GetRecent(c *gin.Context) {
	records, err := h.predictor.Recent(c.Request.Context(), queryInt(c, "limit", defaultRecentLimit))
	if err != nil {
		h.logger.Error("Failed to get recent predictions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"predictions": records})
}

// GetHourly returns hourly buckets over ?hours=N (default 24)
func (h *Handler) GetHourly(c *gin.Context) {
	stats, err := h.predictor.Hourly(c.Request.Context(), queryInt(c, "hours", defaultHourlyHours))
	if err != nil {
		h.logger.Error("Failed to get hourly stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hourly_stats": stats})
}

// SelfTest classifies the canned smoke-test reports
func (h *Handler) SelfTest(c *gin.Context) {
	results, err := h.predictor.SelfTest(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"test_results": results})
}

// HealthCheck reports the profile and which models are loaded
func (h *Handler) HealthCheck(c *gin.Context) {
	health := h.predictor.Health()

	if health.Profile == classifier.ProfileLite {
		c.JSON(http.StatusOK, gin.H{
			"status":               "healthy",
			"service":              "lightweight_ml",
			"models_loaded":        true,
			"text_classification":  "keyword_based",
			"image_classification": "fallback",
			"audio_classification": "fallback",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"models_loaded": health.Capabilities.Any(),
		"text_model":    health.Capabilities.Text,
		"image_model":   health.Capabilities.Image,
		"audio_model":   health.Capabilities.Audio,
	})
}

// Ready reports whether the store answers
func (h *Handler) Ready(c *gin.Context) {
	if err := h.predictor.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// queryInt reads a non-negative integer parameter. Unparseable values fall
// back to def, negative values are clamped to 0.
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < 0 {
		return 0
	}
	return v
}
