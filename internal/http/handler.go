package http

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/config"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/service"
)

type Handler struct {
	anprService *service.ANPRService
	authService *service.AuthService
	config      *config.Config
	log         zerolog.Logger
}

func NewHandler(
	anprService *service.ANPRService,
	authService *service.AuthService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		anprService: anprService,
		authService: authService,
		config:      cfg,
		log:         log,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.POST("/auth/login", h.login)
	r.GET("/ws", h.serveWS)

	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/recognize-plate", h.recognizePlate)
	}

	// Operator endpoints
	protected := r.Group("/api/v1")
	protected.Use(h.authMiddleware())
	{
		protected.GET("/trusted-plates", h.listTrustedPlates)
		protected.POST("/trusted-plates", h.addTrustedPlate)
		protected.DELETE("/trusted-plates/:plate", h.removeTrustedPlate)
		protected.GET("/events", h.listEvents)
		protected.GET("/events/stats", h.eventStats)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"models_loaded":  h.anprService.Available(),
		"journal":        h.anprService.JournalEnabled(),
		"trusted_plates": len(h.anprService.TrustedPlates()),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	res, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, errorResponse(err.Error()))
		case errors.Is(err, service.ErrServiceUnavailable):
			c.JSON(http.StatusNotFound, errorResponse("authentication is disabled"))
		default:
			h.handleError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, successResponse(res))
}

type recognizeResponse struct {
	Status         anpr.FrameStatus  `json:"status"`
	PlateText      string            `json:"plate_text"`
	YoloConfidence float64           `json:"yolo_confidence"`
	AccessStatus   anpr.AccessStatus `json:"access_status"`
}

func (h *Handler) recognizePlate(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("No file part in the request"))
		return
	}
	if !h.anprService.Available() {
		c.JSON(http.StatusServiceUnavailable, errorResponse("Service not ready. Models failed to load at startup."))
		return
	}

	limit := h.config.Server.MaxUploadBytes
	if fh.Size > limit {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Sprintf("file exceeds %d bytes", limit)))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Sprintf("Image processing failed: %v", err)))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Sprintf("Image processing failed: %v", err)))
		return
	}

	outcome, err := h.anprService.ProcessSingle(c.Request.Context(), data, service.FrameMeta{Source: anpr.SourceUpload})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, errorResponse("Invalid image format. Could not decode."))
		case errors.Is(err, service.ErrServiceUnavailable):
			c.JSON(http.StatusServiceUnavailable, errorResponse("Service not ready. Models failed to load at startup."))
		default:
			h.log.Error().Err(err).Msg("failed to recognize uploaded image")
			c.JSON(http.StatusInternalServerError, errorResponse(fmt.Sprintf("Image processing failed: %v", err)))
		}
		return
	}

	c.JSON(http.StatusOK, recognizeResponse{
		Status:         outcome.Status,
		PlateText:      outcome.PlateText,
		YoloConfidence: round4(outcome.Confidence),
		AccessStatus:   outcome.AccessStatus,
	})
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func (h *Handler) listTrustedPlates(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.anprService.TrustedPlates()))
}

type plateRequest struct {
	Plate string `json:"plate" binding:"required"`
}

func (h *Handler) addTrustedPlate(c *gin.Context) {
	var req plateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	m, err := h.anprService.AddTrustedPlate(req.Plate)
	if err != nil {
		h.handleError(c, err)
		return
	}

	status := http.StatusOK
	if m.Accepted {
		status = http.StatusCreated
	}
	c.JSON(status, successResponse(m))
}

func (h *Handler) removeTrustedPlate(c *gin.Context) {
	m, err := h.anprService.RemoveTrustedPlate(c.Param("plate"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	if !m.Accepted {
		h.handleError(c, fmt.Errorf("%w: plate is not trusted", service.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, successResponse(m))
}

func (h *Handler) listEvents(c *gin.Context) {
	q := service.EventQuery{
		Plate:        queryPtr(c, "plate"),
		Status:       queryPtr(c, "status"),
		AccessStatus: queryPtr(c, "access_status"),
		From:         queryPtr(c, "from"),
		To:           queryPtr(c, "to"),
		Limit:        50,
	}

	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			q.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			q.Offset = parsed
		}
	}

	events, err := h.anprService.FindEvents(c.Request.Context(), q)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) eventStats(c *gin.Context) {
	hours := 24
	if v := c.Query("hours"); v != "" {
		parsed, err := parseInt(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("hours must be a positive integer"))
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := h.anprService.AccessStats(c.Request.Context(), since)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"since":  since,
		"counts": stats,
	}))
}

func queryPtr(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrJournalDisabled), errors.Is(err, service.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
