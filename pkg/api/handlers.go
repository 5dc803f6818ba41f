package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/collabiora/landing/pkg/models"
	"github.com/collabiora/landing/pkg/services"
)

const (
	defaultBrowseLimit = 10
	maxBrowseLimit     = 250
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	sessions  *services.SessionStore
	countries *services.CountryDirectory
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(sessions *services.SessionStore, countries *services.CountryDirectory, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions:  sessions,
		countries: countries,
		logger:    logger,
	}
}

// Register mounts every route on r. createGuards run before a session is
// opened, for example a per-client rate limit.
func (h *Handlers) Register(r gin.IRoutes, createGuards ...gin.HandlerFunc) {
	r.GET("/health", h.HealthCheck)

	r.POST("/api/waitlist/sessions", append(createGuards, h.CreateSession)...)
	r.GET("/api/waitlist/sessions/:id", h.GetSession)
	r.PUT("/api/waitlist/sessions/:id/fields", h.UpdateField)
	r.POST("/api/waitlist/sessions/:id/submit", h.Submit)

	r.GET("/api/countries", h.Countries)
}

// HealthCheck handler for monitoring
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

type sessionResponse struct {
	ID string `json:"id"`
	services.Snapshot
	Celebrate bool `json:"celebrate"`
}

type updateFieldRequest struct {
	Field string `json:"field" binding:"required,oneof=firstName lastName email role country"`
	Value string `json:"value"`
}

// ginEnvironment exposes the request cookies to the controller
type ginEnvironment struct {
	c *gin.Context
}

func (e ginEnvironment) Cookie(name string) (string, bool) {
	v, err := e.c.Cookie(name)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// CreateSession opens a new waitlist form
func (h *Handlers) CreateSession(c *gin.Context) {
	session, err := h.sessions.Create()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many open forms, please try again later"})
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		ID:       session.ID,
		Snapshot: session.Controller.Snapshot(),
	})
}

// GetSession returns the form state. The celebrate flag is set once
// after a successful submission.
func (h *Handlers) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.render(session, session.Controller.Snapshot()))
}

// UpdateField stores one keystroke's worth of form input
func (h *Handlers) UpdateField(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	var req updateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid field update"})
		return
	}

	session.Controller.UpdateField(models.Field(req.Field), req.Value)
	c.JSON(http.StatusOK, h.render(session, session.Controller.Snapshot()))
}

// Submit sends the form to the waitlist
func (h *Handlers) Submit(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	snap, err := session.Controller.Submit(c.Request.Context(), ginEnvironment{c: c})

	status := http.StatusOK
	var (
		validationErr *services.ValidationError
		requestErr    *services.RequestFailure
		transportErr  *services.TransportError
	)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrSubmissionInProgress):
		status = http.StatusConflict
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &requestErr), errors.As(err, &transportErr):
		status = http.StatusBadGateway
	default:
		h.logger.Error("Unexpected submission error", zap.Error(err))
		status = http.StatusInternalServerError
	}
	if err != nil {
		_ = c.Error(err)
	}

	c.JSON(status, h.render(session, snap))
}

// Countries searches the country list, or browses it when q is empty
func (h *Handlers) Countries(c *gin.Context) {
	query := c.Query("q")
	if query != "" {
		c.JSON(http.StatusOK, gin.H{"countries": h.countries.Search(c.Request.Context(), query)})
		return
	}

	limit := defaultBrowseLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxBrowseLimit {
		limit = maxBrowseLimit
	}

	c.JSON(http.StatusOK, gin.H{"countries": h.countries.Browse(c.Request.Context(), limit)})
}

func (h *Handlers) lookup(c *gin.Context) (*services.Session, bool) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		msg := "Session not found"
		if errors.Is(err, services.ErrSessionExpired) {
			msg = "Session expired"
		}
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return nil, false
	}
	return session, true
}

func (h *Handlers) render(session *services.Session, snap services.Snapshot) sessionResponse {
	return sessionResponse{
		ID:        session.ID,
		Snapshot:  snap,
		Celebrate: session.TakeCelebration(),
	}
}
