package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/mauv0809/forecast-accuracy/internal/reconcile"
	"github.com/mauv0809/forecast-accuracy/internal/views"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sweeper settles due records. It is nil when no price source is configured.
type Sweeper interface {
	Run(ctx context.Context, asOf time.Time) (reconcile.Result, error)
}

// Handler serves the JSON API, the admin routes and the leaderboard page on
// top of an accuracy.Engine.
type Handler struct {
	engine  *accuracy.Engine
	sweeper Sweeper
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithSweeper enables POST /admin/reconcile/due.
func WithSweeper(s Sweeper) Option {
	return func(h *Handler) { h.sweeper = s }
}

// WithClock overrides the time source used for the default sweep date.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a Handler for engine. Without WithSweeper the due
// reconciliation route is not mounted.
func New(engine *accuracy.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		now:    time.Now,
		logger: log.With().Str("component", "http").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/", h.Index)
	e.GET("/leaderboard", h.LeaderboardPage)

	api := e.Group("/api")
	api.POST("/records", h.CreateRecord)
	api.GET("/records", h.ListRecords)
	api.GET("/records/:id", h.GetRecord)
	api.POST("/records/:id/actual", h.RecordActualPrice)
	api.GET("/models/:model/stocks/:symbol", h.GetModelPerformance)
	api.GET("/users/:id/stats", h.GetUserStats)
	api.GET("/leaderboard/models", h.ModelLeaderboard)
	api.GET("/leaderboard/users", h.UserLeaderboard)

	admin := e.Group("/admin")
	admin.POST("/refold", h.Refold)
	admin.POST("/refold/models/:model/stocks/:symbol", h.RefoldModel)
	admin.POST("/refold/users/:id", h.RefoldUser)
	admin.DELETE("/predictions/:id", h.DeletePrediction)
	admin.DELETE("/users/:id", h.DeleteUser)
	if h.sweeper != nil {
		admin.POST("/reconcile/due", h.ReconcileDue)
	}
}

// Health returns application health status
// @Summary Health check
// @Description Returns the health status of the application
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Index redirects to the leaderboard page.
// @Summary Landing page
// @Tags pages
// @Success 302
// @Router / [get]
func (h *Handler) Index(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/leaderboard")
}

// LeaderboardPage renders both leaderboards as HTML.
// @Summary Leaderboard page
// @Tags pages
// @Produce html
// @Success 200 {string} string "HTML page"
// @Failure 500 {object} ErrorResponse
// @Router /leaderboard [get]
func (h *Handler) LeaderboardPage(c echo.Context) error {
	ctx := c.Request().Context()
	modelBoard, err := h.engine.ModelLeaderboard(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	userBoard, err := h.engine.UserLeaderboard(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return Render(c, http.StatusOK, views.Leaderboard(views.LeaderboardData{
		Models:    modelBoard,
		Users:     userBoard,
		Threshold: h.engine.Threshold(),
	}))
}
