package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/shopspring/decimal"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ActualPriceRequest is the body of POST /api/records/:id/actual.
type ActualPriceRequest struct {
	ActualPrice decimal.Decimal `json:"actual_price"`
}

// fail maps engine errors onto HTTP statuses.
func (h *Handler) fail(c echo.Context, err error) error {
	var ve *accuracy.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Field: ve.Field})
	case accuracy.IsNotFound(err):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case accuracy.IsAlreadyVerified(err):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}
	h.logger.Error().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("Request failed")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func badRequest(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Field: field})
}

// idParam parses a positive integer path parameter.
func idParam(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CreateRecord handles POST /api/records
// @Summary Record a prediction for later reconciliation
// @Tags records
// @Accept json
// @Produce json
// @Success 201 {object} models.AccuracyRecord
// @Failure 400 {object} ErrorResponse
// @Router /api/records [post]
func (h *Handler) CreateRecord(c echo.Context) error {
	var in accuracy.NewRecord
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "", "malformed request body")
	}
	rec, err := h.engine.CreateRecord(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// GetRecord handles GET /api/records/:id
// @Summary Get an accuracy record
// @Tags records
// @Produce json
// @Success 200 {object} models.AccuracyRecord
// @Failure 404 {object} ErrorResponse
// @Router /api/records/{id} [get]
func (h *Handler) GetRecord(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id", "id must be a positive integer")
	}
	rec, err := h.engine.GetRecord(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ListRecords handles GET /api/records
// Query params:
// - user_id, prediction_id: numeric filters
// - model, symbol: exact match filters
// - verified: "true" or "false"
// - limit: maximum rows returned
// @Summary List accuracy records
// @Tags records
// @Produce json
// @Param verified query bool false "Only verified or unverified records"
// @Param limit query int false "Maximum rows returned"
// @Success 200 {array} models.AccuracyRecord
// @Failure 400 {object} ErrorResponse
// @Router /api/records [get]
func (h *Handler) ListRecords(c echo.Context) error {
	var f accuracy.RecordFilter
	var err error

	if v := c.QueryParam("user_id"); v != "" {
		if f.UserID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return badRequest(c, "user_id", "user_id must be an integer")
		}
	}
	if v := c.QueryParam("prediction_id"); v != "" {
		if f.PredictionID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return badRequest(c, "prediction_id", "prediction_id must be an integer")
		}
	}
	if v := c.QueryParam("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "verified", "verified must be true or false")
		}
		f.Verified = &b
	}
	if v := c.QueryParam("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return badRequest(c, "limit", "limit must be a non-negative integer")
		}
	}
	f.ModelUsed = c.QueryParam("model")
	f.StockSymbol = strings.ToUpper(c.QueryParam("symbol"))

	records, err := h.engine.ListRecords(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// RecordActualPrice handles POST /api/records/:id/actual
// @Summary Reconcile a record against the observed price
// @Tags records
// @Accept json
// @Produce json
// @Success 200 {object} models.AccuracyRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/records/{id}/actual [post]
func (h *Handler) RecordActualPrice(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id", "id must be a positive integer")
	}
	var req ActualPriceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "actual_price", "malformed request body")
	}
	rec, err := h.engine.RecordActualPrice(c.Request().Context(), id, req.ActualPrice)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// GetModelPerformance handles GET /api/models/:model/stocks/:symbol
// @Summary Aggregate accuracy of one model on one stock
// @Tags models
// @Produce json
// @Success 200 {object} models.ModelPerformance
// @Failure 404 {object} ErrorResponse
// @Router /api/models/{model}/stocks/{symbol} [get]
func (h *Handler) GetModelPerformance(c echo.Context) error {
	mp, err := h.engine.GetModelPerformance(c.Request().Context(), c.Param("model"), c.Param("symbol"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, mp)
}

// GetUserStats handles GET /api/users/:id/stats
// @Summary Aggregate accuracy of one user
// @Tags users
// @Produce json
// @Success 200 {object} models.UserAccuracyStats
// @Failure 404 {object} ErrorResponse
// @Router /api/users/{id}/stats [get]
func (h *Handler) GetUserStats(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id", "id must be a positive integer")
	}
	stats, err := h.engine.GetUserStats(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// ModelLeaderboard handles GET /api/leaderboard/models
// @Summary Models ranked by mean accuracy across stocks
// @Tags leaderboard
// @Produce json
// @Success 200 {array} models.ModelLeaderboardEntry
// @Router /api/leaderboard/models [get]
func (h *Handler) ModelLeaderboard(c echo.Context) error {
	board, err := h.engine.ModelLeaderboard(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, board)
}

// UserLeaderboard handles GET /api/leaderboard/users
// @Summary Users ranked by success rate
// @Tags leaderboard
// @Produce json
// @Success 200 {array} models.UserLeaderboardEntry
// @Router /api/leaderboard/users [get]
func (h *Handler) UserLeaderboard(c echo.Context) error {
	board, err := h.engine.UserLeaderboard(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, board)
}
