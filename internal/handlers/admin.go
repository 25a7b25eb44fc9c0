package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// AdminResponse is the JSON response for maintenance endpoints.
type AdminResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Elapsed string `json:"elapsed,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Refold handles POST /admin/refold
// Rebuilds every model and user aggregate from the record history.
// @Summary Rebuild all aggregates
// @Tags admin
// @Produce json
// @Success 200 {object} AdminResponse
// @Failure 500 {object} AdminResponse
// @Router /admin/refold [post]
func (h *Handler) Refold(c echo.Context) error {
	start := time.Now()
	h.logger.Info().Msg("Starting full refold")

	res, err := h.engine.Refold(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Refold failed")
		return c.JSON(http.StatusInternalServerError, AdminResponse{
			Success: false,
			Message: "Refold failed: " + err.Error(),
		})
	}

	elapsed := time.Since(start)
	h.logger.Info().Int("records", res.Records).Int("models", res.Models).Int("users", res.Users).Dur("elapsed", elapsed).Msg("Refold complete")

	return c.JSON(http.StatusOK, AdminResponse{
		Success: true,
		Message: "Aggregates rebuilt",
		Elapsed: elapsed.String(),
		Result:  res,
	})
}

// RefoldModel handles POST /admin/refold/models/:model/stocks/:symbol
// Rebuilds one model's aggregate for one stock and returns it.
// @Summary Rebuild one model aggregate
// @Tags admin
// @Produce json
// @Param model path string true "Model name"
// @Param symbol path string true "Stock symbol"
// @Success 200 {object} models.ModelPerformance
// @Failure 500 {object} ErrorResponse
// @Router /admin/refold/models/{model}/stocks/{symbol} [post]
func (h *Handler) RefoldModel(c echo.Context) error {
	mp, err := h.engine.RefoldModel(c.Request().Context(), c.Param("model"), c.Param("symbol"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, mp)
}

// RefoldUser handles POST /admin/refold/users/:id
// Rebuilds one user's stats and returns them.
// @Summary Rebuild one user's stats
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.UserAccuracyStats
// @Failure 400 {object} ErrorResponse
// @Router /admin/refold/users/{id} [post]
func (h *Handler) RefoldUser(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id", "id must be a positive integer")
	}
	stats, err := h.engine.RefoldUser(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// DeletePrediction handles DELETE /admin/predictions/:id
// Removes the prediction's record and takes it out of the aggregates.
// @Summary Delete a prediction's record
// @Tags admin
// @Param id path int true "Prediction ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /admin/predictions/{id} [delete]
func (h *Handler) DeletePrediction(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id", "id must be a positive integer")
	}
	if err := h.engine.DeletePrediction(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteUser handles DELETE /admin/users/:id
// Removes the user's records, stats and their share of model aggregates.
// @Summary Delete a user's records
// @Tags admin
// @Param id path int true "User ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "id", "id must be a positive integer")
	}
	if err := h.engine.DeleteUser(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReconcileDue handles POST /admin/reconcile/due
// Query params:
// - as_of: YYYY-MM-DD cut-off for target dates (default: now)
// @Summary Reconcile due records
// @Tags admin
// @Produce json
// @Param as_of query string false "Cut-off date, YYYY-MM-DD"
// @Success 200 {object} AdminResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} AdminResponse
// @Router /admin/reconcile/due [post]
func (h *Handler) ReconcileDue(c echo.Context) error {
	start := time.Now()
	asOf := h.now()
	if v := c.QueryParam("as_of"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return badRequest(c, "as_of", "as_of must be YYYY-MM-DD")
		}
		// Whole day inclusive.
		asOf = t.Add(24*time.Hour - time.Nanosecond)
	}

	res, err := h.sweeper.Run(c.Request().Context(), asOf)
	if err != nil {
		h.logger.Error().Err(err).Msg("Due reconciliation failed")
		return c.JSON(http.StatusInternalServerError, AdminResponse{
			Success: false,
			Message: "Due reconciliation failed: " + err.Error(),
			Result:  res,
		})
	}

	return c.JSON(http.StatusOK, AdminResponse{
		Success: true,
		Message: "Due records reconciled",
		Elapsed: time.Since(start).String(),
		Result:  res,
	})
}
