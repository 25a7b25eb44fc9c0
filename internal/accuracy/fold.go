package accuracy

import (
	"sort"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// FoldModels recomputes ModelPerformance aggregates from record history.
// Creation events are replayed by prediction date, verifications by
// verification date, both with the record id as tie-breaker.
func FoldModels(records []models.AccuracyRecord, threshold decimal.Decimal, now time.Time) map[ModelKey]*models.ModelPerformance {
	out := make(map[ModelKey]*models.ModelPerformance)
	get := func(rec *models.AccuracyRecord) *models.ModelPerformance {
		key := ModelKey{Model: rec.ModelUsed, Symbol: rec.StockSymbol}
		mp, ok := out[key]
		if !ok {
			mp = &models.ModelPerformance{ModelName: key.Model, StockSymbol: key.Symbol}
			out[key] = mp
		}
		return mp
	}

	for _, rec := range byPredictionDate(records) {
		applyCreatedToModel(get(rec), rec, now)
	}
	for _, rec := range byVerifiedDate(records) {
		applyVerifiedToModel(get(rec), rec, threshold, now)
	}
	return out
}

// FoldUsers recomputes UserAccuracyStats from record history.
func FoldUsers(records []models.AccuracyRecord, threshold decimal.Decimal, now time.Time) map[int64]*models.UserAccuracyStats {
	out := make(map[int64]*models.UserAccuracyStats)
	get := func(rec *models.AccuracyRecord) *models.UserAccuracyStats {
		us, ok := out[rec.UserID]
		if !ok {
			us = &models.UserAccuracyStats{UserID: rec.UserID}
			out[rec.UserID] = us
		}
		return us
	}

	for _, rec := range byPredictionDate(records) {
		applyCreatedToUser(get(rec), rec, now)
	}
	for _, rec := range byVerifiedDate(records) {
		applyVerifiedToUser(get(rec), rec, threshold, now)
	}
	return out
}

func byPredictionDate(records []models.AccuracyRecord) []*models.AccuracyRecord {
	out := make([]*models.AccuracyRecord, 0, len(records))
	for i := range records {
		out = append(out, &records[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PredictionDate.Equal(out[j].PredictionDate) {
			return out[i].PredictionDate.Before(out[j].PredictionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func byVerifiedDate(records []models.AccuracyRecord) []*models.AccuracyRecord {
	out := make([]*models.AccuracyRecord, 0, len(records))
	for i := range records {
		if records[i].Verified {
			out = append(out, &records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].VerifiedDate.Equal(*out[j].VerifiedDate) {
			return out[i].VerifiedDate.Before(*out[j].VerifiedDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
