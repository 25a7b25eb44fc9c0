package accuracy

import (
	"sort"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// The apply functions below are the single definition of the fold used both
// by the incremental path and by Refold. Each is O(1) in the history size.

func applyCreatedToModel(mp *models.ModelPerformance, rec *models.AccuracyRecord, now time.Time) {
	mp.TotalPredictions++
	mp.LastUpdated = now
}

func applyVerifiedToModel(mp *models.ModelPerformance, rec *models.AccuracyRecord, threshold decimal.Decimal, now time.Time) {
	acc, errAbs := *rec.AccuracyPercentage, *rec.PredictionError

	mp.VerifiedPredictions++
	// A creation event lost to a crash must not break verified <= total.
	if mp.TotalPredictions < mp.VerifiedPredictions {
		mp.TotalPredictions = mp.VerifiedPredictions
	}
	if acc.GreaterThanOrEqual(threshold) {
		mp.AccuratePredictions++
	}
	mp.AverageAccuracy = onlineMean(mp.AverageAccuracy, acc, mp.VerifiedPredictions)
	mp.AverageError = onlineMean(mp.AverageError, errAbs, mp.VerifiedPredictions)
	mp.BestAccuracy = maxOf(mp.BestAccuracy, acc)
	mp.WorstAccuracy = minOf(mp.WorstAccuracy, acc)
	mp.LastUpdated = now
}

func applyCreatedToUser(us *models.UserAccuracyStats, rec *models.AccuracyRecord, now time.Time) {
	us.TotalPredictions++
	if us.LastPredictionDate == nil || rec.PredictionDate.After(*us.LastPredictionDate) {
		d := rec.PredictionDate
		us.LastPredictionDate = &d
	}

	if us.ModelUsage == nil {
		us.ModelUsage = make(map[string]models.ModelUsage)
	}
	usage := us.ModelUsage[rec.ModelUsed]
	usage.Count++
	if rec.PredictionDate.After(usage.LastUsed) {
		usage.LastUsed = rec.PredictionDate
	}
	us.ModelUsage[rec.ModelUsed] = usage
	us.FavoriteModel = favoriteModel(us.ModelUsage)
	us.UpdatedAt = now
}

func applyVerifiedToUser(us *models.UserAccuracyStats, rec *models.AccuracyRecord, threshold decimal.Decimal, now time.Time) {
	acc := *rec.AccuracyPercentage

	us.VerifiedPredictions++
	if us.TotalPredictions < us.VerifiedPredictions {
		us.TotalPredictions = us.VerifiedPredictions
	}
	if acc.GreaterThanOrEqual(threshold) {
		us.AccuratePredictions++
	}
	rate := decimal.NewFromInt(us.AccuratePredictions).Div(decimal.NewFromInt(us.VerifiedPredictions))
	us.SuccessRate = &rate
	us.BestAccuracy = maxOf(us.BestAccuracy, acc)
	us.UpdatedAt = now
}

// onlineMean folds value into the running mean of n observations (value
// being the n-th).
func onlineMean(old *decimal.Decimal, value decimal.Decimal, n int64) *decimal.Decimal {
	if old == nil || n <= 1 {
		v := value
		return &v
	}
	m := old.Add(value.Sub(*old).Div(decimal.NewFromInt(n)))
	return &m
}

func maxOf(cur *decimal.Decimal, v decimal.Decimal) *decimal.Decimal {
	if cur == nil || v.GreaterThan(*cur) {
		return &v
	}
	return cur
}

func minOf(cur *decimal.Decimal, v decimal.Decimal) *decimal.Decimal {
	if cur == nil || v.LessThan(*cur) {
		return &v
	}
	return cur
}

// favoriteModel picks the most used model. Ties go to the most recently used
// one, then to the lexically smallest name so the result is deterministic.
func favoriteModel(usage map[string]models.ModelUsage) string {
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	var bestUsage models.ModelUsage
	for _, name := range names {
		u := usage[name]
		if best == "" || u.Count > bestUsage.Count ||
			(u.Count == bestUsage.Count && u.LastUsed.After(bestUsage.LastUsed)) {
			best, bestUsage = name, u
		}
	}
	return best
}
