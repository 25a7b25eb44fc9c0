package accuracy

import (
	"sort"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// ProjectModelLeaderboard groups per-stock aggregates by model. Counters are
// summed; average accuracy and error are the unweighted mean of the per-stock
// averages (a mean of means, not a re-derivation from raw records). Models
// are ordered by that averaged accuracy, models without verified data last.
func ProjectModelLeaderboard(rows []models.ModelPerformance) []models.ModelLeaderboardEntry {
	type group struct {
		entry   models.ModelLeaderboardEntry
		accSum  decimal.Decimal
		errSum  decimal.Decimal
		samples int64
	}
	groups := make(map[string]*group)
	for _, mp := range rows {
		g, ok := groups[mp.ModelName]
		if !ok {
			g = &group{entry: models.ModelLeaderboardEntry{ModelName: mp.ModelName}}
			groups[mp.ModelName] = g
		}
		g.entry.StocksCovered++
		g.entry.TotalPredictions += mp.TotalPredictions
		g.entry.VerifiedPredictions += mp.VerifiedPredictions
		g.entry.AccuratePredictions += mp.AccuratePredictions
		if mp.VerifiedPredictions > 0 && mp.AverageAccuracy != nil {
			g.accSum = g.accSum.Add(*mp.AverageAccuracy)
			if mp.AverageError != nil {
				g.errSum = g.errSum.Add(*mp.AverageError)
			}
			g.samples++
		}
		if mp.BestAccuracy != nil {
			g.entry.BestAccuracy = maxOf(g.entry.BestAccuracy, *mp.BestAccuracy)
		}
		if mp.WorstAccuracy != nil {
			g.entry.WorstAccuracy = minOf(g.entry.WorstAccuracy, *mp.WorstAccuracy)
		}
	}

	out := make([]models.ModelLeaderboardEntry, 0, len(groups))
	for _, g := range groups {
		if g.samples > 0 {
			n := decimal.NewFromInt(g.samples)
			avgAcc := g.accSum.Div(n)
			avgErr := g.errSum.Div(n)
			g.entry.AverageAccuracy = &avgAcc
			g.entry.AverageError = &avgErr
		}
		out = append(out, g.entry)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].AverageAccuracy, out[j].AverageAccuracy
		switch {
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.GreaterThan(*b)
		}
		return out[i].ModelName < out[j].ModelName
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// ProjectUserLeaderboard ranks users with at least one verified prediction by
// success rate, then accurate count.
func ProjectUserLeaderboard(rows []models.UserAccuracyStats) []models.UserLeaderboardEntry {
	out := make([]models.UserLeaderboardEntry, 0, len(rows))
	for _, us := range rows {
		if us.VerifiedPredictions <= 0 {
			continue
		}
		rate := decimal.NewFromInt(us.AccuratePredictions).Div(decimal.NewFromInt(us.VerifiedPredictions))
		if us.SuccessRate != nil {
			rate = *us.SuccessRate
		}
		out = append(out, models.UserLeaderboardEntry{
			UserID:              us.UserID,
			TotalPredictions:    us.TotalPredictions,
			VerifiedPredictions: us.VerifiedPredictions,
			AccuratePredictions: us.AccuratePredictions,
			SuccessRate:         rate,
			BestAccuracy:        us.BestAccuracy,
			FavoriteModel:       us.FavoriteModel,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SuccessRate.Equal(out[j].SuccessRate) {
			return out[i].SuccessRate.GreaterThan(out[j].SuccessRate)
		}
		if out[i].AccuratePredictions != out[j].AccuratePredictions {
			return out[i].AccuratePredictions > out[j].AccuratePredictions
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
