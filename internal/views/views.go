// Package views holds the server-rendered pages. The components are written
// in .templ files; run `templ generate` after editing them.
package views

import (
	"strconv"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// LeaderboardData is what the leaderboard page shows.
type LeaderboardData struct {
	Models    []models.ModelLeaderboardEntry
	Users     []models.UserLeaderboardEntry
	Threshold decimal.Decimal
}

const missing = "–"

func percent(d *decimal.Decimal) string {
	if d == nil {
		return missing
	}
	return d.StringFixed(2) + "%"
}

func amount(d *decimal.Decimal) string {
	if d == nil {
		return missing
	}
	return d.StringFixed(2)
}

// rate shows a 0..1 success rate as a percentage.
func rate(r decimal.Decimal) string {
	return r.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func count[T ~int | ~int64](n T) string {
	return strconv.FormatInt(int64(n), 10)
}
