package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccuracyRecord is one prediction awaiting or having received reconciliation.
// ActualPrice, AccuracyPercentage, PredictionError and VerifiedDate are either
// all nil or all set.
type AccuracyRecord struct {
	ID                 int64            `json:"id"`
	PredictionID       int64            `json:"prediction_id"`
	UserID             int64            `json:"user_id"`
	StockSymbol        string           `json:"stock_symbol"`
	PredictionDate     time.Time        `json:"prediction_date"`
	TargetDate         time.Time        `json:"target_date"`
	PredictedPrice     decimal.Decimal  `json:"predicted_price"`
	ActualPrice        *decimal.Decimal `json:"actual_price"`
	AccuracyPercentage *decimal.Decimal `json:"accuracy_percentage"` // [0, 100]
	PredictionError    *decimal.Decimal `json:"prediction_error"`    // absolute, >= 0
	Verified           bool             `json:"verified"`
	VerifiedDate       *time.Time       `json:"verified_date"`
	ModelUsed          string           `json:"model_used"`
	ConfidenceScore    *decimal.Decimal `json:"confidence_score"` // producer supplied
	CreatedAt          time.Time        `json:"created_at"`
}

// ModelPerformance is the running aggregate for a (model, stock) pair.
type ModelPerformance struct {
	ModelName           string           `json:"model_name"`
	StockSymbol         string           `json:"stock_symbol"`
	TotalPredictions    int64            `json:"total_predictions"`
	VerifiedPredictions int64            `json:"verified_predictions"`
	AccuratePredictions int64            `json:"accurate_predictions"`
	AverageAccuracy     *decimal.Decimal `json:"average_accuracy"`
	AverageError        *decimal.Decimal `json:"average_error"`
	BestAccuracy        *decimal.Decimal `json:"best_accuracy"`
	WorstAccuracy       *decimal.Decimal `json:"worst_accuracy"`
	LastUpdated         time.Time        `json:"last_updated"`
}

// ModelUsage counts how often a user picked a given model.
type ModelUsage struct {
	Count    int64     `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// UserAccuracyStats is the running aggregate for a single user.
type UserAccuracyStats struct {
	UserID              int64            `json:"user_id"`
	TotalPredictions    int64            `json:"total_predictions"`
	VerifiedPredictions int64            `json:"verified_predictions"`
	AccuratePredictions int64            `json:"accurate_predictions"`
	SuccessRate         *decimal.Decimal `json:"success_rate"` // accurate / verified
	BestAccuracy        *decimal.Decimal `json:"best_accuracy"`
	FavoriteModel       string           `json:"favorite_model"`
	LastPredictionDate  *time.Time       `json:"last_prediction_date"`
	UpdatedAt           time.Time        `json:"updated_at"`

	// ModelUsage backs FavoriteModel. Persisted in user_model_usage.
	ModelUsage map[string]ModelUsage `json:"model_usage,omitempty"`
}

// ModelLeaderboardEntry is one model's row in the model ranking, summed
// across all stocks.
type ModelLeaderboardEntry struct {
	Rank                int              `json:"rank"`
	ModelName           string           `json:"model_name"`
	StocksCovered       int              `json:"stocks_covered"`
	TotalPredictions    int64            `json:"total_predictions"`
	VerifiedPredictions int64            `json:"verified_predictions"`
	AccuratePredictions int64            `json:"accurate_predictions"`
	AverageAccuracy     *decimal.Decimal `json:"average_accuracy"` // mean of per-stock means
	AverageError        *decimal.Decimal `json:"average_error"`
	BestAccuracy        *decimal.Decimal `json:"best_accuracy"`
	WorstAccuracy       *decimal.Decimal `json:"worst_accuracy"`
}

// UserLeaderboardEntry is one user's row in the user ranking.
type UserLeaderboardEntry struct {
	Rank                int              `json:"rank"`
	UserID              int64            `json:"user_id"`
	TotalPredictions    int64            `json:"total_predictions"`
	VerifiedPredictions int64            `json:"verified_predictions"`
	AccuratePredictions int64            `json:"accurate_predictions"`
	SuccessRate         decimal.Decimal  `json:"success_rate"`
	BestAccuracy        *decimal.Decimal `json:"best_accuracy"`
	FavoriteModel       string           `json:"favorite_model"`
}
