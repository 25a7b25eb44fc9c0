package accuracy

import (
	"context"
	"fmt"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// ModelKey identifies a ModelPerformance aggregate.
type ModelKey struct {
	Model  string
	Symbol string
}

func (k ModelKey) String() string {
	return fmt.Sprintf("%s/%s", k.Model, k.Symbol)
}

// RecordFilter narrows ListRecords. Zero values match everything.
type RecordFilter struct {
	UserID       int64
	PredictionID int64
	ModelUsed    string
	StockSymbol  string
	Verified     *bool
	TargetBefore time.Time // target_date <= TargetBefore
	AfterID      int64     // id > AfterID, for paging
	Limit        int
}

// Verification carries the outcome of scoring a record.
type Verification struct {
	ActualPrice     decimal.Decimal
	Accuracy        decimal.Decimal
	PredictionError decimal.Decimal
	VerifiedAt      time.Time
}

// Store persists accuracy records and the aggregates derived from them.
//
// MarkVerified must be a compare-and-set on the verified flag: of several
// concurrent calls for the same record exactly one succeeds and the others
// return *AlreadyVerifiedError.
//
// UpdateModelPerformance and UpdateUserStats apply fn inside a critical
// section for that key and persist the result. A missing row is passed to fn
// zeroed, with its key fields set. If fn returns an error nothing is written.
type Store interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	// PredictionOwner returns the user owning a prediction, or *NotFoundError.
	PredictionOwner(ctx context.Context, predictionID int64) (int64, error)

	InsertRecord(ctx context.Context, rec *models.AccuracyRecord) error
	GetRecord(ctx context.Context, id int64) (*models.AccuracyRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]models.AccuracyRecord, error)
	MarkVerified(ctx context.Context, id int64, v Verification) (*models.AccuracyRecord, error)

	UpdateModelPerformance(ctx context.Context, key ModelKey, fn func(*models.ModelPerformance) error) (*models.ModelPerformance, error)
	UpdateUserStats(ctx context.Context, userID int64, fn func(*models.UserAccuracyStats) error) (*models.UserAccuracyStats, error)
	GetModelPerformance(ctx context.Context, key ModelKey) (*models.ModelPerformance, error)
	GetUserStats(ctx context.Context, userID int64) (*models.UserAccuracyStats, error)
	ListModelPerformance(ctx context.Context) ([]models.ModelPerformance, error)
	ListUserStats(ctx context.Context) ([]models.UserAccuracyStats, error)

	// DeletePrediction and DeleteUser cascade to owned records; DeleteUser
	// also drops the user's aggregate row.
	DeletePrediction(ctx context.Context, predictionID int64) error
	DeleteUser(ctx context.Context, userID int64) error
}
