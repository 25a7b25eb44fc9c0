package accuracy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultAccuracyThreshold is the accuracy percentage at or above which a
// verified prediction counts as accurate when no threshold is configured.
var DefaultAccuracyThreshold = decimal.NewFromInt(90)

// Leaderboard names used as cache keys.
const (
	BoardModels = "models"
	BoardUsers  = "users"
)

// LeaderboardCache stores projected leaderboards between aggregate updates.
//
// Every Invalidate advances the generation. SetIfGeneration stores a board
// only while the generation still equals the one read before the board was
// computed, so a board built from aggregates that changed meanwhile is never
// cached.
type LeaderboardCache interface {
	Get(ctx context.Context, board string, dst any) (bool, error)
	Generation(ctx context.Context) (int64, error)
	SetIfGeneration(ctx context.Context, board string, v any, gen int64) (bool, error)
	Invalidate(ctx context.Context) error
}

// NewRecord is the input to CreateRecord.
type NewRecord struct {
	PredictionID    int64            `json:"prediction_id"`
	UserID          int64            `json:"user_id"`
	StockSymbol     string           `json:"stock_symbol"`
	PredictionDate  time.Time        `json:"prediction_date"`
	TargetDate      time.Time        `json:"target_date"`
	PredictedPrice  decimal.Decimal  `json:"predicted_price"`
	ModelUsed       string           `json:"model_used"`
	ConfidenceScore *decimal.Decimal `json:"confidence_score,omitempty"`
}

// Engine records predictions, reconciles them against actual prices and keeps
// the model and user aggregates current.
type Engine struct {
	// gate is held shared by every record write and its aggregate updates,
	// and exclusively by refolds.
	gate sync.RWMutex

	store     Store
	threshold decimal.Decimal
	cache     LeaderboardCache
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the accuracy percentage at or above which a prediction
// counts as accurate.
func WithThreshold(t decimal.Decimal) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithCache enables leaderboard caching.
func WithCache(c LeaderboardCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		threshold: DefaultAccuracyThreshold,
		now:       time.Now,
		logger:    log.With().Str("component", "accuracy").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured accuracy threshold.
func (e *Engine) Threshold() decimal.Decimal {
	return e.threshold
}

// CreateRecord stores a new unverified prediction and counts it in the
// model and user aggregates.
func (e *Engine) CreateRecord(ctx context.Context, in NewRecord) (*models.AccuracyRecord, error) {
	in.StockSymbol = strings.ToUpper(strings.TrimSpace(in.StockSymbol))
	in.ModelUsed = strings.TrimSpace(in.ModelUsed)
	in.PredictedPrice = in.PredictedPrice.Round(PriceScale)
	if in.PredictionDate.IsZero() {
		in.PredictionDate = e.now()
	}
	if err := validateNewRecord(in); err != nil {
		return nil, err
	}
	if err := e.checkOwners(ctx, in.PredictionID, in.UserID); err != nil {
		return nil, err
	}

	e.gate.RLock()
	defer e.gate.RUnlock()

	rec := &models.AccuracyRecord{
		PredictionID:    in.PredictionID,
		UserID:          in.UserID,
		StockSymbol:     in.StockSymbol,
		PredictionDate:  in.PredictionDate,
		TargetDate:      in.TargetDate,
		PredictedPrice:  in.PredictedPrice,
		ModelUsed:       in.ModelUsed,
		ConfidenceScore: in.ConfidenceScore,
		CreatedAt:       e.now(),
	}
	if err := e.store.InsertRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("inserting accuracy record: %w", err)
	}

	e.applyCreated(ctx, rec)
	return rec, nil
}

func validateNewRecord(in NewRecord) error {
	switch {
	case in.PredictionID <= 0:
		return invalid("prediction_id", "must be positive")
	case in.UserID <= 0:
		return invalid("user_id", "must be positive")
	case in.StockSymbol == "":
		return invalid("stock_symbol", "required")
	case len(in.StockSymbol) > 20:
		return invalid("stock_symbol", "longer than 20 characters")
	case in.ModelUsed == "":
		return invalid("model_used", "required")
	case len(in.ModelUsed) > 50:
		return invalid("model_used", "longer than 50 characters")
	case !in.PredictedPrice.IsPositive():
		return invalid("predicted_price", "must be greater than zero")
	case in.TargetDate.IsZero():
		return invalid("target_date", "required")
	case in.TargetDate.Before(in.PredictionDate):
		return invalid("target_date", "before prediction date")
	}
	if c := in.ConfidenceScore; c != nil && (c.IsNegative() || c.GreaterThan(hundred)) {
		return invalid("confidence_score", "outside [0, 100]")
	}
	return nil
}

func (e *Engine) checkOwners(ctx context.Context, predictionID, userID int64) error {
	ok, err := e.store.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking user: %w", err)
	}
	if !ok {
		return invalid("user_id", fmt.Sprintf("user %d does not exist", userID))
	}
	owner, err := e.store.PredictionOwner(ctx, predictionID)
	if IsNotFound(err) {
		return invalid("prediction_id", fmt.Sprintf("prediction %d does not exist", predictionID))
	}
	if err != nil {
		return fmt.Errorf("checking prediction: %w", err)
	}
	if owner != userID {
		return invalid("prediction_id", fmt.Sprintf("prediction %d belongs to another user", predictionID))
	}
	return nil
}

// RecordActualPrice reconciles a record against the observed price. It
// succeeds at most once per record; later calls return *AlreadyVerifiedError
// and leave the stored score untouched.
func (e *Engine) RecordActualPrice(ctx context.Context, recordID int64, actual decimal.Decimal) (*models.AccuracyRecord, error) {
	actual = actual.Round(PriceScale)
	if !actual.IsPositive() {
		return nil, invalid("actual_price", "must be greater than zero")
	}

	e.gate.RLock()
	defer e.gate.RUnlock()

	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Verified {
		return nil, &AlreadyVerifiedError{RecordID: recordID}
	}

	predictionError, acc := Score(rec.PredictedPrice, actual)
	verified, err := e.store.MarkVerified(ctx, recordID, Verification{
		ActualPrice:     actual,
		Accuracy:        acc,
		PredictionError: predictionError,
		VerifiedAt:      e.now(),
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Int64("record_id", recordID).
		Str("symbol", verified.StockSymbol).
		Str("model", verified.ModelUsed).
		Str("accuracy", acc.String()).
		Msg("Record verified")

	e.applyVerified(ctx, verified)
	return verified, nil
}

// applyCreated and applyVerified update the model aggregate, then the user
// aggregate. Failures are logged, not returned: the record is already
// committed and the aggregates can be rebuilt with Refold. The caller's
// cancellation does not stop a half-applied event.
func (e *Engine) applyCreated(ctx context.Context, rec *models.AccuracyRecord) {
	ctx = context.WithoutCancel(ctx)
	now := e.now()
	key := ModelKey{Model: rec.ModelUsed, Symbol: rec.StockSymbol}
	if _, err := e.store.UpdateModelPerformance(ctx, key, func(mp *models.ModelPerformance) error {
		applyCreatedToModel(mp, rec, now)
		return nil
	}); err != nil {
		e.logAggregateFailure(err, "model", key.String(), rec.ID)
	}
	if _, err := e.store.UpdateUserStats(ctx, rec.UserID, func(us *models.UserAccuracyStats) error {
		applyCreatedToUser(us, rec, now)
		return nil
	}); err != nil {
		e.logAggregateFailure(err, "user", fmt.Sprint(rec.UserID), rec.ID)
	}
	e.invalidate(ctx)
}

func (e *Engine) applyVerified(ctx context.Context, rec *models.AccuracyRecord) {
	ctx = context.WithoutCancel(ctx)
	now := e.now()
	key := ModelKey{Model: rec.ModelUsed, Symbol: rec.StockSymbol}
	if _, err := e.store.UpdateModelPerformance(ctx, key, func(mp *models.ModelPerformance) error {
		applyVerifiedToModel(mp, rec, e.threshold, now)
		return nil
	}); err != nil {
		e.logAggregateFailure(err, "model", key.String(), rec.ID)
	}
	if _, err := e.store.UpdateUserStats(ctx, rec.UserID, func(us *models.UserAccuracyStats) error {
		applyVerifiedToUser(us, rec, e.threshold, now)
		return nil
	}); err != nil {
		e.logAggregateFailure(err, "user", fmt.Sprint(rec.UserID), rec.ID)
	}
	e.invalidate(ctx)
}

func (e *Engine) logAggregateFailure(err error, kind, key string, recordID int64) {
	e.logger.Error().Err(err).
		Str("aggregate", kind).
		Str("key", key).
		Int64("record_id", recordID).
		Msg("Aggregate update failed, key needs refold")
}

func (e *Engine) invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("Leaderboard cache invalidation failed")
	}
}

// GetRecord returns a single record.
func (e *Engine) GetRecord(ctx context.Context, id int64) (*models.AccuracyRecord, error) {
	return e.store.GetRecord(ctx, id)
}

// ListRecords returns records matching f.
func (e *Engine) ListRecords(ctx context.Context, f RecordFilter) ([]models.AccuracyRecord, error) {
	return e.store.ListRecords(ctx, f)
}

// GetModelPerformance returns the aggregate for a (model, stock) pair.
func (e *Engine) GetModelPerformance(ctx context.Context, model, symbol string) (*models.ModelPerformance, error) {
	return e.store.GetModelPerformance(ctx, ModelKey{Model: model, Symbol: strings.ToUpper(symbol)})
}

// GetUserStats returns the aggregate for a user.
func (e *Engine) GetUserStats(ctx context.Context, userID int64) (*models.UserAccuracyStats, error) {
	return e.store.GetUserStats(ctx, userID)
}

// DeletePrediction removes a prediction and its records. Aggregates are not
// decremented; Refold brings them back in line with the remaining history.
func (e *Engine) DeletePrediction(ctx context.Context, predictionID int64) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if err := e.store.DeletePrediction(ctx, predictionID); err != nil {
		return err
	}
	e.invalidate(ctx)
	return nil
}

// DeleteUser removes a user together with their records and stats.
func (e *Engine) DeleteUser(ctx context.Context, userID int64) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	e.invalidate(ctx)
	return nil
}

// ModelLeaderboard ranks models across all stocks.
func (e *Engine) ModelLeaderboard(ctx context.Context) ([]models.ModelLeaderboardEntry, error) {
	var cached []models.ModelLeaderboardEntry
	if e.cached(ctx, BoardModels, &cached) {
		return cached, nil
	}
	gen, cacheable := e.generation(ctx)
	rows, err := e.store.ListModelPerformance(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing model performance: %w", err)
	}
	board := ProjectModelLeaderboard(rows)
	if cacheable {
		e.remember(ctx, BoardModels, board, gen)
	}
	return board, nil
}

// UserLeaderboard ranks users with at least one verified prediction.
func (e *Engine) UserLeaderboard(ctx context.Context) ([]models.UserLeaderboardEntry, error) {
	var cached []models.UserLeaderboardEntry
	if e.cached(ctx, BoardUsers, &cached) {
		return cached, nil
	}
	gen, cacheable := e.generation(ctx)
	rows, err := e.store.ListUserStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing user stats: %w", err)
	}
	board := ProjectUserLeaderboard(rows)
	if cacheable {
		e.remember(ctx, BoardUsers, board, gen)
	}
	return board, nil
}

func (e *Engine) cached(ctx context.Context, board string, dst any) bool {
	if e.cache == nil {
		return false
	}
	ok, err := e.cache.Get(ctx, board, dst)
	if err != nil {
		e.logger.Warn().Err(err).Str("board", board).Msg("Leaderboard cache read failed")
		return false
	}
	return ok
}

// generation reads the cache generation before a board is computed. It
// reports false when there is no cache or the read failed.
func (e *Engine) generation(ctx context.Context) (int64, bool) {
	if e.cache == nil {
		return 0, false
	}
	gen, err := e.cache.Generation(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Leaderboard cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (e *Engine) remember(ctx context.Context, board string, v any, gen int64) {
	stored, err := e.cache.SetIfGeneration(ctx, board, v, gen)
	if err != nil {
		e.logger.Warn().Err(err).Str("board", board).Msg("Leaderboard cache write failed")
		return
	}
	if !stored {
		e.logger.Debug().Str("board", board).Msg("Aggregates changed while projecting, board not cached")
	}
}
