package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

const foreignKeyViolation = "23503"

const recordColumns = `id, prediction_id, user_id, stock_symbol, prediction_date, target_date,
	predicted_price, actual_price, accuracy_percentage, prediction_error,
	verified, verified_date, model_used, confidence_score, created_at`

const modelPerformanceColumns = `model_name, stock_symbol, total_predictions, verified_predictions,
	accurate_predictions, average_accuracy, average_error, best_accuracy, worst_accuracy, last_updated`

const userStatsColumns = `user_id, total_predictions, verified_predictions, accurate_predictions,
	success_rate, best_accuracy, COALESCE(favorite_model, ''), last_prediction_date, updated_at`

// Repository is the Postgres implementation of accuracy.Store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ accuracy.Store = (*Repository)(nil)

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// UserExists checks if a user exists in the database.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	return exists, err
}

// PredictionOwner returns the user a prediction belongs to.
func (r *Repository) PredictionOwner(ctx context.Context, predictionID int64) (int64, error) {
	var owner int64
	err := r.pool.QueryRow(ctx, "SELECT user_id FROM predictions WHERE id = $1", predictionID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &accuracy.NotFoundError{Kind: "prediction", Key: strconv.FormatInt(predictionID, 10)}
	}
	if err != nil {
		return 0, fmt.Errorf("querying prediction owner: %w", err)
	}
	return owner, nil
}

// InsertRecord stores a new unverified record and fills in its id.
func (r *Repository) InsertRecord(ctx context.Context, rec *models.AccuracyRecord) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accuracy_records (
			prediction_id, user_id, stock_symbol, prediction_date, target_date,
			predicted_price, model_used, confidence_score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		rec.PredictionID, rec.UserID, rec.StockSymbol, rec.PredictionDate, rec.TargetDate,
		rec.PredictedPrice, rec.ModelUsed, decimalPtr(rec.ConfidenceScore), rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &accuracy.ValidationError{Field: "prediction_id", Reason: "owner no longer exists"}
		}
		return fmt.Errorf("inserting accuracy record: %w", err)
	}
	return nil
}

// GetRecord returns one record by id.
func (r *Repository) GetRecord(ctx context.Context, id int64) (*models.AccuracyRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, "SELECT "+recordColumns+" FROM accuracy_records WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, recordNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying accuracy record: %w", err)
	}
	return rec, nil
}

// ListRecords returns records matching the filter ordered by id.
func (r *Repository) ListRecords(ctx context.Context, f accuracy.RecordFilter) ([]models.AccuracyRecord, error) {
	query, args := buildRecordQuery(f)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accuracy records: %w", err)
	}
	defer rows.Close()

	var records []models.AccuracyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning accuracy record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func buildRecordQuery(f accuracy.RecordFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if f.PredictionID != 0 {
		add("prediction_id = $%d", f.PredictionID)
	}
	if f.ModelUsed != "" {
		add("model_used = $%d", f.ModelUsed)
	}
	if f.StockSymbol != "" {
		add("stock_symbol = $%d", f.StockSymbol)
	}
	if f.Verified != nil {
		add("verified = $%d", *f.Verified)
	}
	if !f.TargetBefore.IsZero() {
		add("target_date <= $%d", f.TargetBefore)
	}
	if f.AfterID != 0 {
		add("id > $%d", f.AfterID)
	}

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM accuracy_records")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// MarkVerified stores the reconciliation outcome if, and only if, the record
// is still unverified.
func (r *Repository) MarkVerified(ctx context.Context, id int64, v accuracy.Verification) (*models.AccuracyRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		UPDATE accuracy_records SET
			actual_price = $2,
			accuracy_percentage = $3,
			prediction_error = $4,
			verified = TRUE,
			verified_date = $5
		WHERE id = $1 AND NOT verified
		RETURNING `+recordColumns,
		id, v.ActualPrice, v.Accuracy, v.PredictionError, v.VerifiedAt,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("verifying accuracy record: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accuracy_records WHERE id = $1)", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking accuracy record: %w", err)
	}
	if !exists {
		return nil, recordNotFound(id)
	}
	return nil, &accuracy.AlreadyVerifiedError{RecordID: id}
}

// UpdateModelPerformance applies fn to the (model, stock) row while holding
// its row lock.
func (r *Repository) UpdateModelPerformance(ctx context.Context, key accuracy.ModelKey, fn func(*models.ModelPerformance) error) (*models.ModelPerformance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO model_performance (model_name, stock_symbol)
		VALUES ($1, $2)
		ON CONFLICT (model_name, stock_symbol) DO NOTHING
	`, key.Model, key.Symbol); err != nil {
		return nil, fmt.Errorf("creating model performance: %w", err)
	}

	mp, err := scanModelPerformance(tx.QueryRow(ctx,
		"SELECT "+modelPerformanceColumns+" FROM model_performance WHERE model_name = $1 AND stock_symbol = $2 FOR UPDATE",
		key.Model, key.Symbol))
	if err != nil {
		return nil, fmt.Errorf("locking model performance: %w", err)
	}

	if err := fn(mp); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE model_performance SET
			total_predictions = $3,
			verified_predictions = $4,
			accurate_predictions = $5,
			average_accuracy = $6,
			average_error = $7,
			best_accuracy = $8,
			worst_accuracy = $9,
			last_updated = $10
		WHERE model_name = $1 AND stock_symbol = $2
	`,
		key.Model, key.Symbol,
		mp.TotalPredictions, mp.VerifiedPredictions, mp.AccuratePredictions,
		decimalPtr(mp.AverageAccuracy), decimalPtr(mp.AverageError),
		decimalPtr(mp.BestAccuracy), decimalPtr(mp.WorstAccuracy),
		mp.LastUpdated,
	); err != nil {
		return nil, fmt.Errorf("updating model performance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing model performance: %w", err)
	}
	return mp, nil
}

// UpdateUserStats applies fn to the user's row, and their model usage rows,
// while holding the row lock.
func (r *Repository) UpdateUserStats(ctx context.Context, userID int64, fn func(*models.UserAccuracyStats) error) (*models.UserAccuracyStats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO user_accuracy_stats (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		if isForeignKeyViolation(err) {
			return nil, &accuracy.NotFoundError{Kind: "user", Key: strconv.FormatInt(userID, 10)}
		}
		return nil, fmt.Errorf("creating user stats: %w", err)
	}

	us, err := scanUserStats(tx.QueryRow(ctx,
		"SELECT "+userStatsColumns+" FROM user_accuracy_stats WHERE user_id = $1 FOR UPDATE", userID))
	if err != nil {
		return nil, fmt.Errorf("locking user stats: %w", err)
	}
	if us.ModelUsage, err = loadModelUsage(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := fn(us); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_accuracy_stats SET
			total_predictions = $2,
			verified_predictions = $3,
			accurate_predictions = $4,
			success_rate = $5,
			best_accuracy = $6,
			favorite_model = NULLIF($7, ''),
			last_prediction_date = $8,
			updated_at = $9
		WHERE user_id = $1
	`,
		userID,
		us.TotalPredictions, us.VerifiedPredictions, us.AccuratePredictions,
		decimalPtr(us.SuccessRate), decimalPtr(us.BestAccuracy),
		us.FavoriteModel, us.LastPredictionDate, us.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("updating user stats: %w", err)
	}
	if err := saveModelUsage(ctx, tx, userID, us.ModelUsage); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing user stats: %w", err)
	}
	return us, nil
}

func loadModelUsage(ctx context.Context, q querier, userID int64) (map[string]models.ModelUsage, error) {
	rows, err := q.Query(ctx, "SELECT model_name, prediction_count, last_used_at FROM user_model_usage WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("querying model usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]models.ModelUsage)
	for rows.Next() {
		var (
			name string
			u    models.ModelUsage
		)
		if err := rows.Scan(&name, &u.Count, &u.LastUsed); err != nil {
			return nil, fmt.Errorf("scanning model usage: %w", err)
		}
		usage[name] = u
	}
	return usage, rows.Err()
}

func saveModelUsage(ctx context.Context, tx pgx.Tx, userID int64, usage map[string]models.ModelUsage) error {
	names := make([]string, 0, len(usage))
	batch := &pgx.Batch{}
	for name, u := range usage {
		names = append(names, name)
		batch.Queue(`
			INSERT INTO user_model_usage (user_id, model_name, prediction_count, last_used_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, model_name) DO UPDATE SET
				prediction_count = EXCLUDED.prediction_count,
				last_used_at = EXCLUDED.last_used_at
		`, userID, name, u.Count, u.LastUsed)
	}
	batch.Queue("DELETE FROM user_model_usage WHERE user_id = $1 AND NOT (model_name = ANY($2))", userID, names)

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("saving model usage: %w", err)
		}
	}
	return nil
}

// GetModelPerformance returns the aggregate for a (model, stock) pair.
func (r *Repository) GetModelPerformance(ctx context.Context, key accuracy.ModelKey) (*models.ModelPerformance, error) {
	mp, err := scanModelPerformance(r.pool.QueryRow(ctx,
		"SELECT "+modelPerformanceColumns+" FROM model_performance WHERE model_name = $1 AND stock_symbol = $2",
		key.Model, key.Symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &accuracy.NotFoundError{Kind: "model performance", Key: key.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("querying model performance: %w", err)
	}
	return mp, nil
}

// GetUserStats returns the aggregate for a user, including model usage.
func (r *Repository) GetUserStats(ctx context.Context, userID int64) (*models.UserAccuracyStats, error) {
	us, err := scanUserStats(r.pool.QueryRow(ctx,
		"SELECT "+userStatsColumns+" FROM user_accuracy_stats WHERE user_id = $1", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &accuracy.NotFoundError{Kind: "user stats", Key: strconv.FormatInt(userID, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("querying user stats: %w", err)
	}

	if us.ModelUsage, err = loadModelUsage(ctx, r.pool, userID); err != nil {
		return nil, err
	}
	return us, nil
}

// ListModelPerformance returns every (model, stock) aggregate.
func (r *Repository) ListModelPerformance(ctx context.Context) ([]models.ModelPerformance, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+modelPerformanceColumns+" FROM model_performance ORDER BY model_name, stock_symbol")
	if err != nil {
		return nil, fmt.Errorf("querying model performance: %w", err)
	}
	defer rows.Close()

	var out []models.ModelPerformance
	for rows.Next() {
		mp, err := scanModelPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model performance: %w", err)
		}
		out = append(out, *mp)
	}
	return out, rows.Err()
}

// ListUserStats returns every user aggregate, without model usage.
func (r *Repository) ListUserStats(ctx context.Context) ([]models.UserAccuracyStats, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+userStatsColumns+" FROM user_accuracy_stats ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("querying user stats: %w", err)
	}
	defer rows.Close()

	var out []models.UserAccuracyStats
	for rows.Next() {
		us, err := scanUserStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user stats: %w", err)
		}
		out = append(out, *us)
	}
	return out, rows.Err()
}

// DeletePrediction deletes a prediction; its records go with it through the
// foreign key cascade.
func (r *Repository) DeletePrediction(ctx context.Context, predictionID int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM predictions WHERE id = $1", predictionID)
	if err != nil {
		return fmt.Errorf("deleting prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &accuracy.NotFoundError{Kind: "prediction", Key: strconv.FormatInt(predictionID, 10)}
	}
	return nil
}

// DeleteUser deletes a user; predictions, records, stats and usage cascade.
func (r *Repository) DeleteUser(ctx context.Context, userID int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &accuracy.NotFoundError{Kind: "user", Key: strconv.FormatInt(userID, 10)}
	}
	return nil
}

func scanRecord(row rowScanner) (*models.AccuracyRecord, error) {
	var (
		rec                                      models.AccuracyRecord
		actual, accuracyPct, predErr, confidence decimal.NullDecimal
	)
	err := row.Scan(
		&rec.ID, &rec.PredictionID, &rec.UserID, &rec.StockSymbol, &rec.PredictionDate, &rec.TargetDate,
		&rec.PredictedPrice, &actual, &accuracyPct, &predErr,
		&rec.Verified, &rec.VerifiedDate, &rec.ModelUsed, &confidence, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ActualPrice = nullDecimal(actual)
	rec.AccuracyPercentage = nullDecimal(accuracyPct)
	rec.PredictionError = nullDecimal(predErr)
	rec.ConfidenceScore = nullDecimal(confidence)
	return &rec, nil
}

func scanModelPerformance(row rowScanner) (*models.ModelPerformance, error) {
	var (
		mp                          models.ModelPerformance
		avgAcc, avgErr, best, worst decimal.NullDecimal
	)
	err := row.Scan(
		&mp.ModelName, &mp.StockSymbol, &mp.TotalPredictions, &mp.VerifiedPredictions,
		&mp.AccuratePredictions, &avgAcc, &avgErr, &best, &worst, &mp.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	mp.AverageAccuracy = nullDecimal(avgAcc)
	mp.AverageError = nullDecimal(avgErr)
	mp.BestAccuracy = nullDecimal(best)
	mp.WorstAccuracy = nullDecimal(worst)
	return &mp, nil
}

func scanUserStats(row rowScanner) (*models.UserAccuracyStats, error) {
	var (
		us         models.UserAccuracyStats
		rate, best decimal.NullDecimal
	)
	err := row.Scan(
		&us.UserID, &us.TotalPredictions, &us.VerifiedPredictions, &us.AccuratePredictions,
		&rate, &best, &us.FavoriteModel, &us.LastPredictionDate, &us.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	us.SuccessRate = nullDecimal(rate)
	us.BestAccuracy = nullDecimal(best)
	return &us, nil
}

// decimalPtr converts a *decimal.Decimal to interface{} for database insertion.
func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func recordNotFound(id int64) error {
	return &accuracy.NotFoundError{Kind: "accuracy record", Key: strconv.FormatInt(id, 10)}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
