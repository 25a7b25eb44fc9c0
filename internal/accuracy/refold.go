package accuracy

import (
	"context"
	"fmt"
	"strings"

	"github.com/mauv0809/forecast-accuracy/internal/models"
)

// RefoldResult summarises a re-fold run.
type RefoldResult struct {
	Records int `json:"records"`
	Models  int `json:"models"`
	Users   int `json:"users"`
}

// Refold rebuilds every model and user aggregate from the full record
// history, overwriting whatever the incremental path left behind. Keys that
// no longer have records are reset to zero counters.
//
// Record writes wait while a refold runs, so the history it folds is the
// history the aggregates end up describing.
func (e *Engine) Refold(ctx context.Context) (RefoldResult, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	records, err := e.store.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return RefoldResult{}, fmt.Errorf("listing records: %w", err)
	}
	now := e.now()
	foldedModels := FoldModels(records, e.threshold, now)
	foldedUsers := FoldUsers(records, e.threshold, now)

	existingModels, err := e.store.ListModelPerformance(ctx)
	if err != nil {
		return RefoldResult{}, fmt.Errorf("listing model performance: %w", err)
	}
	for _, mp := range existingModels {
		key := ModelKey{Model: mp.ModelName, Symbol: mp.StockSymbol}
		if _, ok := foldedModels[key]; !ok {
			foldedModels[key] = &models.ModelPerformance{ModelName: key.Model, StockSymbol: key.Symbol, LastUpdated: now}
		}
	}
	existingUsers, err := e.store.ListUserStats(ctx)
	if err != nil {
		return RefoldResult{}, fmt.Errorf("listing user stats: %w", err)
	}
	for _, us := range existingUsers {
		if _, ok := foldedUsers[us.UserID]; !ok {
			foldedUsers[us.UserID] = &models.UserAccuracyStats{UserID: us.UserID, UpdatedAt: now}
		}
	}

	for key, fresh := range foldedModels {
		if err := e.replaceModel(ctx, key, fresh); err != nil {
			return RefoldResult{}, err
		}
	}
	for userID, fresh := range foldedUsers {
		if err := e.replaceUser(ctx, userID, fresh); err != nil {
			return RefoldResult{}, err
		}
	}
	e.invalidate(ctx)

	e.logger.Info().
		Int("records", len(records)).
		Int("models", len(foldedModels)).
		Int("users", len(foldedUsers)).
		Msg("Aggregates refolded")

	return RefoldResult{Records: len(records), Models: len(foldedModels), Users: len(foldedUsers)}, nil
}

// RefoldModel rebuilds a single (model, stock) aggregate from that key's
// history, read while the key is locked.
func (e *Engine) RefoldModel(ctx context.Context, model, symbol string) (*models.ModelPerformance, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	key := ModelKey{Model: model, Symbol: strings.ToUpper(symbol)}
	mp, err := e.store.UpdateModelPerformance(ctx, key, func(mp *models.ModelPerformance) error {
		records, err := e.store.ListRecords(ctx, RecordFilter{ModelUsed: key.Model, StockSymbol: key.Symbol})
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}
		now := e.now()
		fresh, ok := FoldModels(records, e.threshold, now)[key]
		if !ok {
			fresh = &models.ModelPerformance{ModelName: key.Model, StockSymbol: key.Symbol, LastUpdated: now}
		}
		*mp = *fresh
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refolding model performance %s: %w", key, err)
	}
	e.invalidate(ctx)
	return mp, nil
}

// RefoldUser rebuilds a single user aggregate from that user's history, read
// while the user's row is locked.
func (e *Engine) RefoldUser(ctx context.Context, userID int64) (*models.UserAccuracyStats, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	us, err := e.store.UpdateUserStats(ctx, userID, func(us *models.UserAccuracyStats) error {
		records, err := e.store.ListRecords(ctx, RecordFilter{UserID: userID})
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}
		now := e.now()
		fresh, ok := FoldUsers(records, e.threshold, now)[userID]
		if !ok {
			fresh = &models.UserAccuracyStats{UserID: userID, UpdatedAt: now}
		}
		*us = *fresh
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("refolding user stats %d: %w", userID, err)
	}
	e.invalidate(ctx)
	return us, nil
}

func (e *Engine) replaceModel(ctx context.Context, key ModelKey, fresh *models.ModelPerformance) error {
	if _, err := e.store.UpdateModelPerformance(ctx, key, func(mp *models.ModelPerformance) error {
		*mp = *fresh
		return nil
	}); err != nil {
		return fmt.Errorf("replacing model performance %s: %w", key, err)
	}
	return nil
}

func (e *Engine) replaceUser(ctx context.Context, userID int64, fresh *models.UserAccuracyStats) error {
	if _, err := e.store.UpdateUserStats(ctx, userID, func(us *models.UserAccuracyStats) error {
		*us = *fresh
		return nil
	}); err != nil {
		return fmt.Errorf("replacing user stats %d: %w", userID, err)
	}
	return nil
}
