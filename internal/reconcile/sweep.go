// Package reconcile settles predictions whose target date has passed by
// fetching the closing price and recording it against the accuracy record.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned by a PriceSource that has no close for the symbol
// on or before the requested date.
var ErrNoPrice = errors.New("no closing price available")

// PriceSource looks up the last close of symbol on or before date.
type PriceSource interface {
	CloseOn(ctx context.Context, symbol string, date time.Time) (decimal.Decimal, error)
}

// Engine is the part of accuracy.Engine the sweeper drives.
type Engine interface {
	ListRecords(ctx context.Context, f accuracy.RecordFilter) ([]models.AccuracyRecord, error)
	RecordActualPrice(ctx context.Context, recordID int64, actual decimal.Decimal) (*models.AccuracyRecord, error)
}

// Result counts what a sweep did with each due record.
type Result struct {
	Due             int `json:"due"`
	Reconciled      int `json:"reconciled"`
	AlreadyVerified int `json:"already_verified"`
	NoPrice         int `json:"no_price"`
	Failed          int `json:"failed"`
}

// Sweeper reconciles due records against a PriceSource.
//
// With a limit, each run takes the next window of due records after the
// previous run's cursor and wraps to the lowest id at the end, so records
// that stay due for lack of a price do not hold back the ones behind them.
type Sweeper struct {
	engine Engine
	prices PriceSource
	limit  int
	logger zerolog.Logger

	mu     sync.Mutex // one run at a time; guards cursor
	cursor int64
}

// NewSweeper creates a sweeper. limit caps the records handled per run; zero
// means no cap.
func NewSweeper(engine Engine, prices PriceSource, limit int) *Sweeper {
	return &Sweeper{
		engine: engine,
		prices: prices,
		limit:  limit,
		logger: log.With().Str("component", "reconcile").Logger(),
	}
}

type priceKey struct {
	symbol string
	date   string
}

type priceResult struct {
	price decimal.Decimal
	err   error
}

// Run settles every unverified record with a target date on or before asOf.
// Per-record failures are counted and logged; only a failure to list the due
// records or a cancelled context aborts the run.
func (s *Sweeper) Run(ctx context.Context, asOf time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.nextWindow(ctx, asOf)
	if err != nil {
		return Result{}, fmt.Errorf("listing due records: %w", err)
	}

	res := Result{Due: len(due)}
	prices := make(map[priceKey]priceResult)

	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := priceKey{symbol: rec.StockSymbol, date: rec.TargetDate.Format("2006-01-02")}
		p, ok := prices[key]
		if !ok {
			p.price, p.err = s.prices.CloseOn(ctx, rec.StockSymbol, rec.TargetDate)
			prices[key] = p
		}

		if p.err != nil {
			if errors.Is(p.err, ErrNoPrice) {
				res.NoPrice++
				s.logger.Debug().Str("symbol", rec.StockSymbol).Time("target_date", rec.TargetDate).Msg("No price yet")
				continue
			}
			res.Failed++
			s.logger.Warn().Err(p.err).Int64("record_id", rec.ID).Str("symbol", rec.StockSymbol).Msg("Price lookup failed")
			continue
		}

		if _, err := s.engine.RecordActualPrice(ctx, rec.ID, p.price); err != nil {
			if accuracy.IsAlreadyVerified(err) {
				res.AlreadyVerified++
				continue
			}
			res.Failed++
			s.logger.Warn().Err(err).Int64("record_id", rec.ID).Msg("Recording actual price failed")
			continue
		}
		res.Reconciled++
	}

	s.logger.Info().
		Int64("cursor", s.cursor).
		Int("due", res.Due).
		Int("reconciled", res.Reconciled).
		Int("already_verified", res.AlreadyVerified).
		Int("no_price", res.NoPrice).
		Int("failed", res.Failed).
		Msg("Sweep finished")

	return res, nil
}

// nextWindow lists up to limit due records after the cursor, wrapping to the
// start once, and advances the cursor past them.
func (s *Sweeper) nextWindow(ctx context.Context, asOf time.Time) ([]models.AccuracyRecord, error) {
	unverified := false
	f := accuracy.RecordFilter{
		Verified:     &unverified,
		TargetBefore: asOf,
		AfterID:      s.cursor,
		Limit:        s.limit,
	}
	due, err := s.engine.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	if s.limit == 0 {
		s.cursor = 0
		return due, nil
	}
	if len(due) == s.limit {
		s.cursor = due[len(due)-1].ID
		return due, nil
	}

	start := s.cursor
	s.cursor = 0
	if start == 0 {
		return due, nil
	}

	f.AfterID = 0
	f.Limit = s.limit - len(due)
	head, err := s.engine.ListRecords(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, rec := range head {
		if rec.ID > start {
			break
		}
		due = append(due, rec)
		if len(due) == s.limit {
			s.cursor = rec.ID
		}
	}
	return due, nil
}
