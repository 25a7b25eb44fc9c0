package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/accuracy"
	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// TestLeaderboardsRoundTrip needs a disposable Redis at TEST_REDIS_ADDR.
func TestLeaderboardsRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	c, err := NewLeaderboards(ctx, addr, time.Minute)
	if err != nil {
		t.Fatalf("NewLeaderboards() error = %v", err)
	}
	defer c.Close()

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	var miss []models.UserLeaderboardEntry
	if ok, err := c.Get(ctx, accuracy.BoardUsers, &miss); err != nil || ok {
		t.Fatalf("Get() on empty cache = %v, %v; want miss", ok, err)
	}

	want := []models.UserLeaderboardEntry{
		{Rank: 1, UserID: 4, VerifiedPredictions: 3, AccuratePredictions: 3, SuccessRate: decimal.NewFromInt(1)},
		{Rank: 2, UserID: 9, VerifiedPredictions: 2, AccuratePredictions: 1, SuccessRate: decimal.RequireFromString("0.5")},
	}
	gen, err := c.Generation(ctx)
	if err != nil {
		t.Fatalf("Generation() error = %v", err)
	}
	if ok, err := c.SetIfGeneration(ctx, accuracy.BoardUsers, want, gen); err != nil || !ok {
		t.Fatalf("SetIfGeneration() = %v, %v; want stored", ok, err)
	}

	var got []models.UserLeaderboardEntry
	ok, err := c.Get(ctx, accuracy.BoardUsers, &got)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want hit", ok, err)
	}
	if len(got) != 2 || got[1].UserID != 9 || !got[1].SuccessRate.Equal(want[1].SuccessRate) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if ok, _ := c.Get(ctx, accuracy.BoardUsers, &got); ok {
		t.Error("board still cached after Invalidate()")
	}

	// A board computed before that invalidation must not be stored.
	if ok, err := c.SetIfGeneration(ctx, accuracy.BoardUsers, want, gen); err != nil || ok {
		t.Errorf("SetIfGeneration() with stale generation = %v, %v; want skipped", ok, err)
	}
	if ok, _ := c.Get(ctx, accuracy.BoardUsers, &got); ok {
		t.Error("stale board cached")
	}
}
