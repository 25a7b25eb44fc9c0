package accuracy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now advances one second per call so verification order is observable.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var day0 = time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{t: day0}
	opts = append([]Option{WithClock(clock.Now), WithLogger(zerolog.Nop())}, opts...)
	return NewEngine(store, opts...), store
}

// seed registers a user owning the given predictions.
func seed(store *MemoryStore, userID int64, predictionIDs ...int64) {
	store.RegisterUser(userID)
	for _, id := range predictionIDs {
		store.RegisterPrediction(id, userID)
	}
}

func newRecord(predictionID, userID int64, symbol, model, predicted string) NewRecord {
	return NewRecord{
		PredictionID:   predictionID,
		UserID:         userID,
		StockSymbol:    symbol,
		PredictionDate: day0,
		TargetDate:     day0.AddDate(0, 0, 7),
		PredictedPrice: d(predicted),
		ModelUsed:      model,
	}
}

func mustCreate(t *testing.T, e *Engine, in NewRecord) *models.AccuracyRecord {
	t.Helper()
	rec, err := e.CreateRecord(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateRecord(%+v) error = %v", in, err)
	}
	return rec
}

func mustVerify(t *testing.T, e *Engine, id int64, actual string) *models.AccuracyRecord {
	t.Helper()
	rec, err := e.RecordActualPrice(context.Background(), id, d(actual))
	if err != nil {
		t.Fatalf("RecordActualPrice(%d, %s) error = %v", id, actual, err)
	}
	return rec
}

func TestCreateRecordValidation(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10)
	seed(store, 2, 20)

	tests := []struct {
		name   string
		mutate func(*NewRecord)
	}{
		{name: "zero predicted price", mutate: func(r *NewRecord) { r.PredictedPrice = decimal.Zero }},
		{name: "negative predicted price", mutate: func(r *NewRecord) { r.PredictedPrice = d("-1") }},
		{name: "target before prediction", mutate: func(r *NewRecord) { r.TargetDate = day0.Add(-time.Hour) }},
		{name: "missing symbol", mutate: func(r *NewRecord) { r.StockSymbol = "  " }},
		{name: "missing model", mutate: func(r *NewRecord) { r.ModelUsed = "" }},
		{name: "unknown user", mutate: func(r *NewRecord) { r.UserID = 99 }},
		{name: "unknown prediction", mutate: func(r *NewRecord) { r.PredictionID = 99 }},
		{name: "prediction of another user", mutate: func(r *NewRecord) { r.PredictionID = 20 }},
		{name: "confidence above 100", mutate: func(r *NewRecord) { r.ConfidenceScore = dp("101") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newRecord(10, 1, "AAPL", "lstm", "100")
			tt.mutate(&in)
			_, err := e.CreateRecord(context.Background(), in)
			if !IsValidation(err) {
				t.Fatalf("CreateRecord() error = %v, want ValidationError", err)
			}
		})
	}

	records, _ := store.ListRecords(context.Background(), RecordFilter{})
	if len(records) != 0 {
		t.Errorf("rejected inputs stored %d records", len(records))
	}
}

func TestCreateRecordStartsUnverified(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10)

	in := newRecord(10, 1, " aapl ", "lstm", "187.25")
	in.TargetDate = day0 // same instant is allowed
	rec := mustCreate(t, e, in)

	if rec.ID == 0 {
		t.Error("ID was not assigned")
	}
	if rec.StockSymbol != "AAPL" {
		t.Errorf("StockSymbol = %q, want AAPL", rec.StockSymbol)
	}
	if rec.Verified || rec.ActualPrice != nil || rec.AccuracyPercentage != nil || rec.PredictionError != nil || rec.VerifiedDate != nil {
		t.Errorf("new record has reconciliation fields set: %+v", rec)
	}

	mp, err := e.GetModelPerformance(context.Background(), "lstm", "aapl")
	if err != nil {
		t.Fatalf("GetModelPerformance() error = %v", err)
	}
	if mp.TotalPredictions != 1 || mp.VerifiedPredictions != 0 || mp.AverageAccuracy != nil {
		t.Errorf("model aggregate = %+v, want one unverified prediction", mp)
	}

	us, err := e.GetUserStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUserStats() error = %v", err)
	}
	if us.TotalPredictions != 1 || us.SuccessRate != nil || us.FavoriteModel != "lstm" {
		t.Errorf("user aggregate = %+v", us)
	}
	if us.LastPredictionDate == nil || !us.LastPredictionDate.Equal(day0) {
		t.Errorf("LastPredictionDate = %v, want %v", us.LastPredictionDate, day0)
	}
}

func TestRecordActualPriceExactlyOnce(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10)
	rec := mustCreate(t, e, newRecord(10, 1, "INFY", "lstm", "2500.00"))

	first := mustVerify(t, e, rec.ID, "2478.50")
	if !first.Verified || first.VerifiedDate == nil {
		t.Fatalf("record not verified: %+v", first)
	}
	if got, want := *first.PredictionError, d("21.50"); !got.Equal(want) {
		t.Errorf("PredictionError = %s, want %s", got, want)
	}
	if got, want := *first.AccuracyPercentage, d("99.13"); !got.Equal(want) {
		t.Errorf("AccuracyPercentage = %s, want %s", got, want)
	}

	_, err := e.RecordActualPrice(context.Background(), rec.ID, d("1000"))
	if !IsAlreadyVerified(err) {
		t.Fatalf("second RecordActualPrice() error = %v, want AlreadyVerifiedError", err)
	}

	stored, err := e.GetRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if !stored.ActualPrice.Equal(d("2478.50")) || !stored.AccuracyPercentage.Equal(d("99.13")) {
		t.Errorf("stored score changed after rejected call: %+v", stored)
	}

	mp, _ := e.GetModelPerformance(context.Background(), "lstm", "INFY")
	if mp.VerifiedPredictions != 1 {
		t.Errorf("VerifiedPredictions = %d, want 1", mp.VerifiedPredictions)
	}
}

func TestRecordActualPriceErrors(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10)
	rec := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "100"))

	if _, err := e.RecordActualPrice(context.Background(), 12345, d("10")); !IsNotFound(err) {
		t.Errorf("unknown record error = %v, want NotFoundError", err)
	}
	for _, actual := range []string{"0", "-3"} {
		if _, err := e.RecordActualPrice(context.Background(), rec.ID, d(actual)); !IsValidation(err) {
			t.Errorf("actual %s error = %v, want ValidationError", actual, err)
		}
	}
	got, _ := e.GetRecord(context.Background(), rec.ID)
	if got.Verified {
		t.Error("record verified by a rejected call")
	}
}

func TestRecordActualPriceConcurrent(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10)
	rec := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "100"))

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.RecordActualPrice(context.Background(), rec.ID, decimal.NewFromInt(int64(90+i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsAlreadyVerified(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || rejected != callers-1 {
		t.Errorf("successes = %d, rejected = %d, want 1 and %d", successes, rejected, callers-1)
	}
	mp, _ := e.GetModelPerformance(context.Background(), "lstm", "AAPL")
	us, _ := e.GetUserStats(context.Background(), 1)
	if mp.VerifiedPredictions != 1 || us.VerifiedPredictions != 1 {
		t.Errorf("verified counts = %d (model), %d (user), want 1", mp.VerifiedPredictions, us.VerifiedPredictions)
	}
}

func TestAggregatesOnlineMean(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10, 11, 12)

	a := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "110"))
	b := mustCreate(t, e, newRecord(11, 1, "AAPL", "lstm", "80"))
	c := mustCreate(t, e, newRecord(12, 1, "AAPL", "lstm", "100"))
	mustVerify(t, e, a.ID, "100") // accuracy 90, error 10
	mustVerify(t, e, b.ID, "100") // accuracy 80, error 20
	mustVerify(t, e, c.ID, "100") // accuracy 100, error 0

	mp, err := e.GetModelPerformance(context.Background(), "lstm", "AAPL")
	if err != nil {
		t.Fatalf("GetModelPerformance() error = %v", err)
	}
	if mp.TotalPredictions != 3 || mp.VerifiedPredictions != 3 || mp.AccuratePredictions != 2 {
		t.Errorf("counters = %d/%d/%d, want 3/3/2", mp.TotalPredictions, mp.VerifiedPredictions, mp.AccuratePredictions)
	}
	checks := []struct {
		name string
		got  *decimal.Decimal
		want string
	}{
		{"AverageAccuracy", mp.AverageAccuracy, "90"},
		{"AverageError", mp.AverageError, "10"},
		{"BestAccuracy", mp.BestAccuracy, "100"},
		{"WorstAccuracy", mp.WorstAccuracy, "80"},
	}
	for _, c := range checks {
		if c.got == nil || !c.got.Equal(d(c.want)) {
			t.Errorf("%s = %v, want %s", c.name, c.got, c.want)
		}
	}

	us, _ := e.GetUserStats(context.Background(), 1)
	wantRate := decimal.NewFromInt(2).Div(decimal.NewFromInt(3))
	if us.SuccessRate == nil || !us.SuccessRate.Equal(wantRate) {
		t.Errorf("SuccessRate = %v, want %s", us.SuccessRate, wantRate)
	}
	if us.BestAccuracy == nil || !us.BestAccuracy.Equal(d("100")) {
		t.Errorf("BestAccuracy = %v, want 100", us.BestAccuracy)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	e, store := newTestEngine(t, WithThreshold(d("95")))
	seed(store, 1, 10, 11)

	a := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "95"))
	b := mustCreate(t, e, newRecord(11, 1, "AAPL", "lstm", "94.99"))
	mustVerify(t, e, a.ID, "100") // 95.00
	mustVerify(t, e, b.ID, "100") // 94.99

	mp, _ := e.GetModelPerformance(context.Background(), "lstm", "AAPL")
	if mp.AccuratePredictions != 1 {
		t.Errorf("AccuratePredictions = %d, want 1", mp.AccuratePredictions)
	}
}

func TestFavoriteModel(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 1, 2, 3, 4)

	create := func(predID int64, model string, at time.Time) {
		in := newRecord(predID, 1, "TCS", model, "3500")
		in.PredictionDate = at
		in.TargetDate = at.AddDate(0, 0, 1)
		mustCreate(t, e, in)
	}

	create(1, "arima", day0)
	create(2, "lstm", day0.Add(time.Hour))
	us, _ := e.GetUserStats(context.Background(), 1)
	if us.FavoriteModel != "lstm" {
		t.Errorf("tie: FavoriteModel = %q, want most recently used lstm", us.FavoriteModel)
	}

	create(3, "arima", day0.Add(2*time.Hour))
	us, _ = e.GetUserStats(context.Background(), 1)
	if us.FavoriteModel != "arima" {
		t.Errorf("FavoriteModel = %q, want arima", us.FavoriteModel)
	}

	create(4, "lstm", day0.Add(3*time.Hour))
	us, _ = e.GetUserStats(context.Background(), 1)
	if us.FavoriteModel != "lstm" {
		t.Errorf("tie after catch-up: FavoriteModel = %q, want lstm", us.FavoriteModel)
	}
}

func TestAggregateInvariantsAfterEveryEvent(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	symbols := []string{"AAPL", "TCS", "INFY"}
	modelNames := []string{"lstm", "arima"}
	var ids []int64
	predID := int64(0)
	for user := int64(1); user <= 3; user++ {
		store.RegisterUser(user)
		for i := 0; i < 6; i++ {
			predID++
			store.RegisterPrediction(predID, user)
			in := newRecord(predID, user, symbols[i%len(symbols)], modelNames[(i+int(user))%len(modelNames)], fmt.Sprintf("%d", 90+i*7))
			ids = append(ids, mustCreate(t, e, in).ID)
			assertInvariants(t, e)
		}
	}
	for i, id := range ids {
		if i%4 == 3 {
			continue // leave some unverified
		}
		mustVerify(t, e, id, fmt.Sprintf("%d", 100+i))
		assertInvariants(t, e)
	}

	leaders, err := e.UserLeaderboard(ctx)
	if err != nil {
		t.Fatalf("UserLeaderboard() error = %v", err)
	}
	if len(leaders) != 3 {
		t.Errorf("len(UserLeaderboard) = %d, want 3", len(leaders))
	}
}

func assertInvariants(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	perf, _ := e.store.ListModelPerformance(ctx)
	for _, mp := range perf {
		if !(mp.AccuratePredictions <= mp.VerifiedPredictions && mp.VerifiedPredictions <= mp.TotalPredictions) {
			t.Fatalf("model %s/%s counters %d/%d/%d violate accurate <= verified <= total",
				mp.ModelName, mp.StockSymbol, mp.AccuratePredictions, mp.VerifiedPredictions, mp.TotalPredictions)
		}
		if (mp.VerifiedPredictions > 0) != (mp.AverageAccuracy != nil) {
			t.Fatalf("model %s/%s average defined = %v with %d verified",
				mp.ModelName, mp.StockSymbol, mp.AverageAccuracy != nil, mp.VerifiedPredictions)
		}
	}
	stats, _ := e.store.ListUserStats(ctx)
	for _, us := range stats {
		if !(us.AccuratePredictions <= us.VerifiedPredictions && us.VerifiedPredictions <= us.TotalPredictions) {
			t.Fatalf("user %d counters violate accurate <= verified <= total", us.UserID)
		}
		if us.VerifiedPredictions == 0 {
			if us.SuccessRate != nil {
				t.Fatalf("user %d has success rate without verified predictions", us.UserID)
			}
			continue
		}
		want := decimal.NewFromInt(us.AccuratePredictions).Div(decimal.NewFromInt(us.VerifiedPredictions))
		if us.SuccessRate == nil || !us.SuccessRate.Equal(want) {
			t.Fatalf("user %d SuccessRate = %v, want %s", us.UserID, us.SuccessRate, want)
		}
	}
}

func TestParallelUpdatesOnDistinctAndSharedKeys(t *testing.T) {
	e, store := newTestEngine(t)
	const users, perUser = 8, 25

	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		store.RegisterUser(u)
		for i := int64(0); i < perUser; i++ {
			store.RegisterPrediction(u*1000+i, u)
		}
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			for i := int64(0); i < perUser; i++ {
				rec, err := e.CreateRecord(context.Background(), newRecord(u*1000+i, u, "AAPL", "lstm", "100"))
				if err != nil {
					t.Errorf("CreateRecord() error = %v", err)
					return
				}
				if _, err := e.RecordActualPrice(context.Background(), rec.ID, d("100")); err != nil {
					t.Errorf("RecordActualPrice() error = %v", err)
				}
			}
		}(u)
	}
	wg.Wait()

	mp, _ := e.GetModelPerformance(context.Background(), "lstm", "AAPL")
	if mp.TotalPredictions != users*perUser || mp.VerifiedPredictions != users*perUser {
		t.Errorf("shared model aggregate = %d/%d, want %d", mp.TotalPredictions, mp.VerifiedPredictions, users*perUser)
	}
	for u := int64(1); u <= users; u++ {
		us, _ := e.GetUserStats(context.Background(), u)
		if us.TotalPredictions != perUser || us.VerifiedPredictions != perUser {
			t.Errorf("user %d aggregate = %d/%d, want %d", u, us.TotalPredictions, us.VerifiedPredictions, perUser)
		}
	}
}

type countingCache struct {
	mu          sync.Mutex
	sets        int
	invalidated int
	gen         int64
	boards      map[string]any
}

func newCountingCache() *countingCache {
	return &countingCache{boards: make(map[string]any)}
}

func (c *countingCache) Get(_ context.Context, board string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.boards[board]
	if !ok {
		return false, nil
	}
	switch out := dst.(type) {
	case *[]models.ModelLeaderboardEntry:
		*out = v.([]models.ModelLeaderboardEntry)
	case *[]models.UserLeaderboardEntry:
		*out = v.([]models.UserLeaderboardEntry)
	}
	return true, nil
}

func (c *countingCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *countingCache) SetIfGeneration(_ context.Context, board string, v any, gen int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false, nil
	}
	c.sets++
	c.boards[board] = v
	return true, nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
	c.boards = make(map[string]any)
	return nil
}

// hookStore runs a one-shot hook right after selected reads return, to
// interleave writes with a refold or a leaderboard projection.
type hookStore struct {
	*MemoryStore

	mu               sync.Mutex
	afterListRecords func()
	afterListModels  func()
}

func (h *hookStore) take(hook *func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn := *hook
	*hook = nil
	return fn
}

func (h *hookStore) ListRecords(ctx context.Context, f RecordFilter) ([]models.AccuracyRecord, error) {
	out, err := h.MemoryStore.ListRecords(ctx, f)
	if fn := h.take(&h.afterListRecords); fn != nil {
		fn()
	}
	return out, err
}

func (h *hookStore) ListModelPerformance(ctx context.Context) ([]models.ModelPerformance, error) {
	out, err := h.MemoryStore.ListModelPerformance(ctx)
	if fn := h.take(&h.afterListModels); fn != nil {
		fn()
	}
	return out, err
}

func newHookedEngine(t *testing.T, opts ...Option) (*Engine, *hookStore) {
	t.Helper()
	store := &hookStore{MemoryStore: NewMemoryStore()}
	clock := &fakeClock{t: day0}
	opts = append([]Option{WithClock(clock.Now), WithLogger(zerolog.Nop())}, opts...)
	return NewEngine(store, opts...), store
}

func TestLeaderboardCacheInvalidation(t *testing.T) {
	cache := newCountingCache()
	e, store := newTestEngine(t, WithCache(cache))
	seed(store, 1, 10, 11)
	ctx := context.Background()

	rec := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "100"))
	mustVerify(t, e, rec.ID, "100")

	first, _ := e.UserLeaderboard(ctx)
	second, _ := e.UserLeaderboard(ctx)
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1 (second read served from cache)", cache.sets)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("leaderboard lengths = %d, %d, want 1", len(first), len(second))
	}

	before := cache.invalidated
	mustCreate(t, e, newRecord(11, 1, "AAPL", "lstm", "100"))
	if cache.invalidated != before+1 {
		t.Errorf("invalidations = %d, want %d", cache.invalidated, before+1)
	}
	third, _ := e.UserLeaderboard(ctx)
	if third[0].TotalPredictions != 2 {
		t.Errorf("TotalPredictions after invalidation = %d, want 2", third[0].TotalPredictions)
	}
}

func TestDeleteCascades(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10, 11)
	seed(store, 2, 20)
	ctx := context.Background()

	a := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "100"))
	mustCreate(t, e, newRecord(11, 1, "AAPL", "lstm", "100"))
	mustCreate(t, e, newRecord(20, 2, "AAPL", "lstm", "100"))

	if err := e.DeletePrediction(ctx, 10); err != nil {
		t.Fatalf("DeletePrediction() error = %v", err)
	}
	if _, err := e.GetRecord(ctx, a.ID); !IsNotFound(err) {
		t.Errorf("record of deleted prediction: error = %v, want NotFoundError", err)
	}

	if err := e.DeleteUser(ctx, 1); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := e.GetUserStats(ctx, 1); !IsNotFound(err) {
		t.Errorf("stats of deleted user: error = %v, want NotFoundError", err)
	}
	left, _ := e.ListRecords(ctx, RecordFilter{})
	if len(left) != 1 || left[0].UserID != 2 {
		t.Errorf("remaining records = %+v, want only user 2's", left)
	}

	mp, err := e.RefoldModel(ctx, "lstm", "AAPL")
	if err != nil {
		t.Fatalf("RefoldModel() error = %v", err)
	}
	if mp.TotalPredictions != 1 {
		t.Errorf("TotalPredictions after refold = %d, want 1", mp.TotalPredictions)
	}
}

func TestLeaderboardNotCachedWhenAggregatesChangeMidProjection(t *testing.T) {
	cache := newCountingCache()
	e, store := newHookedEngine(t, WithCache(cache))
	seed(store.MemoryStore, 1, 10, 11)
	ctx := context.Background()

	mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "100"))
	store.afterListModels = func() {
		mustCreate(t, e, newRecord(11, 1, "AAPL", "lstm", "100"))
	}

	first, err := e.ModelLeaderboard(ctx)
	if err != nil {
		t.Fatalf("ModelLeaderboard() error = %v", err)
	}
	if first[0].TotalPredictions != 1 {
		t.Fatalf("first board total = %d, want 1 (projected before the second create)", first[0].TotalPredictions)
	}
	if cache.sets != 0 {
		t.Errorf("cache sets = %d, want 0 for a board computed before the last invalidation", cache.sets)
	}

	second, err := e.ModelLeaderboard(ctx)
	if err != nil {
		t.Fatalf("ModelLeaderboard() error = %v", err)
	}
	if second[0].TotalPredictions != 2 {
		t.Errorf("second board total = %d, want 2", second[0].TotalPredictions)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}
}

func TestPricesKeptAtStoreScale(t *testing.T) {
	e, store := newTestEngine(t)
	seed(store, 1, 10, 11)

	rec := mustCreate(t, e, newRecord(10, 1, "AAPL", "lstm", "100.123456"))
	if !rec.PredictedPrice.Equal(d("100.1235")) {
		t.Errorf("PredictedPrice = %v, want 100.1235", rec.PredictedPrice)
	}

	rec = mustVerify(t, e, rec.ID, "99.99995")
	if !rec.ActualPrice.Equal(d("100")) || !rec.PredictionError.Equal(d("0.1235")) || !rec.AccuracyPercentage.Equal(d("99.88")) {
		t.Errorf("verified = actual %v error %v accuracy %v, want 100 / 0.1235 / 99.88",
			rec.ActualPrice, rec.PredictionError, rec.AccuracyPercentage)
	}

	stored, err := e.GetRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if stored.PredictionError.String() != "0.1235" {
		t.Errorf("stored PredictionError = %s, want 0.1235", stored.PredictionError)
	}

	if _, err := e.CreateRecord(context.Background(), newRecord(11, 1, "AAPL", "lstm", "0.00001")); !IsValidation(err) {
		t.Errorf("CreateRecord(sub-scale price) error = %v, want validation error", err)
	}
}
