package accuracy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mauv0809/forecast-accuracy/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. It also keeps the users and
// predictions that records reference, standing in for the tables owned by
// the surrounding application.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[int64]struct{}
	predictions map[int64]int64 // prediction id -> owning user
	records     map[int64]*models.AccuracyRecord
	modelPerf   map[ModelKey]*models.ModelPerformance
	userStats   map[int64]*models.UserAccuracyStats
	nextID      int64

	keys *keyedMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]struct{}),
		predictions: make(map[int64]int64),
		records:     make(map[int64]*models.AccuracyRecord),
		modelPerf:   make(map[ModelKey]*models.ModelPerformance),
		userStats:   make(map[int64]*models.UserAccuracyStats),
		keys:        newKeyedMutex(),
	}
}

// RegisterUser makes userID a valid record owner.
func (s *MemoryStore) RegisterUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// RegisterPrediction makes predictionID a valid record owner for userID.
func (s *MemoryStore) RegisterPrediction(predictionID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions[predictionID] = userID
}

func (s *MemoryStore) UserExists(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *MemoryStore) PredictionOwner(_ context.Context, predictionID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.predictions[predictionID]
	if !ok {
		return 0, &NotFoundError{Kind: "prediction", Key: strconv.FormatInt(predictionID, 10)}
	}
	return owner, nil
}

func (s *MemoryStore) InsertRecord(_ context.Context, rec *models.AccuracyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id int64) (*models.AccuracyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, recordNotFound(id)
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) ListRecords(_ context.Context, f RecordFilter) ([]models.AccuracyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AccuracyRecord
	for _, rec := range s.records {
		if !f.matches(rec) {
			continue
		}
		out = append(out, *cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (f RecordFilter) matches(rec *models.AccuracyRecord) bool {
	switch {
	case f.UserID != 0 && rec.UserID != f.UserID:
		return false
	case f.PredictionID != 0 && rec.PredictionID != f.PredictionID:
		return false
	case f.ModelUsed != "" && rec.ModelUsed != f.ModelUsed:
		return false
	case f.StockSymbol != "" && rec.StockSymbol != f.StockSymbol:
		return false
	case f.AfterID != 0 && rec.ID <= f.AfterID:
		return false
	case f.Verified != nil && rec.Verified != *f.Verified:
		return false
	case !f.TargetBefore.IsZero() && rec.TargetDate.After(f.TargetBefore):
		return false
	}
	return true
}

func (s *MemoryStore) MarkVerified(_ context.Context, id int64, v Verification) (*models.AccuracyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, recordNotFound(id)
	}
	if rec.Verified {
		return nil, &AlreadyVerifiedError{RecordID: id}
	}
	actual, acc, errAbs, at := v.ActualPrice, v.Accuracy, v.PredictionError, v.VerifiedAt
	rec.ActualPrice = &actual
	rec.AccuracyPercentage = &acc
	rec.PredictionError = &errAbs
	rec.VerifiedDate = &at
	rec.Verified = true
	return cloneRecord(rec), nil
}

func (s *MemoryStore) UpdateModelPerformance(_ context.Context, key ModelKey, fn func(*models.ModelPerformance) error) (*models.ModelPerformance, error) {
	unlock := s.keys.Lock("model:" + key.String())
	defer unlock()

	s.mu.RLock()
	cur, ok := s.modelPerf[key]
	var mp models.ModelPerformance
	if ok {
		mp = *cloneModelPerformance(cur)
	} else {
		mp = models.ModelPerformance{ModelName: key.Model, StockSymbol: key.Symbol}
	}
	s.mu.RUnlock()

	if err := fn(&mp); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.modelPerf[key] = cloneModelPerformance(&mp)
	s.mu.Unlock()
	return &mp, nil
}

func (s *MemoryStore) UpdateUserStats(_ context.Context, userID int64, fn func(*models.UserAccuracyStats) error) (*models.UserAccuracyStats, error) {
	unlock := s.keys.Lock("user:" + strconv.FormatInt(userID, 10))
	defer unlock()

	s.mu.RLock()
	cur, ok := s.userStats[userID]
	var us models.UserAccuracyStats
	if ok {
		us = *cloneUserStats(cur)
	} else {
		us = models.UserAccuracyStats{UserID: userID}
	}
	s.mu.RUnlock()

	if err := fn(&us); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[userID]; !exists {
		return nil, &NotFoundError{Kind: "user", Key: strconv.FormatInt(userID, 10)}
	}
	s.userStats[userID] = cloneUserStats(&us)
	return &us, nil
}

func (s *MemoryStore) GetModelPerformance(_ context.Context, key ModelKey) (*models.ModelPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mp, ok := s.modelPerf[key]
	if !ok {
		return nil, &NotFoundError{Kind: "model performance", Key: key.String()}
	}
	return cloneModelPerformance(mp), nil
}

func (s *MemoryStore) GetUserStats(_ context.Context, userID int64) (*models.UserAccuracyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	us, ok := s.userStats[userID]
	if !ok {
		return nil, &NotFoundError{Kind: "user stats", Key: strconv.FormatInt(userID, 10)}
	}
	return cloneUserStats(us), nil
}

func (s *MemoryStore) ListModelPerformance(_ context.Context) ([]models.ModelPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ModelPerformance, 0, len(s.modelPerf))
	for _, mp := range s.modelPerf {
		out = append(out, *cloneModelPerformance(mp))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModelName != out[j].ModelName {
			return out[i].ModelName < out[j].ModelName
		}
		return out[i].StockSymbol < out[j].StockSymbol
	})
	return out, nil
}

func (s *MemoryStore) ListUserStats(_ context.Context) ([]models.UserAccuracyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.UserAccuracyStats, 0, len(s.userStats))
	for _, us := range s.userStats {
		out = append(out, *cloneUserStats(us))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) DeletePrediction(_ context.Context, predictionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.predictions[predictionID]; !ok {
		return &NotFoundError{Kind: "prediction", Key: strconv.FormatInt(predictionID, 10)}
	}
	delete(s.predictions, predictionID)
	for id, rec := range s.records {
		if rec.PredictionID == predictionID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return &NotFoundError{Kind: "user", Key: strconv.FormatInt(userID, 10)}
	}
	delete(s.users, userID)
	delete(s.userStats, userID)
	for id, owner := range s.predictions {
		if owner == userID {
			delete(s.predictions, id)
		}
	}
	for id, rec := range s.records {
		if rec.UserID == userID {
			delete(s.records, id)
		}
	}
	return nil
}

func recordNotFound(id int64) error {
	return &NotFoundError{Kind: "accuracy record", Key: fmt.Sprint(id)}
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneRecord(rec *models.AccuracyRecord) *models.AccuracyRecord {
	c := *rec
	c.ActualPrice = cloneDecimal(rec.ActualPrice)
	c.AccuracyPercentage = cloneDecimal(rec.AccuracyPercentage)
	c.PredictionError = cloneDecimal(rec.PredictionError)
	c.ConfidenceScore = cloneDecimal(rec.ConfidenceScore)
	c.VerifiedDate = cloneTime(rec.VerifiedDate)
	return &c
}

func cloneModelPerformance(mp *models.ModelPerformance) *models.ModelPerformance {
	c := *mp
	c.AverageAccuracy = cloneDecimal(mp.AverageAccuracy)
	c.AverageError = cloneDecimal(mp.AverageError)
	c.BestAccuracy = cloneDecimal(mp.BestAccuracy)
	c.WorstAccuracy = cloneDecimal(mp.WorstAccuracy)
	return &c
}

func cloneUserStats(us *models.UserAccuracyStats) *models.UserAccuracyStats {
	c := *us
	c.SuccessRate = cloneDecimal(us.SuccessRate)
	c.BestAccuracy = cloneDecimal(us.BestAccuracy)
	c.LastPredictionDate = cloneTime(us.LastPredictionDate)
	if us.ModelUsage != nil {
		c.ModelUsage = make(map[string]models.ModelUsage, len(us.ModelUsage))
		for k, v := range us.ModelUsage {
			c.ModelUsage[k] = v
		}
	}
	return &c
}
