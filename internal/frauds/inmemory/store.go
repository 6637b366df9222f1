package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
)

// Store is an in-memory implementation of frauds.Repository.
// It is safe for concurrent use. Data is lost on restart; production
// deployments use the Postgres repository.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.FraudRecord

	// failWith, when set, is returned by every call.
	failWith error
}

// NewStore creates a new in-memory fraud store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.FraudRecord),
	}
}

// SetFailure makes every subsequent call return err. Pass nil to recover.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Save implements frauds.Repository.
func (s *Store) Save(ctx context.Context, rec *domain.FraudRecord) (bool, error) {
	if rec.TransactionID == "" {
		return false, domain.NewValidationError("transaction_id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return false, s.failWith
	}
	if _, exists := s.records[rec.TransactionID]; exists {
		return false, nil
	}

	// Store a copy to avoid external modifications
	s.records[rec.TransactionID] = rec.Clone()
	return true, nil
}

// Get implements frauds.Repository.
func (s *Store) Get(ctx context.Context, transactionID string) (*domain.FraudRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	rec, exists := s.records[transactionID]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

// UpdateStatus implements frauds.Repository.
func (s *Store) UpdateStatus(ctx context.Context, review frauds.Review) (*domain.FraudRecord, error) {
	if err := review.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	rec, exists := s.records[review.TransactionID]
	if !exists {
		return nil, domain.ErrNotFound
	}

	reviewer := review.ReviewedBy
	at := review.ReviewedAt.UTC()
	rec.Status = review.Status
	rec.ReviewedBy = &reviewer
	rec.ReviewedAt = &at

	return rec.Clone(), nil
}

// List implements frauds.Repository.
func (s *Store) List(ctx context.Context, filter frauds.Filter) ([]*domain.FraudRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failWith != nil {
		return nil, s.failWith
	}

	result := []*domain.FraudRecord{}
	for _, rec := range s.records {
		if filter.Matches(rec) {
			result = append(result, rec.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].TransactionID < result[j].TransactionID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Apply limit and offset
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.FraudRecord{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ensure Store implements frauds.Repository.
var _ frauds.Repository = (*Store)(nil)
