package memory

import (
	"context"
	"sync"

	"autoride/internal/domain"
	"autoride/internal/repository"
)

// HistoryRepository keeps session ride history in memory.
type HistoryRepository struct {
	mu    sync.RWMutex
	rides []*domain.Ride // oldest first
}

// NewHistoryRepository creates an empty in-memory history.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

// Append stores a terminal ride as the newest entry.
func (r *HistoryRepository) Append(ctx context.Context, ride *domain.Ride) error {
	if !ride.Status.IsTerminal() {
		return repository.ErrNotTerminal
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rides = append(r.rides, ride.Clone())
	return nil
}

// List returns all entries, newest first.
func (r *HistoryRepository) List(ctx context.Context) ([]*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.Ride, 0, len(r.rides))
	for i := len(r.rides) - 1; i >= 0; i-- {
		result = append(result, r.rides[i].Clone())
	}
	return result, nil
}

// Latest returns the newest entry.
func (r *HistoryRepository) Latest(ctx context.Context) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.rides) == 0 {
		return nil, repository.ErrNotFound
	}
	return r.rides[len(r.rides)-1].Clone(), nil
}

// SetRating sets the rating of an unrated entry.
func (r *HistoryRepository) SetRating(ctx context.Context, rideID string, rating int, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ride := range r.rides {
		if ride.ID != rideID {
			continue
		}
		if ride.IsRated() {
			return domain.ErrAlreadyRated
		}
		ride.Rating = rating
		ride.RatingTxHash = txHash
		return nil
	}
	return repository.ErrNotFound
}
