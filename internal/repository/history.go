package repository

import (
	"context"

	"autoride/internal/domain"
)

// HistoryRepository stores terminal rides. Entries are append-only; the only
// permitted mutation is setting the rating of an unrated entry once.
type HistoryRepository interface {
	// Append stores a terminal ride as the newest history entry.
	Append(ctx context.Context, ride *domain.Ride) error

	// List returns all entries, newest first.
	List(ctx context.Context) ([]*domain.Ride, error)

	// Latest returns the newest entry, or ErrNotFound when history is empty.
	Latest(ctx context.Context) (*domain.Ride, error)

	// SetRating sets the rating of an unrated entry.
	// Returns domain.ErrAlreadyRated when the entry already carries one.
	SetRating(ctx context.Context, rideID string, rating int, txHash string) error
}
