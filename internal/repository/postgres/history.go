package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"time"

	"autoride/internal/domain"
	"autoride/internal/repository"
)

// HistoryRepository is a PostgreSQL implementation of repository.HistoryRepository.
type HistoryRepository struct {
	q Querier
}

// NewHistoryRepository creates a new PostgreSQL history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{q: db}
}

// NewHistoryRepositoryWithTx creates a history repository using a transaction.
func NewHistoryRepositoryWithTx(tx *sql.Tx) *HistoryRepository {
	return &HistoryRepository{q: tx}
}

const historyColumns = `id, chain_ride_id, pickup, drop_location, distance_km, fare, fare_wei, status, driver_id, rating, tx_hash, request_tx_hash, rating_tx_hash, cancel_reason, requested_at, accepted_at, started_at, completed_at, cancelled_at`

// Append stores a terminal ride as the newest history entry.
func (r *HistoryRepository) Append(ctx context.Context, ride *domain.Ride) error {
	if !ride.Status.IsTerminal() {
		return repository.ErrNotTerminal
	}

	query := `
		INSERT INTO ride_history (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	var fareWei sql.NullString
	if ride.FareWei != nil {
		fareWei = sql.NullString{String: ride.FareWei.String(), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		nullString(ride.ChainRideID),
		ride.Pickup,
		ride.Drop,
		ride.DistanceKm,
		ride.Fare,
		fareWei,
		ride.Status,
		nullString(ride.DriverID),
		ride.Rating,
		nullString(ride.TxHash),
		nullString(ride.RequestTxHash),
		nullString(ride.RatingTxHash),
		nullString(ride.CancelReason),
		ride.RequestedAt,
		nullTime(ride.AcceptedAt),
		nullTime(ride.StartedAt),
		nullTime(ride.CompletedAt),
		nullTime(ride.CancelledAt),
	)

	return err
}

// List returns all entries, newest first.
func (r *HistoryRepository) List(ctx context.Context) ([]*domain.Ride, error) {
	query := `SELECT ` + historyColumns + ` FROM ride_history ORDER BY seq DESC`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Latest returns the newest entry.
func (r *HistoryRepository) Latest(ctx context.Context) (*domain.Ride, error) {
	query := `SELECT ` + historyColumns + ` FROM ride_history ORDER BY seq DESC LIMIT 1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// SetRating sets the rating of an unrated entry.
func (r *HistoryRepository) SetRating(ctx context.Context, rideID string, rating int, txHash string) error {
	query := `UPDATE ride_history SET rating = $1, rating_tx_hash = $2 WHERE id = $3 AND rating = 0`

	result, err := r.q.ExecContext(ctx, query, rating, nullString(txHash), rideID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either the ride is unknown or it is already rated.
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM ride_history WHERE id = $1)`, rideID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyRated
		}
		return repository.ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var chainRideID, fareWei, driverID, txHash, requestTxHash, ratingTxHash, cancelReason sql.NullString
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&ride.ID,
		&chainRideID,
		&ride.Pickup,
		&ride.Drop,
		&ride.DistanceKm,
		&ride.Fare,
		&fareWei,
		&ride.Status,
		&driverID,
		&ride.Rating,
		&txHash,
		&requestTxHash,
		&ratingTxHash,
		&cancelReason,
		&ride.RequestedAt,
		&acceptedAt,
		&startedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	ride.ChainRideID = chainRideID.String
	ride.DriverID = driverID.String
	ride.TxHash = txHash.String
	ride.RequestTxHash = requestTxHash.String
	ride.RatingTxHash = ratingTxHash.String
	ride.CancelReason = cancelReason.String
	if fareWei.Valid {
		if wei, ok := new(big.Int).SetString(fareWei.String, 10); ok {
			ride.FareWei = wei
		}
	}
	if acceptedAt.Valid {
		ride.AcceptedAt = acceptedAt.Time
	}
	if startedAt.Valid {
		ride.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		ride.CompletedAt = completedAt.Time
	}
	if cancelledAt.Valid {
		ride.CancelledAt = cancelledAt.Time
	}

	return &ride, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
