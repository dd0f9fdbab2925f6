package repository

import (
	"context"
	"errors"

	"github.com/eventix/eventix/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository is the catalog read side plus the inventory ledger.
// ReserveCapacity and ReleaseCapacity are the only writes; both are single
// conditional UPDATEs so concurrent callers can never drive
// available_capacity below zero or above total_capacity.
type EventRepository interface {
	List(ctx context.Context) ([]domain.Event, error)
	GetByID(ctx context.Context, id int64) (*domain.Event, error)
	ReserveCapacity(ctx context.Context, eventID int64, quantity int) error
	ReleaseCapacity(ctx context.Context, eventID int64, quantity int) error
}

type PGEventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) EventRepository {
	return &PGEventRepository{db: db}
}

const eventColumns = `id, title, event_date, location, price_cents, total_capacity, available_capacity, status, is_approved, category_id, organizer_id, created_at, updated_at`

func (r *PGEventRepository) List(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE is_approved AND status=$1 ORDER BY event_date`, domain.EventStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *PGEventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	row := r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

// ReserveCapacity decrements available_capacity by quantity, evaluated and
// applied as one statement. The guard in the WHERE clause makes two
// simultaneous reservations that together exceed the remainder impossible.
func (r *PGEventRepository) ReserveCapacity(ctx context.Context, eventID int64, quantity int) error {
	res, err := r.db.Exec(ctx, `UPDATE events SET available_capacity = available_capacity - $2, updated_at = now() WHERE id=$1 AND available_capacity >= $2`, eventID, quantity)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInsufficientCapacity
	}
	return nil
}

// ReleaseCapacity returns quantity units, clamped at total_capacity.
func (r *PGEventRepository) ReleaseCapacity(ctx context.Context, eventID int64, quantity int) error {
	res, err := r.db.Exec(ctx, `UPDATE events SET available_capacity = LEAST(available_capacity + $2, total_capacity), updated_at = now() WHERE id=$1`, eventID, quantity)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(&e.ID, &e.Title, &e.Date, &e.Location, &e.PriceCents, &e.TotalCapacity, &e.AvailableCapacity, &e.Status, &e.IsApproved, &e.CategoryID, &e.OrganizerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

var _ EventRepository = (*PGEventRepository)(nil)
