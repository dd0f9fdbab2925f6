package repository

import (
	"context"
	"errors"
	"time"

	"github.com/eventix/eventix/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketRepository persists ticket lifecycle state. Every transition method
// carries the source status in its WHERE clause; a transition that matches no
// row returns ErrInvalidTransition instead of silently rewriting history.
type TicketRepository interface {
	CreatePending(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListBySession(ctx context.Context, sessionToken string) ([]domain.Ticket, error)
	ListPendingByUser(ctx context.Context, userID string) ([]domain.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error)
	HasActiveTicket(ctx context.Context, userID string, eventID int64) (bool, error)
	MarkConfirmed(ctx context.Context, id, credential string, purchaseDate time.Time) error
	MarkCancelled(ctx context.Context, id string) (*domain.Ticket, error)
	MarkUsed(ctx context.Context, id string) error
	CancelBySession(ctx context.Context, sessionToken string) ([]domain.Ticket, error)
}

type PGTicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) TicketRepository {
	return &PGTicketRepository{db: db}
}

const ticketColumns = `id, user_id, event_id, price_cents, status, session_token, credential, purchase_date, created_at, updated_at`

func (r *PGTicketRepository) CreatePending(ctx context.Context, ticket *domain.Ticket) error {
	ticket.Status = domain.TicketStatusPending
	return r.db.QueryRow(ctx, `INSERT INTO tickets (id, user_id, event_id, price_cents, status, session_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		ticket.ID, ticket.UserID, ticket.EventID, ticket.PriceCents, ticket.Status, ticket.SessionToken).
		Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *PGTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *PGTicketRepository) ListBySession(ctx context.Context, sessionToken string) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE session_token=$1 ORDER BY created_at`, sessionToken)
}

func (r *PGTicketRepository) ListPendingByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE user_id=$1 AND status=$2 ORDER BY created_at`, userID, domain.TicketStatusPending)
}

func (r *PGTicketRepository) ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE user_id=$1 ORDER BY purchase_date DESC NULLS LAST, created_at DESC`, userID)
}

// HasActiveTicket reports whether the user already holds a pending or
// confirmed ticket for the event. Cancelled tickets do not count; a user may
// retry after a failed payment.
func (r *PGTicketRepository) HasActiveTicket(ctx context.Context, userID string, eventID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE user_id=$1 AND event_id=$2 AND status = ANY($3))`,
		userID, eventID, []string{string(domain.TicketStatusPending), string(domain.TicketStatusConfirmed), string(domain.TicketStatusUsed)}).Scan(&exists)
	return exists, err
}

func (r *PGTicketRepository) MarkConfirmed(ctx context.Context, id, credential string, purchaseDate time.Time) error {
	res, err := r.db.Exec(ctx, `UPDATE tickets SET status=$2, credential=$3, purchase_date=$4, updated_at=now() WHERE id=$1 AND status=$5`,
		id, domain.TicketStatusConfirmed, credential, purchaseDate, domain.TicketStatusPending)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *PGTicketRepository) MarkCancelled(ctx context.Context, id string) (*domain.Ticket, error) {
	row := r.db.QueryRow(ctx, `UPDATE tickets SET status=$2, updated_at=now() WHERE id=$1 AND status=$3 RETURNING `+ticketColumns,
		id, domain.TicketStatusCancelled, domain.TicketStatusPending)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return t, nil
}

func (r *PGTicketRepository) MarkUsed(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `UPDATE tickets SET status=$2, updated_at=now() WHERE id=$1 AND status=$3`,
		id, domain.TicketStatusUsed, domain.TicketStatusConfirmed)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CancelBySession moves every still-pending ticket of a session to cancelled
// and returns them, so the caller knows exactly which reservations to
// release. Already-cancelled tickets are not returned twice.
func (r *PGTicketRepository) CancelBySession(ctx context.Context, sessionToken string) ([]domain.Ticket, error) {
	return r.list(ctx, `UPDATE tickets SET status=$2, updated_at=now() WHERE session_token=$1 AND status=$3 RETURNING `+ticketColumns,
		sessionToken, domain.TicketStatusCancelled, domain.TicketStatusPending)
}

func (r *PGTicketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := row.Scan(&t.ID, &t.UserID, &t.EventID, &t.PriceCents, &t.Status, &t.SessionToken, &t.Credential, &t.PurchaseDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

var _ TicketRepository = (*PGTicketRepository)(nil)
