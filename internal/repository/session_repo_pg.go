package repository

import (
	"context"
	"errors"
	"time"

	"github.com/eventix/eventix/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentSessionRepository stores the durable token -> pending-cart mapping.
// Resolve is the idempotency hinge of the whole checkout: the PENDING guard
// in its WHERE clause makes the first resolver win and every later one a
// read-only observer.
type PaymentSessionRepository interface {
	Create(ctx context.Context, session *domain.PaymentSession) error
	AttachGatewayToken(ctx context.Context, token, gatewayToken string) error
	GetByToken(ctx context.Context, token string) (*domain.PaymentSession, error)
	GetByGatewayToken(ctx context.Context, gatewayToken string) (*domain.PaymentSession, error)
	Resolve(ctx context.Context, token string, status domain.SessionStatus, reason string) (*domain.PaymentSession, bool, error)
	ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.PaymentSession, error)
}

type PGPaymentSessionRepository struct {
	db *pgxpool.Pool
}

func NewPaymentSessionRepository(db *pgxpool.Pool) PaymentSessionRepository {
	return &PGPaymentSessionRepository{db: db}
}

const sessionColumns = `id, token, gateway_token, user_id, contact_email, subtotal_cents, fee_cents, total_cents, currency, status, failure_reason, expires_at, resolved_at, created_at, updated_at`

func (r *PGPaymentSessionRepository) Create(ctx context.Context, session *domain.PaymentSession) error {
	session.Status = domain.SessionStatusPending
	return r.db.QueryRow(ctx, `INSERT INTO payment_sessions (token, user_id, contact_email, subtotal_cents, fee_cents, total_cents, currency, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		session.Token, session.UserID, session.ContactEmail, session.SubtotalCents, session.FeeCents, session.TotalCents, session.Currency, session.Status, session.ExpiresAt).
		Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
}

func (r *PGPaymentSessionRepository) AttachGatewayToken(ctx context.Context, token, gatewayToken string) error {
	res, err := r.db.Exec(ctx, `UPDATE payment_sessions SET gateway_token=$2, updated_at=now() WHERE token=$1`, token, gatewayToken)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PGPaymentSessionRepository) GetByToken(ctx context.Context, token string) (*domain.PaymentSession, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE token=$1`, token)
}

func (r *PGPaymentSessionRepository) GetByGatewayToken(ctx context.Context, gatewayToken string) (*domain.PaymentSession, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE gateway_token=$1`, gatewayToken)
}

func (r *PGPaymentSessionRepository) get(ctx context.Context, query string, args ...any) (*domain.PaymentSession, error) {
	row := r.db.QueryRow(ctx, query, args...)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// Resolve attempts the PENDING -> terminal transition. The returned bool is
// true when this caller performed the transition; false means another
// resolver got there first and the returned session carries its outcome.
func (r *PGPaymentSessionRepository) Resolve(ctx context.Context, token string, status domain.SessionStatus, reason string) (*domain.PaymentSession, bool, error) {
	row := r.db.QueryRow(ctx, `UPDATE payment_sessions SET status=$2, failure_reason=$3, resolved_at=now(), updated_at=now() WHERE token=$1 AND status=$4 RETURNING `+sessionColumns,
		token, status, reason, domain.SessionStatusPending)
	s, err := scanSession(row)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Lost the race, or no such session at all.
	s, err = r.GetByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

func (r *PGPaymentSessionRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.PaymentSession, error) {
	rows, err := r.db.Query(ctx, `UPDATE payment_sessions SET status=$1, failure_reason=$2, resolved_at=now(), updated_at=now() WHERE status=$3 AND expires_at <= $4 RETURNING `+sessionColumns,
		domain.SessionStatusFailed, "session expired", domain.SessionStatusPending, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *s)
	}
	return expired, rows.Err()
}

func scanSession(row pgx.Row) (*domain.PaymentSession, error) {
	var s domain.PaymentSession
	if err := row.Scan(&s.ID, &s.Token, &s.GatewayToken, &s.UserID, &s.ContactEmail, &s.SubtotalCents, &s.FeeCents, &s.TotalCents, &s.Currency, &s.Status, &s.FailureReason, &s.ExpiresAt, &s.ResolvedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

var _ PaymentSessionRepository = (*PGPaymentSessionRepository)(nil)
