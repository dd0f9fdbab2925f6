package domain

import "time"

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusConfirmed SessionStatus = "CONFIRMED"
	SessionStatusFailed    SessionStatus = "FAILED"
)

// PaymentSession maps a gateway-issued token to the pending tickets it
// covers. Sessions are durable: an asynchronous gateway callback may arrive
// after a process restart. A session leaves PENDING exactly once; the
// transition is guarded at the storage layer so concurrent resolvers cannot
// both win.
type PaymentSession struct {
	ID int64

	// Token is our conversation id, minted before the gateway is contacted,
	// so the session row exists even if the process dies mid-initiation.
	Token string

	// GatewayToken is issued by the gateway and attached once checkout
	// initialization succeeds. Finalize calls correlate on it.
	GatewayToken string

	UserID        string
	ContactEmail  string
	SubtotalCents int64
	FeeCents      int64
	TotalCents    int64
	Currency      string
	Status        SessionStatus
	FailureReason string
	ExpiresAt     time.Time
	ResolvedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *PaymentSession) IsTerminal() bool {
	return s.Status == SessionStatusConfirmed || s.Status == SessionStatusFailed
}
