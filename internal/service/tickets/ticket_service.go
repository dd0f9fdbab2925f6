package tickets

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventix/eventix/internal/domain"
	"github.com/eventix/eventix/internal/issuer"
	"github.com/eventix/eventix/internal/repository"
	"github.com/eventix/eventix/monitoring"
	"github.com/eventix/eventix/pkg/logger"
)

var (
	ErrForbidden        = errors.New("operation not permitted")
	ErrNotCancellable   = errors.New("ticket can no longer be cancelled")
	ErrNotRedeemable    = errors.New("ticket is not redeemable")
	ErrAlreadyRedeemed  = errors.New("ticket already redeemed")
	ErrBadCredential    = errors.New("credential rejected")
	ErrCredentialsUnset = errors.New("ticket has no credential yet")
)

type TicketUseCase interface {
	Cart(ctx context.Context, identity domain.Identity) ([]domain.Ticket, error)
	MyTickets(ctx context.Context, identity domain.Identity) ([]domain.Ticket, error)
	Get(ctx context.Context, identity domain.Identity, id string) (*domain.Ticket, error)
	QRCode(ctx context.Context, identity domain.Identity, id string) (string, error)
	RemoveFromCart(ctx context.Context, identity domain.Identity, id string) error
	Redeem(ctx context.Context, identity domain.Identity, ticketID, credential string) (*domain.Ticket, error)
}

// Verifier checks a presented credential and renders it for display.
type Verifier interface {
	Verify(credential string) (*issuer.Claims, error)
	RenderQR(credential string) (string, error)
}

type TicketService struct {
	tickets repository.TicketRepository
	events  repository.EventRepository
	issuer  Verifier
	monitor *monitoring.Monitor
	log     logger.Logger
}

func NewTicketService(
	tickets repository.TicketRepository,
	events repository.EventRepository,
	verifier Verifier,
	monitor *monitoring.Monitor,
	log logger.Logger,
) *TicketService {
	return &TicketService{
		tickets: tickets,
		events:  events,
		issuer:  verifier,
		monitor: monitor,
		log:     log,
	}
}

// Cart lists the caller's pending tickets, the server-side view of what an
// open checkout is holding.
func (s *TicketService) Cart(ctx context.Context, identity domain.Identity) ([]domain.Ticket, error) {
	return s.tickets.ListPendingByUser(ctx, identity.UserID)
}

func (s *TicketService) MyTickets(ctx context.Context, identity domain.Identity) ([]domain.Ticket, error) {
	return s.tickets.ListByUser(ctx, identity.UserID)
}

func (s *TicketService) Get(ctx context.Context, identity domain.Identity, id string) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != identity.UserID && !identity.Can(domain.CapViewAnyTicket) {
		return nil, ErrForbidden
	}
	return t, nil
}

func (s *TicketService) QRCode(ctx context.Context, identity domain.Identity, id string) (string, error) {
	t, err := s.Get(ctx, identity, id)
	if err != nil {
		return "", err
	}
	if t.Credential == "" {
		return "", ErrCredentialsUnset
	}
	return s.issuer.RenderQR(t.Credential)
}

// RemoveFromCart cancels a pending ticket and returns its capacity
// immediately instead of waiting for the session sweep.
func (s *TicketService) RemoveFromCart(ctx context.Context, identity domain.Identity, id string) error {
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.UserID != identity.UserID {
		return ErrForbidden
	}
	if !t.CanCancel() {
		return ErrNotCancellable
	}

	if _, err := s.tickets.MarkCancelled(ctx, id); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return ErrNotCancellable
		}
		return err
	}
	if err := s.events.ReleaseCapacity(ctx, t.EventID, 1); err != nil {
		s.log.Error("failed to release capacity for cancelled ticket", "ticket", id, "event", t.EventID, "error", err)
		return err
	}
	s.monitor.TrackCapacityReleased(1)
	return nil
}

// Redeem validates a scanned credential and marks the ticket used. The
// conditional transition makes a double scan lose cleanly.
func (s *TicketService) Redeem(ctx context.Context, identity domain.Identity, ticketID, credential string) (*domain.Ticket, error) {
	if !identity.Can(domain.CapRedeem) {
		return nil, ErrForbidden
	}

	claims, err := s.issuer.Verify(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	if claims.TicketID != ticketID {
		return nil, ErrBadCredential
	}

	t, err := s.tickets.GetByID(ctx, claims.TicketID)
	if err != nil {
		return nil, err
	}
	// The signed claims must match the stored record, not just decode.
	if t.EventID != claims.EventID || t.UserID != claims.UserID {
		return nil, ErrBadCredential
	}
	if t.IsUsed() {
		return nil, ErrAlreadyRedeemed
	}
	if !t.CanRedeem() {
		return nil, ErrNotRedeemable
	}

	if err := s.tickets.MarkUsed(ctx, t.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, ErrAlreadyRedeemed
		}
		return nil, err
	}
	t.Status = domain.TicketStatusUsed
	return t, nil
}

var _ TicketUseCase = (*TicketService)(nil)
