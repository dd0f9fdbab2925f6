package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventix/eventix/internal/domain"
	"github.com/eventix/eventix/internal/gateway"
	"github.com/eventix/eventix/internal/kafka"
	"github.com/eventix/eventix/internal/repository"
	"github.com/eventix/eventix/monitoring"
	"github.com/eventix/eventix/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CheckoutUseCase interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Finalize(ctx context.Context, gatewayToken string) (*FinalizeResult, error)
	ReleaseStaleSessions(ctx context.Context) ([]domain.PaymentSession, error)
}

type Cache interface {
	AcquireCheckoutLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseCheckoutLock(ctx context.Context, userID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CredentialIssuer interface {
	Issue(ticketID string, eventID int64, userID string) (string, error)
}

type CartItem struct {
	EventID  int64 `json:"event_id"`
	Quantity int   `json:"quantity"`
}

type ContactInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type InitiateInput struct {
	Identity domain.Identity
	Items    []CartItem
	Contact  ContactInfo
	ClientIP string
}

type InitiateResult struct {
	Token       string
	RedirectURL string
	Session     *domain.PaymentSession
}

type FinalizeResult struct {
	Success   bool
	Status    domain.SessionStatus
	TicketIDs []string
	Reason    string
}

type CheckoutService struct {
	events   repository.EventRepository
	tickets  repository.TicketRepository
	sessions repository.PaymentSessionRepository
	gateway  gateway.Client
	issuer   CredentialIssuer
	cache    Cache
	producer Producer
	monitor  *monitoring.Monitor
	log      logger.Logger

	feeRate            decimal.Decimal
	currency           string
	callbackURL        string
	sessionMaxAge      time.Duration
	ticketTopic        string
	notificationsTopic string
}

type CheckoutServiceOption func(*CheckoutService)

func WithNotificationsTopic(topic string) CheckoutServiceOption {
	return func(s *CheckoutService) {
		s.notificationsTopic = topic
	}
}

func WithMonitor(m *monitoring.Monitor) CheckoutServiceOption {
	return func(s *CheckoutService) {
		s.monitor = m
	}
}

func NewCheckoutService(
	events repository.EventRepository,
	tickets repository.TicketRepository,
	sessions repository.PaymentSessionRepository,
	gw gateway.Client,
	iss CredentialIssuer,
	cache Cache,
	producer Producer,
	log logger.Logger,
	feeRate decimal.Decimal,
	currency string,
	callbackURL string,
	sessionMaxAge time.Duration,
	ticketTopic string,
	opts ...CheckoutServiceOption,
) *CheckoutService {
	service := &CheckoutService{
		events:        events,
		tickets:       tickets,
		sessions:      sessions,
		gateway:       gw,
		issuer:        iss,
		cache:         cache,
		producer:      producer,
		log:           log,
		feeRate:       feeRate,
		currency:      currency,
		callbackURL:   callbackURL,
		sessionMaxAge: sessionMaxAge,
		ticketTopic:   ticketTopic,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// reservedLine is one cart item after its capacity has been taken.
type reservedLine struct {
	event    *domain.Event
	quantity int
}

// Initiate validates the cart, reserves capacity for every item
// all-or-nothing, opens a gateway session and returns the redirect. No
// partial state survives a failure: any reservation taken before the failing
// step is released before the error is returned.
func (s *CheckoutService) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if !input.Identity.Can(domain.CapPurchase) {
		return nil, ErrForbidden
	}
	if len(input.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	if input.Contact.Email == "" {
		return nil, ErrContactRequired
	}

	userID := input.Identity.UserID
	if s.cache != nil {
		ok, err := s.cache.AcquireCheckoutLock(ctx, userID, s.sessionMaxAge)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCheckoutInFlight
		}
	}

	result, err := s.initiate(ctx, input)
	if err != nil {
		if s.cache != nil {
			_ = s.cache.ReleaseCheckoutLock(ctx, userID)
		}
		s.monitor.TrackCheckout("initiate", outcomeLabel(err))
		return nil, err
	}
	s.monitor.TrackCheckout("initiate", "accepted")
	return result, nil
}

func (s *CheckoutService) initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	userID := input.Identity.UserID

	// Sale state and price come from the catalog at reservation time; the
	// client-supplied cart carries only event ids and quantities.
	lines := make([]reservedLine, 0, len(input.Items))
	for _, item := range input.Items {
		ev, err := s.events.GetByID(ctx, item.EventID)
		if err != nil {
			return nil, err
		}
		if !ev.OnSale() {
			return nil, fmt.Errorf("%w: event %d", ErrEventNotOnSale, ev.ID)
		}
		held, err := s.tickets.HasActiveTicket(ctx, userID, ev.ID)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, fmt.Errorf("%w: event %d", ErrDuplicateTicket, ev.ID)
		}
		lines = append(lines, reservedLine{event: ev, quantity: item.Quantity})
	}

	// All-or-nothing reservation batch.
	reserved := make([]reservedLine, 0, len(lines))
	for _, l := range lines {
		if err := s.events.ReserveCapacity(ctx, l.event.ID, l.quantity); err != nil {
			s.releaseLines(ctx, reserved)
			if errors.Is(err, repository.ErrInsufficientCapacity) {
				return nil, fmt.Errorf("%w: event %d", repository.ErrInsufficientCapacity, l.event.ID)
			}
			return nil, err
		}
		reserved = append(reserved, l)
	}

	var subtotal int64
	for _, l := range reserved {
		subtotal += l.event.PriceCents * int64(l.quantity)
	}
	fee := ServiceFee(subtotal, s.feeRate)

	session := &domain.PaymentSession{
		Token:         uuid.NewString(),
		UserID:        userID,
		ContactEmail:  input.Contact.Email,
		SubtotalCents: subtotal,
		FeeCents:      fee,
		TotalCents:    subtotal + fee,
		Currency:      s.currency,
		ExpiresAt:     time.Now().Add(s.sessionMaxAge),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.releaseLines(ctx, reserved)
		return nil, err
	}

	ticketIDs, err := s.createPendingTickets(ctx, session, reserved)
	if err != nil {
		s.abortInitiation(ctx, session, reserved, "ticket creation failed")
		return nil, err
	}

	gwSession, err := s.openGatewaySession(ctx, input, session, reserved)
	if err != nil {
		s.abortInitiation(ctx, session, reserved, "gateway initialization failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	if err := s.sessions.AttachGatewayToken(ctx, session.Token, gwSession.Token); err != nil {
		s.abortInitiation(ctx, session, reserved, "gateway token attach failed")
		return nil, err
	}
	session.GatewayToken = gwSession.Token

	s.publish(ctx, kafka.EventCheckoutInitiated, session, ticketIDs, "")
	return &InitiateResult{Token: gwSession.Token, RedirectURL: gwSession.RedirectURL, Session: session}, nil
}

func (s *CheckoutService) createPendingTickets(ctx context.Context, session *domain.PaymentSession, reserved []reservedLine) ([]string, error) {
	var ids []string
	for _, l := range reserved {
		for i := 0; i < l.quantity; i++ {
			t := &domain.Ticket{
				ID:           uuid.NewString(),
				UserID:       session.UserID,
				EventID:      l.event.ID,
				PriceCents:   l.event.PriceCents,
				SessionToken: session.Token,
			}
			if err := s.tickets.CreatePending(ctx, t); err != nil {
				return nil, err
			}
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func (s *CheckoutService) openGatewaySession(ctx context.Context, input InitiateInput, session *domain.PaymentSession, reserved []reservedLine) (*gateway.CheckoutSession, error) {
	items := make([]gateway.Item, 0, len(reserved))
	for _, l := range reserved {
		items = append(items, gateway.Item{
			EventID:   l.event.ID,
			Name:      l.event.Title,
			Quantity:  l.quantity,
			UnitPrice: CentsToAmount(l.event.PriceCents),
		})
	}

	req := &gateway.CheckoutRequest{
		ConversationID: session.Token,
		Price:          CentsToAmount(session.SubtotalCents),
		PaidPrice:      CentsToAmount(session.TotalCents),
		Currency:       session.Currency,
		CallbackURL:    s.callbackURL,
		Buyer: gateway.Buyer{
			ID:        session.UserID,
			FirstName: input.Contact.FirstName,
			LastName:  input.Contact.LastName,
			Email:     input.Contact.Email,
			Phone:     input.Contact.Phone,
			IP:        input.ClientIP,
		},
		Items: items,
	}

	start := time.Now()
	gwSession, err := s.gateway.InitializeCheckout(ctx, req)
	s.monitor.TrackGatewayRequest("initialize", time.Since(start))
	return gwSession, err
}

// Finalize resolves a payment session by gateway token. It is driven both by
// the client returning from the payment page and by the gateway webhook;
// whichever arrives second observes the first caller's outcome and mutates
// nothing.
func (s *CheckoutService) Finalize(ctx context.Context, gatewayToken string) (*FinalizeResult, error) {
	sess, err := s.sessions.GetByGatewayToken(ctx, gatewayToken)
	if err != nil {
		return nil, err
	}

	if sess.IsTerminal() {
		return s.outcome(ctx, sess)
	}

	start := time.Now()
	result, err := s.gateway.RetrieveCheckout(ctx, gatewayToken)
	s.monitor.TrackGatewayRequest("retrieve", time.Since(start))
	if err != nil {
		// Retry budget exhausted. Capacity must not stay reserved against a
		// session nobody can resolve.
		s.log.Warn("gateway unreachable, failing session", "session", sess.Token, "error", err)
		return s.resolveFailure(ctx, sess, "payment gateway unreachable")
	}

	switch result.Status {
	case gateway.StatusSuccess:
		return s.resolveSuccess(ctx, sess)
	case gateway.StatusPending:
		return &FinalizeResult{Success: false, Status: domain.SessionStatusPending}, nil
	default:
		reason := result.Reason
		if reason == "" {
			reason = "payment declined"
		}
		return s.resolveFailure(ctx, sess, reason)
	}
}

func (s *CheckoutService) resolveSuccess(ctx context.Context, sess *domain.PaymentSession) (*FinalizeResult, error) {
	resolved, won, err := s.sessions.Resolve(ctx, sess.Token, domain.SessionStatusConfirmed, "")
	if err != nil {
		return nil, err
	}
	if !won {
		return s.outcome(ctx, resolved)
	}

	ids, err := s.confirmSessionTickets(ctx, resolved)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.ReleaseCheckoutLock(ctx, resolved.UserID)
	}
	s.publish(ctx, kafka.EventTicketsConfirmed, resolved, ids, "")
	s.monitor.TrackCheckout("finalize", "confirmed")
	return &FinalizeResult{Success: true, Status: domain.SessionStatusConfirmed, TicketIDs: ids}, nil
}

func (s *CheckoutService) resolveFailure(ctx context.Context, sess *domain.PaymentSession, reason string) (*FinalizeResult, error) {
	resolved, won, err := s.sessions.Resolve(ctx, sess.Token, domain.SessionStatusFailed, reason)
	if err != nil {
		return nil, err
	}
	if !won {
		return s.outcome(ctx, resolved)
	}

	// The won transition guarantees this runs once, so capacity cannot be
	// released twice for the same session.
	cancelled, err := s.tickets.CancelBySession(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	s.releaseTickets(ctx, cancelled)

	if s.cache != nil {
		_ = s.cache.ReleaseCheckoutLock(ctx, resolved.UserID)
	}
	s.publish(ctx, kafka.EventTicketsCancelled, resolved, ticketIDs(cancelled), reason)
	s.monitor.TrackCheckout("finalize", "failed")
	return &FinalizeResult{Success: false, Status: domain.SessionStatusFailed, Reason: resolved.FailureReason}, nil
}

// confirmSessionTickets issues credentials for and confirms every
// still-pending ticket of a paid session, returning the IDs that make up the
// paid outcome. Re-runnable: issuance is deterministic and the confirm
// transition tolerates tickets an interrupted earlier run already moved, so
// repeating the loop converges on the same state. Tickets the user cancelled
// before paying are excluded.
func (s *CheckoutService) confirmSessionTickets(ctx context.Context, sess *domain.PaymentSession) ([]string, error) {
	tickets, err := s.tickets.ListBySession(ctx, sess.Token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		if t.Status == domain.TicketStatusCancelled {
			continue
		}
		if t.Status == domain.TicketStatusPending {
			credential := t.Credential
			if credential == "" {
				credential, err = s.issuer.Issue(t.ID, t.EventID, t.UserID)
				if err != nil {
					return nil, fmt.Errorf("issue credential for ticket %s: %w", t.ID, err)
				}
			}
			if err := s.tickets.MarkConfirmed(ctx, t.ID, credential, now); err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
				return nil, err
			}
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// outcome reports a terminal session. A confirmed session can still carry
// pending tickets if an earlier run stopped between the session transition
// and the confirm loop; they are confirmed here, so a paid session never
// stays out of step with its ticket rows.
func (s *CheckoutService) outcome(ctx context.Context, sess *domain.PaymentSession) (*FinalizeResult, error) {
	if sess.Status == domain.SessionStatusConfirmed {
		ids, err := s.confirmSessionTickets(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &FinalizeResult{Success: true, Status: domain.SessionStatusConfirmed, TicketIDs: ids}, nil
	}
	return &FinalizeResult{Success: false, Status: sess.Status, Reason: sess.FailureReason}, nil
}

// ReleaseStaleSessions is the reconciliation sweep: every pending session
// past its deadline is failed and its reservations are returned. Called
// periodically by the worker.
func (s *CheckoutService) ReleaseStaleSessions(ctx context.Context) ([]domain.PaymentSession, error) {
	expired, err := s.sessions.ExpirePendingBefore(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	for _, sess := range expired {
		cancelled, err := s.tickets.CancelBySession(ctx, sess.Token)
		if err != nil {
			s.log.Error("failed to cancel tickets for expired session", "session", sess.Token, "error", err)
			continue
		}
		s.releaseTickets(ctx, cancelled)
		if s.cache != nil {
			_ = s.cache.ReleaseCheckoutLock(ctx, sess.UserID)
		}
		s.publish(ctx, kafka.EventSessionExpired, &sess, ticketIDs(cancelled), "session expired")
		s.monitor.TrackSessionExpired()
	}
	return expired, nil
}

func (s *CheckoutService) abortInitiation(ctx context.Context, session *domain.PaymentSession, reserved []reservedLine, reason string) {
	if _, _, err := s.sessions.Resolve(ctx, session.Token, domain.SessionStatusFailed, reason); err != nil {
		s.log.Error("failed to abort payment session", "session", session.Token, "error", err)
	}
	if _, err := s.tickets.CancelBySession(ctx, session.Token); err != nil {
		s.log.Error("failed to cancel tickets for aborted session", "session", session.Token, "error", err)
	}
	s.releaseLines(ctx, reserved)
}

func (s *CheckoutService) releaseLines(ctx context.Context, reserved []reservedLine) {
	for _, l := range reserved {
		if err := s.events.ReleaseCapacity(ctx, l.event.ID, l.quantity); err != nil {
			s.log.Error("failed to release capacity", "event", l.event.ID, "quantity", l.quantity, "error", err)
			continue
		}
		s.monitor.TrackCapacityReleased(l.quantity)
	}
}

func (s *CheckoutService) releaseTickets(ctx context.Context, cancelled []domain.Ticket) {
	perEvent := make(map[int64]int)
	for _, t := range cancelled {
		perEvent[t.EventID]++
	}
	for eventID, quantity := range perEvent {
		if err := s.events.ReleaseCapacity(ctx, eventID, quantity); err != nil {
			s.log.Error("failed to release capacity", "event", eventID, "quantity", quantity, "error", err)
			continue
		}
		s.monitor.TrackCapacityReleased(quantity)
	}
}

func (s *CheckoutService) publish(ctx context.Context, eventType string, sess *domain.PaymentSession, ids []string, reason string) {
	if s.producer == nil || s.ticketTopic == "" {
		return
	}
	event := kafka.TicketEvent{
		Type:          eventType,
		SessionToken:  sess.Token,
		UserID:        sess.UserID,
		Email:         sess.ContactEmail,
		TicketIDs:     ids,
		TotalCents:    sess.TotalCents,
		FailureReason: reason,
		OccurredAt:    time.Now(),
	}
	if err := s.producer.Publish(ctx, s.ticketTopic, sess.Token, event); err != nil {
		s.log.Warn("failed to publish ticket event", "type", eventType, "session", sess.Token, "error", err)
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, sess.Token, event); err != nil {
			s.log.Warn("failed to publish notification event", "type", eventType, "session", sess.Token, "error", err)
		}
	}
}

func ticketIDs(tickets []domain.Ticket) []string {
	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	return ids
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, repository.ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, ErrDuplicateTicket):
		return "duplicate_ticket"
	case errors.Is(err, ErrPaymentFailed):
		return "gateway_error"
	default:
		return "rejected"
	}
}

var _ CheckoutUseCase = (*CheckoutService)(nil)
