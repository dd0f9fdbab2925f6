package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/eventix/eventix/internal/domain"
	"github.com/eventix/eventix/internal/issuer"
	"github.com/eventix/eventix/internal/repository"
	"github.com/eventix/eventix/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTicketRepository struct {
	mock.Mock
}

func (m *MockTicketRepository) CreatePending(ctx context.Context, ticket *domain.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListBySession(ctx context.Context, sessionToken string) ([]domain.Ticket, error) {
	args := m.Called(ctx, sessionToken)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListPendingByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) HasActiveTicket(ctx context.Context, userID string, eventID int64) (bool, error) {
	args := m.Called(ctx, userID, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketRepository) MarkConfirmed(ctx context.Context, id, credential string, purchaseDate time.Time) error {
	args := m.Called(ctx, id, credential, purchaseDate)
	return args.Error(0)
}

func (m *MockTicketRepository) MarkCancelled(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) MarkUsed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTicketRepository) CancelBySession(ctx context.Context, sessionToken string) ([]domain.Ticket, error) {
	args := m.Called(ctx, sessionToken)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) List(ctx context.Context) ([]domain.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventRepository) ReserveCapacity(ctx context.Context, eventID int64, quantity int) error {
	args := m.Called(ctx, eventID, quantity)
	return args.Error(0)
}

func (m *MockEventRepository) ReleaseCapacity(ctx context.Context, eventID int64, quantity int) error {
	args := m.Called(ctx, eventID, quantity)
	return args.Error(0)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(credential string) (*issuer.Claims, error) {
	args := m.Called(credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*issuer.Claims), args.Error(1)
}

func (m *MockVerifier) RenderQR(credential string) (string, error) {
	args := m.Called(credential)
	return args.String(0), args.Error(1)
}

func newTicketTestService() (*TicketService, *MockTicketRepository, *MockEventRepository, *MockVerifier) {
	ticketRepo := &MockTicketRepository{}
	eventRepo := &MockEventRepository{}
	verifier := &MockVerifier{}
	service := NewTicketService(ticketRepo, eventRepo, verifier, nil, logger.NewNop())
	return service, ticketRepo, eventRepo, verifier
}

func owner() domain.Identity {
	return domain.Identity{UserID: "user-1", Role: domain.RoleUser}
}

func organizer() domain.Identity {
	return domain.Identity{UserID: "org-1", Role: domain.RoleOrganizer}
}

func admin() domain.Identity {
	return domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
}

func TestTicketService_Cart(t *testing.T) {
	service, ticketRepo, _, _ := newTicketTestService()
	ctx := context.Background()

	pending := []domain.Ticket{{ID: "t-1", UserID: "user-1", Status: domain.TicketStatusPending}}
	ticketRepo.On("ListPendingByUser", ctx, "user-1").Return(pending, nil).Once()

	result, err := service.Cart(ctx, owner())

	assert.NoError(t, err)
	assert.Equal(t, pending, result)
	ticketRepo.AssertExpectations(t)
}

func TestTicketService_Get_OwnerAllowed(t *testing.T) {
	service, ticketRepo, _, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", Status: domain.TicketStatusConfirmed}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	result, err := service.Get(ctx, owner(), "t-1")

	assert.NoError(t, err)
	assert.Equal(t, ticket, result)
}

func TestTicketService_Get_StrangerForbidden(t *testing.T) {
	service, ticketRepo, _, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "someone-else"}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	result, err := service.Get(ctx, owner(), "t-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTicketService_Get_AdminSeesAny(t *testing.T) {
	service, ticketRepo, _, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "someone-else"}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	result, err := service.Get(ctx, admin(), "t-1")

	assert.NoError(t, err)
	assert.Equal(t, ticket, result)
}

func TestTicketService_QRCode(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", Credential: "cred-1", Status: domain.TicketStatusConfirmed}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()
	verifier.On("RenderQR", "cred-1").Return("data:image/png;base64,abc", nil).Once()

	dataURL, err := service.QRCode(ctx, owner(), "t-1")

	assert.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,abc", dataURL)
}

func TestTicketService_QRCode_NoCredentialYet(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", Status: domain.TicketStatusPending}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	dataURL, err := service.QRCode(ctx, owner(), "t-1")

	assert.Empty(t, dataURL)
	assert.ErrorIs(t, err, ErrCredentialsUnset)
	verifier.AssertNotCalled(t, "RenderQR")
}

func TestTicketService_RemoveFromCart_ReleasesCapacity(t *testing.T) {
	service, ticketRepo, eventRepo, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusPending}
	cancelled := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusCancelled}

	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()
	ticketRepo.On("MarkCancelled", ctx, "t-1").Return(cancelled, nil).Once()
	eventRepo.On("ReleaseCapacity", ctx, int64(4), 1).Return(nil).Once()

	err := service.RemoveFromCart(ctx, owner(), "t-1")

	assert.NoError(t, err)
	ticketRepo.AssertExpectations(t)
	eventRepo.AssertExpectations(t)
}

func TestTicketService_RemoveFromCart_ConfirmedNotCancellable(t *testing.T) {
	service, ticketRepo, eventRepo, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusConfirmed}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	err := service.RemoveFromCart(ctx, owner(), "t-1")

	assert.ErrorIs(t, err, ErrNotCancellable)
	ticketRepo.AssertNotCalled(t, "MarkCancelled")
	eventRepo.AssertNotCalled(t, "ReleaseCapacity")
}

func TestTicketService_RemoveFromCart_StrangerForbidden(t *testing.T) {
	service, ticketRepo, eventRepo, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "someone-else", EventID: 4, Status: domain.TicketStatusPending}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	err := service.RemoveFromCart(ctx, owner(), "t-1")

	assert.ErrorIs(t, err, ErrForbidden)
	eventRepo.AssertNotCalled(t, "ReleaseCapacity")
}

// Two concurrent removals: the loser of the conditional transition must not
// release capacity a second time.
func TestTicketService_RemoveFromCart_LostTransitionRace(t *testing.T) {
	service, ticketRepo, eventRepo, _ := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusPending}
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()
	ticketRepo.On("MarkCancelled", ctx, "t-1").Return(nil, repository.ErrInvalidTransition).Once()

	err := service.RemoveFromCart(ctx, owner(), "t-1")

	assert.ErrorIs(t, err, ErrNotCancellable)
	eventRepo.AssertNotCalled(t, "ReleaseCapacity")
}

func TestTicketService_Redeem_Success(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusConfirmed}
	verifier.On("Verify", "cred-1").Return(&issuer.Claims{TicketID: "t-1", EventID: 4, UserID: "user-1"}, nil).Once()
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()
	ticketRepo.On("MarkUsed", ctx, "t-1").Return(nil).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "cred-1")

	assert.NoError(t, err)
	assert.Equal(t, domain.TicketStatusUsed, result.Status)
	ticketRepo.AssertExpectations(t)
}

func TestTicketService_Redeem_BuyerCannotScan(t *testing.T) {
	service, _, _, verifier := newTicketTestService()
	ctx := context.Background()

	result, err := service.Redeem(ctx, owner(), "t-1", "cred-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrForbidden)
	verifier.AssertNotCalled(t, "Verify")
}

func TestTicketService_Redeem_BadCredential(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	verifier.On("Verify", "garbage").Return(nil, issuer.ErrInvalidCredential).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "garbage")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrBadCredential)
	ticketRepo.AssertNotCalled(t, "GetByID")
}

func TestTicketService_Redeem_CredentialForOtherTicket(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	verifier.On("Verify", "cred-2").Return(&issuer.Claims{TicketID: "t-2", EventID: 4, UserID: "user-1"}, nil).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "cred-2")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrBadCredential)
	ticketRepo.AssertNotCalled(t, "MarkUsed")
}

// Valid signature but claims that disagree with the stored row: rejected.
func TestTicketService_Redeem_ClaimsMismatch(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 9, Status: domain.TicketStatusConfirmed}
	verifier.On("Verify", "cred-1").Return(&issuer.Claims{TicketID: "t-1", EventID: 4, UserID: "user-1"}, nil).Once()
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "cred-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrBadCredential)
	ticketRepo.AssertNotCalled(t, "MarkUsed")
}

func TestTicketService_Redeem_SecondScanRejected(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	used := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusUsed}
	verifier.On("Verify", "cred-1").Return(&issuer.Claims{TicketID: "t-1", EventID: 4, UserID: "user-1"}, nil).Once()
	ticketRepo.On("GetByID", ctx, "t-1").Return(used, nil).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "cred-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
	ticketRepo.AssertNotCalled(t, "MarkUsed")
}

func TestTicketService_Redeem_PendingNotRedeemable(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	pending := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusPending}
	verifier.On("Verify", "cred-1").Return(&issuer.Claims{TicketID: "t-1", EventID: 4, UserID: "user-1"}, nil).Once()
	ticketRepo.On("GetByID", ctx, "t-1").Return(pending, nil).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "cred-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNotRedeemable)
}

// A double scan that slips past the status read loses on the conditional
// update instead.
func TestTicketService_Redeem_LosesUpdateRace(t *testing.T) {
	service, ticketRepo, _, verifier := newTicketTestService()
	ctx := context.Background()

	ticket := &domain.Ticket{ID: "t-1", UserID: "user-1", EventID: 4, Status: domain.TicketStatusConfirmed}
	verifier.On("Verify", "cred-1").Return(&issuer.Claims{TicketID: "t-1", EventID: 4, UserID: "user-1"}, nil).Once()
	ticketRepo.On("GetByID", ctx, "t-1").Return(ticket, nil).Once()
	ticketRepo.On("MarkUsed", ctx, "t-1").Return(repository.ErrInvalidTransition).Once()

	result, err := service.Redeem(ctx, organizer(), "t-1", "cred-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}
