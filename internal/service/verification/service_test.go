package verification

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository/memory"
	"github.com/kirinyoku/tixledger/internal/service/ledger"
	"github.com/kirinyoku/tixledger/internal/service/registry"
	"github.com/kirinyoku/tixledger/internal/ticketqr"
)

const (
	organizer = "org"
	gate      = "gate-operator"
)

type VerificationSuite struct {
	suite.Suite

	ctx      context.Context
	clk      *clock.FakeClock
	codec    *ticketqr.Codec
	registry *registry.Service
	ledger   *ledger.Service
	svc      *Service
}

func TestVerificationSuite(t *testing.T) {
	suite.Run(t, new(VerificationSuite))
}

func (s *VerificationSuite) SetupTest() {
	s.ctx = context.Background()
	s.clk = clock.Fake(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
	s.codec = ticketqr.NewCodec("test-secret")

	store := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.registry = registry.New(store, nil, s.clk, log, nil, registry.Config{RejectPastStart: true})
	s.ledger = ledger.New(store, nil, nil, nil, s.clk, log, nil, ledger.Config{})
	s.svc = New(store, s.codec, nil, s.clk, log, nil, Config{})

	s.Require().NoError(s.registry.Bootstrap(s.ctx, domain.Bootstrap{Organizers: []string{organizer}}))
	s.Require().NoError(s.registry.GrantRole(s.ctx, organizer, domain.Grant{Account: gate, Role: domain.RoleOperator}))
}

func (s *VerificationSuite) createEvent() int64 {
	id, err := s.registry.CreateEvent(s.ctx, organizer, domain.NewEvent{
		Name:     gofakeit.Name() + " Tour",
		StartsAt: s.clk.Now().Add(48 * time.Hour),
		Venue:    gofakeit.City(),
		Price:    50000,
		Capacity: 100,
	})
	s.Require().NoError(err)
	return id
}

func (s *VerificationSuite) mint(eventID int64, owner string) int64 {
	id, err := s.ledger.Mint(s.ctx, domain.MintRequest{
		EventID:       eventID,
		Recipient:     owner,
		Authorization: domain.MinterProof{Caller: organizer},
	}, "")
	s.Require().NoError(err)
	return id
}

func (s *VerificationSuite) status(ticketID int64) domain.TicketStatus {
	r, err := s.svc.CheckValidity(s.ctx, ticketID)
	s.Require().NoError(err)
	return r.Status
}

func (s *VerificationSuite) TestGateScenario() {
	var eventID int64
	for eventID != 7 {
		eventID = s.createEvent()
	}

	var ticketID int64
	for ticketID != 42 {
		ticketID = s.mint(eventID, "holder")
	}
	s.Equal(domain.TicketMinted, s.status(42))

	s.Require().NoError(s.svc.MarkVerified(s.ctx, 42, gate))
	s.Equal(domain.TicketVerified, s.status(42))

	s.Require().NoError(s.svc.MarkUsed(s.ctx, 42, gate))
	s.Equal(domain.TicketUsed, s.status(42))

	err := s.svc.MarkUsed(s.ctx, 42, gate)
	s.ErrorIs(err, domain.ErrAlreadyUsed)
	s.Equal(domain.TicketUsed, s.status(42))

	report, err := s.svc.CheckValidity(s.ctx, 42)
	s.Require().NoError(err)
	s.False(report.Valid)
	s.Require().NotNil(report.Ticket.VerifiedAt)
	s.Require().NotNil(report.Ticket.UsedAt)
	s.Equal(s.clk.Now(), *report.Ticket.UsedAt)
}

func (s *VerificationSuite) TestNoTransitionAfterUse() {
	id := s.mint(s.createEvent(), "holder")
	s.Require().NoError(s.svc.MarkVerified(s.ctx, id, gate))
	s.Require().NoError(s.svc.MarkUsed(s.ctx, id, gate))

	s.ErrorIs(s.svc.MarkVerified(s.ctx, id, gate), domain.ErrAlreadyUsed)
	s.ErrorIs(s.svc.MarkUsed(s.ctx, id, gate), domain.ErrAlreadyUsed)
	s.Equal(domain.TicketUsed, s.status(id))
}

func (s *VerificationSuite) TestTwoStepPolicy() {
	id := s.mint(s.createEvent(), "holder")

	s.ErrorIs(s.svc.MarkUsed(s.ctx, id, gate), domain.ErrInvalidTransition, "use requires verify")
	s.Equal(domain.TicketMinted, s.status(id))

	s.Require().NoError(s.svc.MarkVerified(s.ctx, id, gate))
	s.ErrorIs(s.svc.MarkVerified(s.ctx, id, gate), domain.ErrInvalidTransition)
	s.Equal(domain.TicketVerified, s.status(id))
}

func (s *VerificationSuite) TestOperatorAuthorization() {
	eventA := s.createEvent()
	eventB := s.createEvent()
	ticketA := s.mint(eventA, "holder")
	ticketB := s.mint(eventB, "holder")

	s.ErrorIs(s.svc.MarkVerified(s.ctx, ticketA, "stranger"), domain.ErrUnauthorized)
	s.ErrorIs(s.svc.MarkVerified(s.ctx, ticketA, ""), domain.ErrUnauthorized)
	s.ErrorIs(s.svc.MarkVerified(s.ctx, ticketA, "holder"), domain.ErrUnauthorized, "owners cannot admit themselves")

	s.Require().NoError(s.registry.GrantRole(s.ctx, organizer, domain.Grant{
		Account: "door-b", Role: domain.RoleOperator, EventID: &eventB,
	}))
	s.ErrorIs(s.svc.MarkVerified(s.ctx, ticketA, "door-b"), domain.ErrUnauthorized)
	s.NoError(s.svc.MarkVerified(s.ctx, ticketB, "door-b"))

	s.NoError(s.svc.MarkVerified(s.ctx, ticketA, organizer), "organizers operate their own events")
}

func (s *VerificationSuite) TestNotFound() {
	_, err := s.svc.CheckValidity(s.ctx, 9999)
	s.ErrorIs(err, domain.ErrNotFound)

	s.ErrorIs(s.svc.MarkVerified(s.ctx, 9999, gate), domain.ErrNotFound)
	s.ErrorIs(s.svc.MarkUsed(s.ctx, 9999, gate), domain.ErrNotFound)

	_, err = s.svc.History(s.ctx, 9999)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *VerificationSuite) TestClosedEventInvalidatesTickets() {
	eventID := s.createEvent()
	id := s.mint(eventID, "holder")

	report, err := s.svc.CheckValidity(s.ctx, id)
	s.Require().NoError(err)
	s.True(report.Exists)
	s.True(report.Valid)
	s.Equal("holder", report.Owner)
	s.Equal(eventID, report.Event.ID)

	s.Require().NoError(s.registry.CloseEvent(s.ctx, organizer, eventID))

	report, err = s.svc.CheckValidity(s.ctx, id)
	s.Require().NoError(err)
	s.False(report.Valid)
}

func (s *VerificationSuite) TestConcurrentUseAdmitsOnce() {
	id := s.mint(s.createEvent(), "holder")
	s.Require().NoError(s.svc.MarkVerified(s.ctx, id, gate))

	const scanners = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		replays  int
	)
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.svc.MarkUsed(s.ctx, id, gate)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
				return
			}
			if s.ErrorIs(err, domain.ErrAlreadyUsed) {
				replays++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, admitted)
	s.Equal(scanners-1, replays)
}

func (s *VerificationSuite) TestScan() {
	eventID := s.createEvent()
	otherEvent := s.createEvent()
	id := s.mint(eventID, "holder")

	payload, err := s.svc.QRPayload(s.ctx, id, "holder")
	s.Require().NoError(err)

	report, err := s.svc.Scan(s.ctx, payload, gate)
	s.Require().NoError(err)
	s.Equal(id, report.Ticket.ID)
	s.True(report.Valid)

	wrongEvent := s.codec.Encode(ticketqr.Payload{TicketID: id, EventID: otherEvent})
	_, err = s.svc.Scan(s.ctx, wrongEvent, gate)
	s.ErrorIs(err, domain.ErrInvalidPayload)

	forged := ticketqr.NewCodec("another-secret").Encode(ticketqr.Payload{TicketID: id, EventID: eventID})
	_, err = s.svc.Scan(s.ctx, forged, gate)
	s.ErrorIs(err, domain.ErrInvalidPayload)

	missing := s.codec.Encode(ticketqr.Payload{TicketID: 777, EventID: eventID})
	_, err = s.svc.Scan(s.ctx, missing, gate)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *VerificationSuite) TestHistoryKeepsRejectedAttempts() {
	id := s.mint(s.createEvent(), "holder")

	s.Require().Error(s.svc.MarkUsed(s.ctx, id, gate))
	s.clk.Advance(time.Minute)
	s.Require().Error(s.svc.MarkVerified(s.ctx, id, "stranger"))
	s.clk.Advance(time.Minute)
	s.Require().NoError(s.svc.MarkVerified(s.ctx, id, gate))

	records, err := s.svc.History(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Len(records, 3)

	s.Equal(domain.ActionVerify, records[0].Action)
	s.Equal("ok", records[0].Outcome)
	s.Equal(gate, records[0].Caller)

	s.Equal("unauthorized", records[1].Outcome)
	s.Equal("stranger", records[1].Caller)

	s.Equal(domain.ActionUse, records[2].Action)
	s.Equal("invalid_transition", records[2].Outcome)
}

func (s *VerificationSuite) TestQRCodeOwnerOnly() {
	id := s.mint(s.createEvent(), "holder")

	_, err := s.svc.QRCode(s.ctx, id, "someone-else")
	s.ErrorIs(err, domain.ErrUnauthorized)

	img, err := s.svc.QRCode(s.ctx, id, "holder")
	s.Require().NoError(err)
	s.Require().Greater(len(img), 2)
	s.Equal([]byte{0xFF, 0xD8}, img[:2], "JPEG start of image marker")
}

func TestCheckValidityIsReadOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := clock.Fake(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC))
	svc := New(store, ticketqr.NewCodec("x"), nil, clk, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, Config{})

	for i := 0; i < 3; i++ {
		_, err := svc.CheckValidity(ctx, int64(i))
		require.ErrorIs(t, err, domain.ErrNotFound)
	}

	records, err := store.Audit().History(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, records)
}
