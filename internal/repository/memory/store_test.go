package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

var now = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func newEvent(t *testing.T, s *Store, capacity int64) int64 {
	t.Helper()
	id, err := s.Events().Create(context.Background(), "org", domain.NewEvent{
		Name:         "Neon Dreams Festival",
		StartsAt:     now.Add(24 * time.Hour),
		Venue:        "Cyber Arena",
		Price:        5000,
		Capacity:     capacity,
		EnforceSeats: true,
	}, now)
	require.NoError(t, err)
	return id
}

func TestRunTx_RollsBackEveryWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 10)

	boom := errors.New("boom")
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		id, err := tx.Tickets().Insert(ctx, domain.Ticket{
			EventID: eventID, Owner: "alice", Seat: "A-1", Status: domain.TicketMinted, MintedAt: now,
		}, true)
		require.NoError(t, err)
		require.NoError(t, tx.Events().IncrementSold(ctx, eventID))
		require.NoError(t, tx.Vouchers().Consume(ctx, "h1", eventID, id, now))
		require.NoError(t, tx.Outbox().Append(ctx, domain.OutboxMessage{ID: "m1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := s.Events().Get(ctx, eventID)
	require.NoError(t, err)
	assert.Zero(t, e.Sold)

	n, err := s.Tickets().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	taken, err := s.Tickets().SeatTaken(ctx, eventID, "A-1")
	require.NoError(t, err)
	assert.False(t, taken)

	used, err := s.Vouchers().Consumed(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, used)

	pending, err := s.Outbox().Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTicketIDsAreNeverReused(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 10)

	_ = s.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		_, err := tx.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Status: domain.TicketMinted}, false)
		require.NoError(t, err)
		return errors.New("abort")
	})

	id, err := s.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Status: domain.TicketMinted}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestIncrementSoldStopsAtCapacity(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 1)

	require.NoError(t, s.Events().IncrementSold(ctx, eventID))
	assert.ErrorIs(t, s.Events().IncrementSold(ctx, eventID), repository.ErrCapacityReached)
	assert.ErrorIs(t, s.Events().IncrementSold(ctx, 999), repository.ErrNotFound)
}

func TestSeatUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 10)

	_, err := s.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Seat: "B-2"}, true)
	require.NoError(t, err)

	_, err = s.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Seat: "B-2"}, true)
	assert.ErrorIs(t, err, repository.ErrConflict)

	// unenforced seats may repeat
	_, err = s.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Seat: "GA"}, false)
	require.NoError(t, err)
	_, err = s.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Seat: "GA"}, false)
	require.NoError(t, err)
}

func TestTransition(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 10)

	id, err := s.Tickets().Insert(ctx, domain.Ticket{EventID: eventID, Status: domain.TicketMinted}, false)
	require.NoError(t, err)

	require.NoError(t, s.Tickets().Transition(ctx, id, domain.TicketMinted, domain.TicketVerified, now))
	err = s.Tickets().Transition(ctx, id, domain.TicketMinted, domain.TicketVerified, now)
	assert.ErrorIs(t, err, repository.ErrStaleStatus)

	tk, err := s.Tickets().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketVerified, tk.Status)
	require.NotNil(t, tk.VerifiedAt)
	assert.Nil(t, tk.UsedAt)
}

func TestRolesScopedToEvent(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := int64(3)

	require.NoError(t, s.Roles().Grant(ctx, domain.Grant{
		Account: "scanner", Role: domain.RoleOperator, Organizer: "org", EventID: &eventID,
	}))

	ok, err := s.Roles().Has(ctx, "scanner", domain.RoleOperator, "org", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Roles().Has(ctx, "scanner", domain.RoleOperator, "org", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Roles().Grant(ctx, domain.Grant{Account: "scanner", Role: domain.RoleOperator, Organizer: "org"}))
	ok, err = s.Roles().Has(ctx, "scanner", domain.RoleOperator, "org", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Roles().Revoke(ctx, domain.Grant{Account: "nobody", Role: domain.RoleMinter}), repository.ErrNotFound)
}

func TestConcurrentIncrementsRespectCapacity(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 25)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
				if _, err := tx.Tickets().Insert(ctx, domain.Ticket{EventID: eventID}, false); err != nil {
					return err
				}
				return tx.Events().IncrementSold(ctx, eventID)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, succeeded)
	drift, err := s.Events().SoldDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestOutboxAndAudit(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Outbox().Append(ctx, domain.OutboxMessage{ID: "a"}))
	require.NoError(t, s.Outbox().Append(ctx, domain.OutboxMessage{ID: "b"}))
	require.NoError(t, s.Outbox().MarkSent(ctx, "a", now))
	assert.ErrorIs(t, s.Outbox().MarkSent(ctx, "zzz", now), repository.ErrNotFound)

	pending, err := s.Outbox().Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	require.NoError(t, s.Audit().Record(ctx, domain.VerificationRecord{TicketID: 1, Action: domain.ActionCheck}))
	require.NoError(t, s.Audit().Record(ctx, domain.VerificationRecord{TicketID: 2, Action: domain.ActionCheck}))
	require.NoError(t, s.Audit().Record(ctx, domain.VerificationRecord{TicketID: 1, Action: domain.ActionVerify}))

	hist, err := s.Audit().History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.ActionVerify, hist[0].Action)
}

func TestView_ReadsOneSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s, 10)

	done := make(chan error, 1)
	err := s.View(ctx, func(ctx context.Context, tx repository.Repos) error {
		before, err := tx.Events().Get(ctx, eventID)
		require.NoError(t, err)

		go func() {
			done <- s.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
				return tx.Events().IncrementSold(ctx, eventID)
			})
		}()
		time.Sleep(20 * time.Millisecond)

		after, err := tx.Events().Get(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, before.Sold, after.Sold)

		assert.Error(t, tx.Events().IncrementSold(ctx, eventID), "views are read-only")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-done)

	e, err := s.Events().Get(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Sold)
}
