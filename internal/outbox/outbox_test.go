package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository/memory"
)

type recordingPublisher struct {
	got    []domain.OutboxMessage
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, m domain.OutboxMessage) error {
	if p.failAt > 0 && len(p.got)+1 == p.failAt {
		p.failAt = 0
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, m)
	return nil
}

func appendTickets(t *testing.T, store *memory.Store, n int, at time.Time) {
	t.Helper()
	for i := 1; i <= n; i++ {
		m, err := TicketMessage(domain.MessageTicketMinted, domain.Ticket{
			ID:      int64(i),
			EventID: 7,
			Owner:   "alice",
			Status:  domain.TicketMinted,
		}, "", at)
		require.NoError(t, err)
		require.NoError(t, store.Outbox().Append(context.Background(), m))
	}
}

func TestTicketMessage(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	m, err := TicketMessage(domain.MessageTicketUsed, domain.Ticket{
		ID: 42, EventID: 7, Owner: "alice", Seat: "A-1", Status: domain.TicketUsed,
	}, "gate", at)
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "7", m.Key)
	assert.Equal(t, domain.MessageTicketUsed, m.Type)

	var body TicketBody
	require.NoError(t, json.Unmarshal(m.Payload, &body))
	assert.Equal(t, int64(42), body.TicketID)
	assert.Equal(t, domain.TicketUsed, body.Status)
	assert.Equal(t, "gate", body.Caller)
}

func TestSender_FlushDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	appendTickets(t, store, 3, clk.Now())

	pub := &recordingPublisher{}
	s := NewSender(slog.New(slog.NewTextHandler(io.Discard, nil)), store, pub, clk, nil, 10)

	n, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.got, 3)

	var first TicketBody
	require.NoError(t, json.Unmarshal(pub.got[0].Payload, &first))
	assert.Equal(t, int64(1), first.TicketID)

	n, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sent messages are not redelivered")
}

func TestSender_FlushStopsAtFailureAndResumes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clk := clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	appendTickets(t, store, 3, clk.Now())

	pub := &recordingPublisher{failAt: 2}
	s := NewSender(slog.New(slog.NewTextHandler(io.Discard, nil)), store, pub, clk, nil, 10)

	n, err := s.Flush(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, pub.got, 3)
}

// readingPublisher reads from the store while a publish is in flight.
type readingPublisher struct {
	store   *memory.Store
	blocked int
}

func (p *readingPublisher) Publish(ctx context.Context, _ domain.OutboxMessage) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.store.Outbox().Pending(context.Background(), 1)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		p.blocked++
		<-done
	}
	return nil
}

func TestSender_PublishHoldsNoStoreLock(t *testing.T) {
	store := memory.New()
	clk := clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	appendTickets(t, store, 3, clk.Now())

	pub := &readingPublisher{store: store}
	s := NewSender(slog.New(slog.NewTextHandler(io.Discard, nil)), store, pub, clk, nil, 10)

	n, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, pub.blocked)
}

type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ domain.OutboxMessage) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSender_PublishTimesOut(t *testing.T) {
	store := memory.New()
	clk := clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	appendTickets(t, store, 2, clk.Now())

	s := NewSender(slog.New(slog.NewTextHandler(io.Discard, nil)), store, stalledPublisher{}, clk, nil, 10)
	s.timeout = 20 * time.Millisecond

	n, err := s.Flush(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, n)

	pending, err := store.Outbox().Pending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
