// Package outbox mirrors committed ledger changes to an external broker.
// Messages are appended in the same transaction as the change they
// describe; the Sender delivers them afterwards, at least once, in commit
// order.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/lib/logger/sl"
	"github.com/kirinyoku/tixledger/internal/metrics"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type TicketBody struct {
	TicketID    int64               `json:"ticket_id"`
	EventID     int64               `json:"event_id"`
	Owner       string              `json:"owner"`
	Seat        string              `json:"seat,omitempty"`
	MetadataURI string              `json:"metadata_uri,omitempty"`
	Status      domain.TicketStatus `json:"status"`
	Caller      string              `json:"caller,omitempty"`
	At          time.Time           `json:"at"`
}

type EventBody struct {
	EventID   int64     `json:"event_id"`
	Organizer string    `json:"organizer"`
	Name      string    `json:"name,omitempty"`
	Capacity  int64     `json:"capacity,omitempty"`
	Price     int64     `json:"price,omitempty"`
	Closed    bool      `json:"closed"`
	At        time.Time `json:"at"`
}

func NewMessage(msgType, key string, body any, at time.Time) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("outbox: encoding %s: %w", msgType, err)
	}

	return domain.OutboxMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		Key:       key,
		Payload:   payload,
		CreatedAt: at,
	}, nil
}

func TicketMessage(msgType string, t domain.Ticket, caller string, at time.Time) (domain.OutboxMessage, error) {
	return NewMessage(msgType, strconv.FormatInt(t.EventID, 10), TicketBody{
		TicketID:    t.ID,
		EventID:     t.EventID,
		Owner:       t.Owner,
		Seat:        t.Seat,
		MetadataURI: t.MetadataURI,
		Status:      t.Status,
		Caller:      caller,
		At:          at,
	}, at)
}

func EventMessage(msgType string, e domain.Event, at time.Time) (domain.OutboxMessage, error) {
	return NewMessage(msgType, strconv.FormatInt(e.ID, 10), EventBody{
		EventID:   e.ID,
		Organizer: e.Organizer,
		Name:      e.Name,
		Capacity:  e.Capacity,
		Price:     e.Price,
		Closed:    e.Closed,
		At:        at,
	}, at)
}

type Publisher interface {
	Publish(ctx context.Context, m domain.OutboxMessage) error
}

type Sender struct {
	log       *slog.Logger
	store     repository.Store
	publisher Publisher
	clock     clock.Clock
	metrics   *metrics.Metrics
	batch     int
	timeout   time.Duration
}

func NewSender(
	log *slog.Logger,
	store repository.Store,
	publisher Publisher,
	clk clock.Clock,
	m *metrics.Metrics,
	batch int,
) *Sender {
	if batch <= 0 {
		batch = 100
	}

	return &Sender{
		log:       log,
		store:     store,
		publisher: publisher,
		clock:     clk,
		metrics:   m,
		batch:     batch,
		timeout:   10 * time.Second,
	}
}

// Flush delivers one batch of pending messages and returns how many were
// sent. Delivery stops at the first publish failure; everything published
// before it is still marked sent.
//
// No transaction is held while the broker is called. A crash between a
// publish and its MarkSent redelivers that message on the next flush, so
// consumers deduplicate on the message id.
func (s *Sender) Flush(ctx context.Context) (int, error) {
	const op = "outbox.Sender.Flush"
	log := s.log.With(slog.String("op", op))

	pending, err := s.store.Outbox().Pending(ctx, s.batch)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var sent int
	for _, m := range pending {
		if err := s.publish(ctx, m); err != nil {
			log.Error("failed to publish message",
				slog.String("id", m.ID),
				slog.String("type", m.Type),
				sl.Err(err),
			)
			return sent, fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
			return tx.Outbox().MarkSent(ctx, m.ID, s.clock.Now())
		}); err != nil {
			return sent, fmt.Errorf("%s: %w", op, err)
		}

		sent++
		s.metrics.OutboxPublished(m.Type, 1)
	}

	return sent, nil
}

func (s *Sender) publish(ctx context.Context, m domain.OutboxMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.publisher.Publish(ctx, m)
}

// LogPublisher writes messages to the log. It stands in for a broker in
// local runs.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, m domain.OutboxMessage) error {
	p.Log.Info("outbox message",
		slog.String("id", m.ID),
		slog.String("type", m.Type),
		slog.String("key", m.Key),
		slog.String("payload", string(m.Payload)),
	)
	return nil
}
