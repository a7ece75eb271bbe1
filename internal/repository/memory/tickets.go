package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type ticketRepo struct{ repos }

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	if t.VerifiedAt != nil {
		v := *t.VerifiedAt
		cp.VerifiedAt = &v
	}
	if t.UsedAt != nil {
		u := *t.UsedAt
		cp.UsedAt = &u
	}
	return &cp
}

func (r *ticketRepo) Insert(ctx context.Context, t domain.Ticket, uniqueSeat bool) (int64, error) {
	const op = "memory.ticketRepo.Insert"

	var id int64
	err := r.write(ctx, func(tx *txn) error {
		if _, ok := r.s.events[t.EventID]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}

		key := seatKey{eventID: t.EventID, seat: t.Seat}
		if uniqueSeat && t.Seat != "" {
			if _, taken := r.s.seats[key]; taken {
				return fmt.Errorf("%s: %w", op, repository.ErrConflict)
			}
		}

		r.s.nextTicketID++
		id = r.s.nextTicketID
		t.ID = id
		r.s.tickets[id] = cloneTicket(&t)
		tx.onRollback(func() { delete(r.s.tickets, id) })

		if uniqueSeat && t.Seat != "" {
			r.s.seats[key] = id
			tx.onRollback(func() { delete(r.s.seats, key) })
		}
		return nil
	})
	return id, err
}

func (r *ticketRepo) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	const op = "memory.ticketRepo.Get"

	var out *domain.Ticket
	err := r.read(ctx, func() error {
		t, ok := r.s.tickets[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		out = cloneTicket(t)
		return nil
	})
	return out, err
}

func (r *ticketRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.Get(ctx, id)
}

func (r *ticketRepo) SeatTaken(ctx context.Context, eventID int64, seat string) (bool, error) {
	var taken bool
	err := r.read(ctx, func() error {
		_, taken = r.s.seats[seatKey{eventID: eventID, seat: seat}]
		return nil
	})
	return taken, err
}

func (r *ticketRepo) Transition(
	ctx context.Context,
	id int64,
	from, to domain.TicketStatus,
	at time.Time,
) error {
	const op = "memory.ticketRepo.Transition"

	return r.write(ctx, func(tx *txn) error {
		t, ok := r.s.tickets[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		if t.Status != from {
			return fmt.Errorf("%s: %w", op, repository.ErrStaleStatus)
		}

		prev := cloneTicket(t)
		stamp := at
		t.Status = to
		switch to {
		case domain.TicketVerified:
			t.VerifiedAt = &stamp
		case domain.TicketUsed:
			t.UsedAt = &stamp
		}
		tx.onRollback(func() { *t = *prev })
		return nil
	})
}

func (r *ticketRepo) ListByOwner(
	ctx context.Context,
	owner string,
	limit, offset int,
) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.read(ctx, func() error {
		var owned []domain.Ticket
		for _, t := range r.s.tickets {
			if t.Owner == owner {
				owned = append(owned, *cloneTicket(t))
			}
		}
		sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
		out = paginate(owned, limit, offset)
		return nil
	})
	return out, err
}

func (r *ticketRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.read(ctx, func() error {
		n = int64(len(r.s.tickets))
		return nil
	})
	return n, err
}
