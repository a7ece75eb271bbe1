package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type eventRepo struct{ repos }

func (r *eventRepo) Create(
	ctx context.Context,
	organizer string,
	e domain.NewEvent,
	createdAt time.Time,
) (int64, error) {
	var id int64
	err := r.write(ctx, func(t *txn) error {
		r.s.nextEventID++
		id = r.s.nextEventID
		r.s.events[id] = &domain.Event{
			ID:           id,
			Organizer:    organizer,
			Name:         e.Name,
			StartsAt:     e.StartsAt,
			Venue:        e.Venue,
			Price:        e.Price,
			Capacity:     e.Capacity,
			EnforceSeats: e.EnforceSeats,
			CreatedAt:    createdAt,
		}
		t.onRollback(func() { delete(r.s.events, id) })
		return nil
	})
	return id, err
}

func (r *eventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "memory.eventRepo.Get"

	var out domain.Event
	err := r.read(ctx, func() error {
		e, ok := r.s.events[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		out = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no extra locking: inside RunTx the write lock is held.
func (r *eventRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r *eventRepo) List(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	var out []domain.Event
	err := r.read(ctx, func() error {
		all := make([]domain.Event, 0, len(r.s.events))
		for _, e := range r.s.events {
			all = append(all, *e)
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].StartsAt.Equal(all[j].StartsAt) {
				return all[i].ID < all[j].ID
			}
			return all[i].StartsAt.Before(all[j].StartsAt)
		})
		out = paginate(all, limit, offset)
		return nil
	})
	return out, err
}

func (r *eventRepo) IncrementSold(ctx context.Context, id int64) error {
	const op = "memory.eventRepo.IncrementSold"

	return r.write(ctx, func(t *txn) error {
		e, ok := r.s.events[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		if e.Sold >= e.Capacity {
			return fmt.Errorf("%s: %w", op, repository.ErrCapacityReached)
		}
		e.Sold++
		t.onRollback(func() { e.Sold-- })
		return nil
	})
}

func (r *eventRepo) Close(ctx context.Context, id int64) error {
	const op = "memory.eventRepo.Close"

	return r.write(ctx, func(t *txn) error {
		e, ok := r.s.events[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		prev := e.Closed
		e.Closed = true
		t.onRollback(func() { e.Closed = prev })
		return nil
	})
}

func (r *eventRepo) SoldDrift(ctx context.Context) ([]domain.SoldDrift, error) {
	var out []domain.SoldDrift
	err := r.read(ctx, func() error {
		counts := make(map[int64]int64, len(r.s.events))
		for _, t := range r.s.tickets {
			counts[t.EventID]++
		}
		for id, e := range r.s.events {
			if counts[id] != e.Sold {
				out = append(out, domain.SoldDrift{EventID: id, Sold: e.Sold, Tickets: counts[id]})
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
		return nil
	})
	return out, err
}
