package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type EventRepo struct {
	db DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

const eventColumns = `id, organizer, name, starts_at, venue, price, capacity, sold, enforce_seats, closed, created_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID, &e.Organizer, &e.Name, &e.StartsAt, &e.Venue,
		&e.Price, &e.Capacity, &e.Sold, &e.EnforceSeats, &e.Closed, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts an event and returns its id.
//
// Returns:
//   - int64: the assigned event id.
//   - error: repository.ErrConflict on a uniqueness violation.
func (r *EventRepo) Create(
	ctx context.Context,
	organizer string,
	e domain.NewEvent,
	createdAt time.Time,
) (int64, error) {
	const op = "postgres.EventRepo.Create"

	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO events(organizer, name, starts_at, venue, price, capacity, enforce_seats, created_at)
		 VALUES (@organizer, @name, @starts, @venue, @price, @capacity, @enforce, @created)
		 RETURNING id`,
		pgx.NamedArgs{
			"organizer": organizer,
			"name":      e.Name,
			"starts":    e.StartsAt,
			"venue":     e.Venue,
			"price":     e.Price,
			"capacity":  e.Capacity,
			"enforce":   e.EnforceSeats,
			"created":   createdAt,
		},
	).Scan(&id)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// Get retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.EventRepo.Get"

	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

// GetForUpdate is Get with a row lock held until the transaction ends.
// Concurrent mints against one event queue up here.
func (r *EventRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.EventRepo.GetForUpdate"

	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return e, nil
}

func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.EventRepo.List"

	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY starts_at, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// IncrementSold bumps the sold counter by one.
//
// Returns:
//   - error: repository.ErrCapacityReached if sold already equals capacity.
func (r *EventRepo) IncrementSold(ctx context.Context, id int64) error {
	const op = "postgres.EventRepo.IncrementSold"

	tag, err := r.db.Exec(ctx,
		`UPDATE events SET sold = sold + 1
		 WHERE id = $1 AND sold < capacity`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrCapacityReached)
	}

	return nil
}

func (r *EventRepo) Close(ctx context.Context, id int64) error {
	const op = "postgres.EventRepo.Close"

	tag, err := r.db.Exec(ctx, `UPDATE events SET closed = TRUE WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *EventRepo) SoldDrift(ctx context.Context) ([]domain.SoldDrift, error) {
	const op = "postgres.EventRepo.SoldDrift"

	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.sold, COUNT(t.id)
		 FROM events e
		 LEFT JOIN tickets t ON t.event_id = e.id
		 GROUP BY e.id, e.sold
		 HAVING e.sold <> COUNT(t.id)
		 ORDER BY e.id`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.SoldDrift
	for rows.Next() {
		var d domain.SoldDrift
		if err := rows.Scan(&d.EventID, &d.Sold, &d.Tickets); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, d)
	}

	return out, wrapDBErr(op, rows.Err())
}
