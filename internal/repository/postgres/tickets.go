package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type TicketRepo struct {
	db DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

const ticketColumns = `id, event_id, owner, seat, metadata_uri, status, minted_at, verified_at, used_at`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t      domain.Ticket
		status string
	)
	err := row.Scan(
		&t.ID, &t.EventID, &t.Owner, &t.Seat, &t.MetadataURI,
		&status, &t.MintedAt, &t.VerifiedAt, &t.UsedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	return &t, nil
}

// Insert stores a freshly minted ticket. When uniqueSeat is set the row is
// flagged seat_enforced so the partial unique index on (event_id, seat)
// rejects a second holder of the same seat.
//
// Returns:
//   - int64: the assigned ticket id.
//   - error: repository.ErrConflict if the seat is already taken,
//     repository.ErrNotFound if the event does not exist.
func (r *TicketRepo) Insert(ctx context.Context, t domain.Ticket, uniqueSeat bool) (int64, error) {
	const op = "postgres.TicketRepo.Insert"

	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO tickets(event_id, owner, seat, seat_enforced, metadata_uri, status, minted_at)
		 VALUES (@event, @owner, @seat, @enforced, @uri, @status, @minted)
		 RETURNING id`,
		pgx.NamedArgs{
			"event":    t.EventID,
			"owner":    t.Owner,
			"seat":     t.Seat,
			"enforced": uniqueSeat && t.Seat != "",
			"uri":      t.MetadataURI,
			"status":   string(t.Status),
			"minted":   t.MintedAt,
		},
	).Scan(&id)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *TicketRepo) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.Get"

	t, err := scanTicket(r.db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *TicketRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error) {
	const op = "postgres.TicketRepo.GetForUpdate"

	t, err := scanTicket(r.db.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return t, nil
}

func (r *TicketRepo) SeatTaken(ctx context.Context, eventID int64, seat string) (bool, error) {
	const op = "postgres.TicketRepo.SeatTaken"

	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE event_id = $1 AND seat = $2 AND seat_enforced
		 )`,
		eventID, seat,
	).Scan(&taken)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return taken, nil
}

// Transition advances the ticket status. The WHERE clause on the current
// status makes the update a compare-and-set; a concurrent transition that
// won the race leaves zero affected rows.
//
// Returns:
//   - error: repository.ErrStaleStatus if the stored status is not from,
//     repository.ErrNotFound if the ticket does not exist.
func (r *TicketRepo) Transition(
	ctx context.Context,
	id int64,
	from, to domain.TicketStatus,
	at time.Time,
) error {
	const op = "postgres.TicketRepo.Transition"

	var sql string
	switch to {
	case domain.TicketVerified:
		sql = `UPDATE tickets SET status = $3, verified_at = $4 WHERE id = $1 AND status = $2`
	case domain.TicketUsed:
		sql = `UPDATE tickets SET status = $3, used_at = $4 WHERE id = $1 AND status = $2`
	default:
		return wrapDBErr(op, repository.ErrStaleStatus)
	}

	tag, err := r.db.Exec(ctx, sql, id, string(from), string(to), at)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return wrapDBErr(op, err)
	}

	if !exists {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return wrapDBErr(op, repository.ErrStaleStatus)
}

func (r *TicketRepo) ListByOwner(
	ctx context.Context,
	owner string,
	limit, offset int,
) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByOwner"

	rows, err := r.db.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE owner = $1
		 ORDER BY id
		 LIMIT $2 OFFSET $3`,
		owner, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TicketRepo) Count(ctx context.Context) (int64, error) {
	const op = "postgres.TicketRepo.Count"

	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&n); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}
