package postgres

import (
	"context"
	"time"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type VoucherRepo struct {
	db DB
}

func (r *VoucherRepo) With(db DB) *VoucherRepo {
	cp := *r
	cp.db = db
	return &cp
}

// Consume records a voucher hash as spent. The primary key on hash is the
// single-use guarantee.
func (r *VoucherRepo) Consume(
	ctx context.Context,
	hash string,
	eventID, ticketID int64,
	at time.Time,
) error {
	const op = "postgres.VoucherRepo.Consume"

	_, err := r.db.Exec(ctx,
		`INSERT INTO consumed_vouchers(hash, event_id, ticket_id, consumed_at)
		 VALUES ($1, $2, $3, $4)`,
		hash, eventID, ticketID, at,
	)

	return wrapDBErr(op, err)
}

func (r *VoucherRepo) Consumed(ctx context.Context, hash string) (bool, error) {
	const op = "postgres.VoucherRepo.Consumed"

	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consumed_vouchers WHERE hash = $1)`,
		hash,
	).Scan(&ok)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

type RoleRepo struct {
	db DB
}

func (r *RoleRepo) With(db DB) *RoleRepo {
	cp := *r
	cp.db = db
	return &cp
}

// scope maps an optional event id to the stored column value; 0 means the
// grant covers every event of the organizer.
func scope(eventID *int64) int64 {
	if eventID == nil {
		return 0
	}
	return *eventID
}

func (r *RoleRepo) Grant(ctx context.Context, g domain.Grant) error {
	const op = "postgres.RoleRepo.Grant"

	_, err := r.db.Exec(ctx,
		`INSERT INTO role_grants(account, role, organizer, event_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account, role, organizer, event_id) DO NOTHING`,
		g.Account, string(g.Role), g.Organizer, scope(g.EventID),
	)

	return wrapDBErr(op, err)
}

func (r *RoleRepo) Revoke(ctx context.Context, g domain.Grant) error {
	const op = "postgres.RoleRepo.Revoke"

	tag, err := r.db.Exec(ctx,
		`DELETE FROM role_grants
		 WHERE account = $1 AND role = $2 AND organizer = $3 AND event_id = $4`,
		g.Account, string(g.Role), g.Organizer, scope(g.EventID),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *RoleRepo) Has(
	ctx context.Context,
	account string,
	role domain.Role,
	organizer string,
	eventID int64,
) (bool, error) {
	const op = "postgres.RoleRepo.Has"

	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM role_grants
			WHERE account = $1 AND role = $2 AND organizer = $3
			  AND (event_id = 0 OR ($4 <> 0 AND event_id = $4))
		 )`,
		account, string(role), organizer, eventID,
	).Scan(&ok)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

type SignerRepo struct {
	db DB
}

func (r *SignerRepo) With(db DB) *SignerRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SignerRepo) Add(ctx context.Context, s domain.Signer) error {
	const op = "postgres.SignerRepo.Add"

	_, err := r.db.Exec(ctx,
		`INSERT INTO signers(organizer, public_key, added_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (organizer, public_key) DO NOTHING`,
		s.Organizer, s.PublicKey, s.AddedAt,
	)

	return wrapDBErr(op, err)
}

func (r *SignerRepo) Remove(ctx context.Context, organizer, publicKey string) error {
	const op = "postgres.SignerRepo.Remove"

	tag, err := r.db.Exec(ctx,
		`DELETE FROM signers WHERE organizer = $1 AND public_key = $2`,
		organizer, publicKey,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *SignerRepo) IsRegistered(ctx context.Context, organizer, publicKey string) (bool, error) {
	const op = "postgres.SignerRepo.IsRegistered"

	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM signers WHERE organizer = $1 AND public_key = $2)`,
		organizer, publicKey,
	).Scan(&ok)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

func (r *SignerRepo) List(ctx context.Context, organizer string) ([]domain.Signer, error) {
	const op = "postgres.SignerRepo.List"

	rows, err := r.db.Query(ctx,
		`SELECT organizer, public_key, added_at
		 FROM signers
		 WHERE organizer = $1
		 ORDER BY public_key`,
		organizer,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Signer
	for rows.Next() {
		var s domain.Signer
		if err := rows.Scan(&s.Organizer, &s.PublicKey, &s.AddedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}

	return out, wrapDBErr(op, rows.Err())
}
