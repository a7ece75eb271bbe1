package postgres

import (
	"context"
	"time"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type OutboxRepo struct {
	db DB
}

func (r *OutboxRepo) With(db DB) *OutboxRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *OutboxRepo) Append(ctx context.Context, m domain.OutboxMessage) error {
	const op = "postgres.OutboxRepo.Append"

	_, err := r.db.Exec(ctx,
		`INSERT INTO outbox(id, type, key, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Type, m.Key, m.Payload, m.CreatedAt,
	)

	return wrapDBErr(op, err)
}

// Pending returns unsent messages in insertion order. SKIP LOCKED lets
// several sender replicas drain the table without double delivery inside
// one transaction.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	const op = "postgres.OutboxRepo.Pending"

	rows, err := r.db.Query(ctx,
		`SELECT id, type, key, payload, created_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY seq
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Type, &m.Key, &m.Payload, &m.CreatedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, m)
	}

	return out, wrapDBErr(op, rows.Err())
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	const op = "postgres.OutboxRepo.MarkSent"

	tag, err := r.db.Exec(ctx,
		`UPDATE outbox SET sent_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

type AuditRepo struct {
	db DB
}

func (r *AuditRepo) With(db DB) *AuditRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AuditRepo) Record(ctx context.Context, rec domain.VerificationRecord) error {
	const op = "postgres.AuditRepo.Record"

	_, err := r.db.Exec(ctx,
		`INSERT INTO verification_logs(ticket_id, action, caller, outcome, at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.TicketID, string(rec.Action), rec.Caller, rec.Outcome, rec.At,
	)

	return wrapDBErr(op, err)
}

// History returns the newest records first.
func (r *AuditRepo) History(
	ctx context.Context,
	ticketID int64,
	limit int,
) ([]domain.VerificationRecord, error) {
	const op = "postgres.AuditRepo.History"

	rows, err := r.db.Query(ctx,
		`SELECT id, ticket_id, action, caller, outcome, at
		 FROM verification_logs
		 WHERE ticket_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		ticketID, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.VerificationRecord
	for rows.Next() {
		var (
			rec    domain.VerificationRecord
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.TicketID, &action, &rec.Caller, &rec.Outcome, &rec.At); err != nil {
			return nil, wrapDBErr(op, err)
		}
		rec.Action = domain.VerificationAction(action)
		out = append(out, rec)
	}

	return out, wrapDBErr(op, rows.Err())
}
