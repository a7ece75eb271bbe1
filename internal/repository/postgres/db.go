package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tixledger/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
	db   DB
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		db:   pool,
	}
}

// RunTx runs fn in a serializable read-write transaction. The transaction is
// rolled back when fn fails; commit errors are translated so callers can
// detect serialization failures.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	const op = "postgres.Store.RunTx"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, &Store{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, translateDBErr(err))
	}

	return nil
}

// View runs fn in a read-only repeatable read transaction, so every
// statement sees the same snapshot.
func (s *Store) View(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	const op = "postgres.Store.View"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, &Store{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, translateDBErr(err))
	}

	return nil
}

func (s *Store) Events() repository.EventRepository     { return &EventRepo{db: s.db} }
func (s *Store) Tickets() repository.TicketRepository   { return &TicketRepo{db: s.db} }
func (s *Store) Vouchers() repository.VoucherRepository { return &VoucherRepo{db: s.db} }
func (s *Store) Roles() repository.RoleRepository       { return &RoleRepo{db: s.db} }
func (s *Store) Signers() repository.SignerRepository   { return &SignerRepo{db: s.db} }
func (s *Store) Outbox() repository.OutboxRepository    { return &OutboxRepo{db: s.db} }
func (s *Store) Audit() repository.AuditRepository      { return &AuditRepo{db: s.db} }
