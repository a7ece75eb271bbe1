// Package memory is an in-process implementation of repository.Store.
//
// A single RWMutex guards the whole state. Transactions hold the write lock
// from start to finish and undo their writes on failure, so readers never
// observe a half-applied operation.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

var errReadOnly = errors.New("memory: write inside a read-only view")

type seatKey struct {
	eventID int64
	seat    string
}

type grantKey struct {
	account   string
	role      domain.Role
	organizer string
	eventID   int64
}

type signerKey struct {
	organizer string
	publicKey string
}

type consumedVoucher struct {
	eventID  int64
	ticketID int64
}

type outboxEntry struct {
	msg  domain.OutboxMessage
	sent bool
}

type Store struct {
	mu sync.RWMutex

	nextEventID  int64
	nextTicketID int64
	nextAuditID  int64

	events   map[int64]*domain.Event
	tickets  map[int64]*domain.Ticket
	seats    map[seatKey]int64
	vouchers map[string]consumedVoucher
	grants   map[grantKey]struct{}
	signers  map[signerKey]domain.Signer
	outbox   []*outboxEntry
	audit    []domain.VerificationRecord
}

func New() *Store {
	return &Store{
		events:   make(map[int64]*domain.Event),
		tickets:  make(map[int64]*domain.Ticket),
		seats:    make(map[seatKey]int64),
		vouchers: make(map[string]consumedVoucher),
		grants:   make(map[grantKey]struct{}),
		signers:  make(map[signerKey]domain.Signer),
	}
}

// txn records how to revert every write made inside RunTx.
type txn struct {
	undo []func()
}

func (t *txn) onRollback(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repos{s: s, tx: t}); err != nil {
		t.rollback()
		return err
	}

	return nil
}

// View holds the read lock for the duration of fn. Writes inside fn fail.
func (s *Store) View(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, repos{s: s, view: true})
}

func (s *Store) Events() repository.EventRepository     { return repos{s: s}.Events() }
func (s *Store) Tickets() repository.TicketRepository   { return repos{s: s}.Tickets() }
func (s *Store) Vouchers() repository.VoucherRepository { return repos{s: s}.Vouchers() }
func (s *Store) Roles() repository.RoleRepository       { return repos{s: s}.Roles() }
func (s *Store) Signers() repository.SignerRepository   { return repos{s: s}.Signers() }
func (s *Store) Outbox() repository.OutboxRepository    { return repos{s: s}.Outbox() }
func (s *Store) Audit() repository.AuditRepository      { return repos{s: s}.Audit() }

// repos binds repositories to the store and, inside RunTx, to the running
// transaction. tx == nil and view == false means every call locks on its own.
type repos struct {
	s    *Store
	tx   *txn
	view bool
}

func (r repos) Events() repository.EventRepository     { return &eventRepo{r} }
func (r repos) Tickets() repository.TicketRepository   { return &ticketRepo{r} }
func (r repos) Vouchers() repository.VoucherRepository { return &voucherRepo{r} }
func (r repos) Roles() repository.RoleRepository       { return &roleRepo{r} }
func (r repos) Signers() repository.SignerRepository   { return &signerRepo{r} }
func (r repos) Outbox() repository.OutboxRepository    { return &outboxRepo{r} }
func (r repos) Audit() repository.AuditRepository      { return &auditRepo{r} }

func (r repos) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx == nil && !r.view {
		r.s.mu.RLock()
		defer r.s.mu.RUnlock()
	}
	return fn()
}

func (r repos) write(ctx context.Context, fn func(t *txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r.tx)
	}
	if r.view {
		return errReadOnly
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t := &txn{}
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
