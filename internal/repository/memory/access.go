package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

type voucherRepo struct{ repos }

func (r *voucherRepo) Consume(
	ctx context.Context,
	hash string,
	eventID, ticketID int64,
	_ time.Time,
) error {
	const op = "memory.voucherRepo.Consume"

	return r.write(ctx, func(t *txn) error {
		if _, ok := r.s.vouchers[hash]; ok {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		r.s.vouchers[hash] = consumedVoucher{eventID: eventID, ticketID: ticketID}
		t.onRollback(func() { delete(r.s.vouchers, hash) })
		return nil
	})
}

func (r *voucherRepo) Consumed(ctx context.Context, hash string) (bool, error) {
	var ok bool
	err := r.read(ctx, func() error {
		_, ok = r.s.vouchers[hash]
		return nil
	})
	return ok, err
}

type roleRepo struct{ repos }

func keyOf(g domain.Grant) grantKey {
	k := grantKey{account: g.Account, role: g.Role, organizer: g.Organizer}
	if g.EventID != nil {
		k.eventID = *g.EventID
	}
	return k
}

func (r *roleRepo) Grant(ctx context.Context, g domain.Grant) error {
	return r.write(ctx, func(t *txn) error {
		k := keyOf(g)
		if _, ok := r.s.grants[k]; ok {
			return nil
		}
		r.s.grants[k] = struct{}{}
		t.onRollback(func() { delete(r.s.grants, k) })
		return nil
	})
}

func (r *roleRepo) Revoke(ctx context.Context, g domain.Grant) error {
	const op = "memory.roleRepo.Revoke"

	return r.write(ctx, func(t *txn) error {
		k := keyOf(g)
		if _, ok := r.s.grants[k]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		delete(r.s.grants, k)
		t.onRollback(func() { r.s.grants[k] = struct{}{} })
		return nil
	})
}

func (r *roleRepo) Has(
	ctx context.Context,
	account string,
	role domain.Role,
	organizer string,
	eventID int64,
) (bool, error) {
	var ok bool
	err := r.read(ctx, func() error {
		k := grantKey{account: account, role: role, organizer: organizer}
		if _, ok = r.s.grants[k]; ok || eventID == 0 {
			return nil
		}
		k.eventID = eventID
		_, ok = r.s.grants[k]
		return nil
	})
	return ok, err
}

type signerRepo struct{ repos }

func (r *signerRepo) Add(ctx context.Context, s domain.Signer) error {
	return r.write(ctx, func(t *txn) error {
		k := signerKey{organizer: s.Organizer, publicKey: s.PublicKey}
		if _, ok := r.s.signers[k]; ok {
			return nil
		}
		r.s.signers[k] = s
		t.onRollback(func() { delete(r.s.signers, k) })
		return nil
	})
}

func (r *signerRepo) Remove(ctx context.Context, organizer, publicKey string) error {
	const op = "memory.signerRepo.Remove"

	return r.write(ctx, func(t *txn) error {
		k := signerKey{organizer: organizer, publicKey: publicKey}
		prev, ok := r.s.signers[k]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		delete(r.s.signers, k)
		t.onRollback(func() { r.s.signers[k] = prev })
		return nil
	})
}

func (r *signerRepo) IsRegistered(ctx context.Context, organizer, publicKey string) (bool, error) {
	var ok bool
	err := r.read(ctx, func() error {
		_, ok = r.s.signers[signerKey{organizer: organizer, publicKey: publicKey}]
		return nil
	})
	return ok, err
}

func (r *signerRepo) List(ctx context.Context, organizer string) ([]domain.Signer, error) {
	var out []domain.Signer
	err := r.read(ctx, func() error {
		for k, s := range r.s.signers {
			if k.organizer == organizer {
				out = append(out, s)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
		return nil
	})
	return out, err
}

type outboxRepo struct{ repos }

func (r *outboxRepo) Append(ctx context.Context, m domain.OutboxMessage) error {
	return r.write(ctx, func(t *txn) error {
		r.s.outbox = append(r.s.outbox, &outboxEntry{msg: m})
		n := len(r.s.outbox)
		t.onRollback(func() { r.s.outbox = r.s.outbox[:n-1] })
		return nil
	})
}

func (r *outboxRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := r.read(ctx, func() error {
		for _, e := range r.s.outbox {
			if e.sent {
				continue
			}
			out = append(out, e.msg)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) MarkSent(ctx context.Context, id string, _ time.Time) error {
	const op = "memory.outboxRepo.MarkSent"

	return r.write(ctx, func(t *txn) error {
		for _, e := range r.s.outbox {
			if e.msg.ID == id {
				prev := e.sent
				e.sent = true
				t.onRollback(func() { e.sent = prev })
				return nil
			}
		}
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	})
}

type auditRepo struct{ repos }

func (r *auditRepo) Record(ctx context.Context, rec domain.VerificationRecord) error {
	return r.write(ctx, func(t *txn) error {
		r.s.nextAuditID++
		rec.ID = r.s.nextAuditID
		r.s.audit = append(r.s.audit, rec)
		n := len(r.s.audit)
		t.onRollback(func() { r.s.audit = r.s.audit[:n-1] })
		return nil
	})
}

func (r *auditRepo) History(
	ctx context.Context,
	ticketID int64,
	limit int,
) ([]domain.VerificationRecord, error) {
	var out []domain.VerificationRecord
	err := r.read(ctx, func() error {
		for i := len(r.s.audit) - 1; i >= 0; i-- {
			if r.s.audit[i].TicketID != ticketID {
				continue
			}
			out = append(out, r.s.audit[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}
