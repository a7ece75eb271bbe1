package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/tixledger/internal/domain"
)

// Store owns the canonical ledger state. Repos obtained directly from the
// Store run each call on its own; repos handed to RunTx share one atomic
// transaction that either commits fully or leaves no trace.
type Store interface {
	Repos
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
	// View runs fn against one consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}

type Repos interface {
	Events() EventRepository
	Tickets() TicketRepository
	Vouchers() VoucherRepository
	Roles() RoleRepository
	Signers() SignerRepository
	Outbox() OutboxRepository
	Audit() AuditRepository
}

type EventRepository interface {
	Create(ctx context.Context, organizer string, e domain.NewEvent, createdAt time.Time) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Event, error)
	// GetForUpdate locks the event row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Event, error)
	List(ctx context.Context, limit, offset int) ([]domain.Event, error)
	// IncrementSold returns ErrCapacityReached when sold already equals capacity.
	IncrementSold(ctx context.Context, id int64) error
	Close(ctx context.Context, id int64) error
	SoldDrift(ctx context.Context) ([]domain.SoldDrift, error)
}

type TicketRepository interface {
	// Insert returns ErrConflict when uniqueSeat is set and the seat is taken.
	Insert(ctx context.Context, t domain.Ticket, uniqueSeat bool) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Ticket, error)
	SeatTaken(ctx context.Context, eventID int64, seat string) (bool, error)
	// Transition moves a ticket from one status to the next and stamps the
	// matching timestamp. ErrStaleStatus when the stored status is not from.
	Transition(ctx context.Context, id int64, from, to domain.TicketStatus, at time.Time) error
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]domain.Ticket, error)
	Count(ctx context.Context) (int64, error)
}

type VoucherRepository interface {
	// Consume returns ErrConflict if the hash was consumed before.
	Consume(ctx context.Context, hash string, eventID, ticketID int64, at time.Time) error
	Consumed(ctx context.Context, hash string) (bool, error)
}

type RoleRepository interface {
	Grant(ctx context.Context, g domain.Grant) error
	Revoke(ctx context.Context, g domain.Grant) error
	// Has reports whether account holds role for organizer. Grants without
	// an event id cover every event; eventID 0 matches only those.
	Has(ctx context.Context, account string, role domain.Role, organizer string, eventID int64) (bool, error)
}

type SignerRepository interface {
	Add(ctx context.Context, s domain.Signer) error
	Remove(ctx context.Context, organizer, publicKey string) error
	IsRegistered(ctx context.Context, organizer, publicKey string) (bool, error)
	List(ctx context.Context, organizer string) ([]domain.Signer, error)
}

type OutboxRepository interface {
	Append(ctx context.Context, m domain.OutboxMessage) error
	Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type AuditRepository interface {
	Record(ctx context.Context, r domain.VerificationRecord) error
	History(ctx context.Context, ticketID int64, limit int) ([]domain.VerificationRecord, error)
}
