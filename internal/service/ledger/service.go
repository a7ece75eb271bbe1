package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/lib/logger/sl"
	"github.com/kirinyoku/tixledger/internal/metrics"
	"github.com/kirinyoku/tixledger/internal/outbox"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
	"github.com/kirinyoku/tixledger/internal/repository"
	redisrepo "github.com/kirinyoku/tixledger/internal/repository/redis"
	"github.com/kirinyoku/tixledger/internal/service/access"
	"github.com/kirinyoku/tixledger/internal/uow"
	"github.com/kirinyoku/tixledger/internal/voucher"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type ChangePublisher interface {
	Publish(ctx context.Context, c redisx.TicketChange) error
}

type Config struct {
	SupplyCacheTTL time.Duration
	MaxPageSize    int
}

type Service struct {
	store     repository.Store
	cache     *redisrepo.Cache
	limiter   RateLimiter
	publisher ChangePublisher
	uow       *uow.UoW
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	limiter RateLimiter,
	publisher ChangePublisher,
	clk clock.Clock,
	log *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.SupplyCacheTTL <= 0 {
		cfg.SupplyCacheTTL = 5 * time.Second
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	return &Service{
		store:     store,
		cache:     cache,
		limiter:   limiter,
		publisher: publisher,
		uow:       uow.NewUoW(store),
		clock:     clk,
		log:       log,
		metrics:   m,
		cfg:       cfg,
	}
}

// Mint issues a new ticket.
//
// The event row is locked for the whole transaction, so the capacity check,
// the seat check, the voucher consumption and the sold increment observe and
// produce one consistent state. A voucher proof is authoritative for the
// recipient and the seat.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: mint request carrying the authorization.
//   - rlKey: rate limit bucket, usually the client address; empty skips
//     rate limiting.
//
// Returns:
//   - int64: the new ticket id.
//   - error: domain.ErrNotFound, domain.ErrEventClosed,
//     domain.ErrCapacityExceeded, domain.ErrSeatTaken,
//     domain.ErrUnauthorized, domain.ErrInvalidSignature,
//     domain.ErrExpiredVoucher, domain.ErrVoucherAlreadyUsed,
//     domain.ErrInvalidParameters or domain.ErrRateLimited.
func (s *Service) Mint(ctx context.Context, req domain.MintRequest, rlKey string) (int64, error) {
	const op = "service.ledger.Mint"

	id, err := s.mint(ctx, req, rlKey)
	if err != nil {
		s.metrics.MintRejected(domain.Kind(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Service) mint(ctx context.Context, req domain.MintRequest, rlKey string) (int64, error) {
	if err := s.allow(ctx, rlKey); err != nil {
		return 0, err
	}

	var (
		hash     string
		caller   string
		authKind string
	)

	switch a := req.Authorization.(type) {
	case domain.MinterProof:
		caller = a.Caller
		authKind = "minter"
		if strings.TrimSpace(req.Recipient) == "" {
			return 0, fmt.Errorf("%w: recipient is required", domain.ErrInvalidParameters)
		}
	case domain.VoucherProof:
		authKind = "voucher"
		if req.EventID != 0 && req.EventID != a.Voucher.EventID {
			return 0, fmt.Errorf("%w: voucher is for event %d", domain.ErrInvalidParameters, a.Voucher.EventID)
		}
		h, err := voucher.Verify(a.Voucher, a.Signature)
		if err != nil {
			return 0, err
		}
		hash = h.String()
		req.EventID = a.Voucher.EventID
		req.Recipient = a.Voucher.Recipient
		req.Seat = a.Voucher.Seat
	default:
		return 0, fmt.Errorf("%w: missing authorization", domain.ErrUnauthorized)
	}

	var ticket domain.Ticket

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		ev, err := tx.Events().GetForUpdate(ctx, req.EventID)
		if err != nil {
			return mapRepoErr(err)
		}

		if hash != "" {
			if err := s.notConsumed(ctx, tx, hash); err != nil {
				return err
			}
		}

		if ev.Closed {
			return domain.ErrEventClosed
		}

		if ev.Sold >= ev.Capacity {
			return domain.ErrCapacityExceeded
		}

		if err := s.authorize(ctx, tx, ev, req.Authorization); err != nil {
			return err
		}

		if ev.EnforceSeats {
			if req.Seat == "" {
				return fmt.Errorf("%w: event %d requires a seat", domain.ErrInvalidParameters, ev.ID)
			}
			taken, err := tx.Tickets().SeatTaken(ctx, ev.ID, req.Seat)
			if err != nil {
				return err
			}
			if taken {
				return domain.ErrSeatTaken
			}
		}

		now := s.clock.Now()
		ticket = domain.Ticket{
			EventID:     ev.ID,
			Owner:       req.Recipient,
			Seat:        req.Seat,
			MetadataURI: req.MetadataURI,
			Status:      domain.TicketMinted,
			MintedAt:    now,
		}

		ticket.ID, err = tx.Tickets().Insert(ctx, ticket, ev.EnforceSeats)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.ErrSeatTaken
			}
			return mapRepoErr(err)
		}

		if hash != "" {
			if err := tx.Vouchers().Consume(ctx, hash, ev.ID, ticket.ID, now); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return domain.ErrVoucherAlreadyUsed
				}
				return err
			}
		}

		if err := tx.Events().IncrementSold(ctx, ev.ID); err != nil {
			if errors.Is(err, repository.ErrCapacityReached) {
				return domain.ErrCapacityExceeded
			}
			return mapRepoErr(err)
		}

		msg, err := outbox.TicketMessage(domain.MessageTicketMinted, ticket, caller, now)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Append(ctx, msg); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.committed(ctx, ticket)
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.TicketMinted(authKind)
	s.log.Info("ticket minted",
		slog.Int64("ticket_id", ticket.ID),
		slog.Int64("event_id", ticket.EventID),
		slog.String("owner", ticket.Owner),
		slog.String("authorization", authKind),
	)

	return ticket.ID, nil
}

// authorize runs the authorization checks that depend on ledger state.
// Voucher signatures were already verified before the transaction started.
func (s *Service) authorize(ctx context.Context, tx repository.Repos, ev *domain.Event, auth domain.Authorization) error {
	switch a := auth.(type) {
	case domain.MinterProof:
		ok, err := access.IsMinter(ctx, tx, a.Caller, ev)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUnauthorized
		}
		return nil

	case domain.VoucherProof:
		_, err := s.checkVoucher(ctx, tx, ev, a.Voucher)
		return err

	default:
		return domain.ErrUnauthorized
	}
}

// checkVoucher validates a signature-checked voucher against the ledger and
// returns its hash.
func (s *Service) checkVoucher(ctx context.Context, r repository.Repos, ev *domain.Event, v domain.Voucher) (string, error) {
	h, err := voucher.Digest(v)
	if err != nil {
		return "", err
	}

	if err := s.notConsumed(ctx, r, h.String()); err != nil {
		return "", err
	}

	signer, err := voucher.NormalizeKey(v.Signer)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	registered, err := r.Signers().IsRegistered(ctx, ev.Organizer, signer)
	if err != nil {
		return "", err
	}
	if !registered {
		return "", fmt.Errorf("%w: signer is not registered for the organizer", domain.ErrInvalidSignature)
	}

	if v.Expired(s.clock.Now()) {
		return "", domain.ErrExpiredVoucher
	}

	if v.Price != ev.Price {
		return "", fmt.Errorf("%w: voucher price %d does not match event price %d",
			domain.ErrInvalidParameters, v.Price, ev.Price)
	}

	return h.String(), nil
}

// notConsumed fails with domain.ErrVoucherAlreadyUsed once a voucher hash has
// been spent. It runs ahead of every other ledger check.
func (s *Service) notConsumed(ctx context.Context, r repository.Repos, hash string) error {
	consumed, err := r.Vouchers().Consumed(ctx, hash)
	if err != nil {
		return err
	}
	if consumed {
		return domain.ErrVoucherAlreadyUsed
	}
	return nil
}

// VerifyVoucher checks a voucher without consuming it. A successful result
// is advisory; the voucher may still be consumed by a concurrent mint.
//
// Returns:
//   - error: domain.ErrInvalidSignature, domain.ErrExpiredVoucher,
//     domain.ErrVoucherAlreadyUsed, domain.ErrNotFound or
//     domain.ErrInvalidParameters.
func (s *Service) VerifyVoucher(ctx context.Context, v domain.Voucher, sig []byte) (domain.AuthorizationResult, error) {
	const op = "service.ledger.VerifyVoucher"

	if _, err := voucher.Verify(v, sig); err != nil {
		return domain.AuthorizationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	ev, err := s.store.Events().Get(ctx, v.EventID)
	if err != nil {
		return domain.AuthorizationResult{}, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	hash, err := s.checkVoucher(ctx, s.store, ev, v)
	if err != nil {
		return domain.AuthorizationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	return domain.AuthorizationResult{
		Hash:   hash,
		Event:  *ev,
		Signer: v.Signer,
	}, nil
}

// GetTicket returns a ticket by id.
//
// Returns:
//   - error: domain.ErrNotFound if the id was never minted.
func (s *Service) GetTicket(ctx context.Context, id int64) (domain.Ticket, error) {
	const op = "service.ledger.GetTicket"

	t, err := s.store.Tickets().Get(ctx, id)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	return *t, nil
}

func (s *Service) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]domain.Ticket, error) {
	const op = "service.ledger.ListByOwner"

	if limit <= 0 || limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	tickets, err := s.store.Tickets().ListByOwner(ctx, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tickets, nil
}

// TotalSupply returns the number of tickets ever minted.
func (s *Service) TotalSupply(ctx context.Context) (int64, error) {
	const op = "service.ledger.TotalSupply"

	load := func(ctx context.Context) (int64, error) {
		return s.store.Tickets().Count(ctx)
	}

	var (
		n   int64
		err error
	)
	if s.cache != nil {
		n, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeySupply(), s.cfg.SupplyCacheTTL, load)
	} else {
		n, err = load(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Service) allow(ctx context.Context, rlKey string) error {
	if s.limiter == nil || rlKey == "" {
		return nil
	}

	ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: retry in %s", domain.ErrRateLimited, retry)
	}

	return nil
}

func (s *Service) committed(ctx context.Context, t domain.Ticket) {
	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, t.EventID); err != nil {
			s.log.Warn("failed to invalidate event cache", slog.Int64("event_id", t.EventID), sl.Err(err))
		}
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, redisx.TicketChange{
			Type:     domain.MessageTicketMinted,
			EventID:  t.EventID,
			TicketID: t.ID,
			Status:   string(t.Status),
			TsUnix:   t.MintedAt.Unix(),
		})
		if err != nil {
			s.log.Warn("failed to publish ticket change", slog.Int64("ticket_id", t.ID), sl.Err(err))
		}
	}
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	default:
		return err
	}
}
