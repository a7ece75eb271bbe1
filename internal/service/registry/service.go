package registry

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

type Config struct {
	// RejectPastStart refuses events whose start time already passed.
	RejectPastStart bool
	EventCacheTTL   time.Duration
	MaxPageSize     int
}

type Service struct {
	store   repository.Store
	cache   *redisrepo.Cache
	uow     *uow.UoW
	clock   clock.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	clk clock.Clock,
	log *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.EventCacheTTL <= 0 {
		cfg.EventCacheTTL = 30 * time.Second
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	return &Service{
		store:   store,
		cache:   cache,
		uow:     uow.NewUoW(store),
		clock:   clk,
		log:     log,
		metrics: m,
		cfg:     cfg,
	}
}

func (s *Service) validate(e domain.NewEvent) error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidParameters)
	case e.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", domain.ErrInvalidParameters)
	case e.Price < 0:
		return fmt.Errorf("%w: price must not be negative", domain.ErrInvalidParameters)
	case e.StartsAt.IsZero():
		return fmt.Errorf("%w: start time is required", domain.ErrInvalidParameters)
	case s.cfg.RejectPastStart && !e.StartsAt.After(s.clock.Now()):
		return fmt.Errorf("%w: start time is in the past", domain.ErrInvalidParameters)
	}
	return nil
}

// CreateEvent registers a new event owned by caller.
//
// Parameters:
//   - ctx: request-scoped context.
//   - caller: account creating the event; becomes its organizer.
//   - e: event attributes.
//
// Returns:
//   - int64: the new event id.
//   - error: domain.ErrUnauthorized if caller may not organize events.
//   - error: domain.ErrInvalidParameters if e is malformed.
func (s *Service) CreateEvent(ctx context.Context, caller string, e domain.NewEvent) (int64, error) {
	const op = "service.registry.CreateEvent"

	if err := s.validate(e); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var id int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		ok, err := access.CanOrganize(ctx, tx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUnauthorized
		}

		now := s.clock.Now()

		id, err = tx.Events().Create(ctx, caller, e, now)
		if err != nil {
			return err
		}

		msg, err := outbox.EventMessage(domain.MessageEventCreated, domain.Event{
			ID:        id,
			Organizer: caller,
			Name:      e.Name,
			Capacity:  e.Capacity,
			Price:     e.Price,
		}, now)
		if err != nil {
			return err
		}

		return tx.Outbox().Append(ctx, msg)
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("event created",
		slog.Int64("event_id", id),
		slog.String("organizer", caller),
		slog.Int64("capacity", e.Capacity),
	)

	return id, nil
}

// GetEvent returns the event with the given id.
//
// Returns:
//   - error: domain.ErrNotFound if no such event exists.
func (s *Service) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	const op = "service.registry.GetEvent"

	load := func(ctx context.Context) (domain.Event, error) {
		e, err := s.store.Events().Get(ctx, id)
		if err != nil {
			return domain.Event{}, mapRepoErr(err)
		}
		return *e, nil
	}

	var (
		e   domain.Event
		err error
	)
	if s.cache != nil {
		e, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyEvent(id), s.cfg.EventCacheTTL, load)
	} else {
		e, err = load(ctx)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "service.registry.ListEvents"

	if limit <= 0 || limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.store.Events().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// CloseEvent stops further minting for an event. Only the organizer may
// close it; closing twice is a no-op.
//
// Returns:
//   - error: domain.ErrNotFound if the event does not exist.
//   - error: domain.ErrUnauthorized if caller is not the organizer.
func (s *Service) CloseEvent(ctx context.Context, caller string, id int64) error {
	const op = "service.registry.CloseEvent"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		e, err := tx.Events().GetForUpdate(ctx, id)
		if err != nil {
			return mapRepoErr(err)
		}

		if e.Organizer != caller {
			return domain.ErrUnauthorized
		}

		if e.Closed {
			return nil
		}

		if err := tx.Events().Close(ctx, id); err != nil {
			return mapRepoErr(err)
		}

		e.Closed = true
		msg, err := outbox.EventMessage(domain.MessageEventClosed, *e, s.clock.Now())
		if err != nil {
			return err
		}
		if err := tx.Outbox().Append(ctx, msg); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.invalidate(ctx, id)
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("event closed", slog.Int64("event_id", id))

	return nil
}

func (s *Service) invalidate(ctx context.Context, eventID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
		s.log.Warn("failed to invalidate event cache",
			slog.Int64("event_id", eventID),
			sl.Err(err),
		)
	}
}

// mapRepoErr converts storage errors into the domain taxonomy.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	default:
		return err
	}
}

// canonicalAccount rewrites an account that parses as a public key into the
// form login tokens carry: lowercase hex without 0x. Opaque ids are kept
// as written apart from surrounding spaces.
func canonicalAccount(account string) string {
	account = strings.TrimSpace(account)
	if k, err := voucher.NormalizeKey(account); err == nil {
		return k
	}
	return account
}

func normalizeKey(key string) (string, error) {
	k, err := voucher.NormalizeKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
	}
	return k, nil
}
