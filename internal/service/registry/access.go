package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
	"github.com/kirinyoku/tixledger/internal/service/access"
	"github.com/kirinyoku/tixledger/internal/uow"
)

// authorizeGrant checks that caller may hand out g and returns the grant
// with its organizer scope filled in.
//
// Admins grant the global admin and organizer roles. Organizers grant
// minter and operator roles scoped to themselves; an admin may do so on
// behalf of any organizer. Only operator grants may be narrowed to a single
// event, which must belong to the scoping organizer.
func authorizeGrant(ctx context.Context, tx repository.Repos, caller string, g domain.Grant) (domain.Grant, error) {
	g.Account = canonicalAccount(g.Account)
	g.Organizer = canonicalAccount(g.Organizer)

	if !g.Role.Valid() || g.Account == "" {
		return g, fmt.Errorf("%w: account and a known role are required", domain.ErrInvalidParameters)
	}

	isAdmin, err := access.IsAdmin(ctx, tx, caller)
	if err != nil {
		return g, err
	}

	switch g.Role {
	case domain.RoleAdmin, domain.RoleOrganizer:
		if !isAdmin {
			return g, domain.ErrUnauthorized
		}
		if g.EventID != nil {
			return g, fmt.Errorf("%w: %s is a global role", domain.ErrInvalidParameters, g.Role)
		}
		g.Organizer = ""
		return g, nil
	}

	switch {
	case isAdmin && g.Organizer != "":
	case g.Organizer == "" || g.Organizer == caller:
		ok, err := access.CanOrganize(ctx, tx, caller)
		if err != nil {
			return g, err
		}
		if !ok {
			return g, domain.ErrUnauthorized
		}
		g.Organizer = caller
	default:
		return g, domain.ErrUnauthorized
	}

	if g.EventID != nil {
		if g.Role != domain.RoleOperator {
			return g, fmt.Errorf("%w: only operator grants can be event scoped", domain.ErrInvalidParameters)
		}
		e, err := tx.Events().Get(ctx, *g.EventID)
		if err != nil {
			return g, mapRepoErr(err)
		}
		if e.Organizer != g.Organizer {
			return g, domain.ErrUnauthorized
		}
	}

	return g, nil
}

// GrantRole adds a role grant. Granting an existing role is a no-op.
//
// Returns:
//   - error: domain.ErrUnauthorized if caller may not issue the grant.
//   - error: domain.ErrInvalidParameters if the grant is malformed.
func (s *Service) GrantRole(ctx context.Context, caller string, g domain.Grant) error {
	const op = "service.registry.GrantRole"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		scoped, err := authorizeGrant(ctx, tx, caller, g)
		if err != nil {
			return err
		}
		g = scoped
		return tx.Roles().Grant(ctx, g)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("role granted",
		slog.String("account", g.Account),
		slog.String("role", string(g.Role)),
		slog.String("organizer", g.Organizer),
		slog.String("by", caller),
	)

	return nil
}

// RevokeRole removes a role grant.
//
// Returns:
//   - error: domain.ErrNotFound if the grant does not exist.
func (s *Service) RevokeRole(ctx context.Context, caller string, g domain.Grant) error {
	const op = "service.registry.RevokeRole"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		scoped, err := authorizeGrant(ctx, tx, caller, g)
		if err != nil {
			return err
		}
		g = scoped
		return mapRepoErr(tx.Roles().Revoke(ctx, g))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("role revoked",
		slog.String("account", g.Account),
		slog.String("role", string(g.Role)),
		slog.String("organizer", g.Organizer),
		slog.String("by", caller),
	)

	return nil
}

// RegisterSigner adds a voucher signing key for the caller's events.
//
// Returns:
//   - string: the normalized hex public key.
//   - error: domain.ErrUnauthorized if caller is not an organizer.
//   - error: domain.ErrInvalidParameters if the key is malformed.
func (s *Service) RegisterSigner(ctx context.Context, caller, publicKey string) (string, error) {
	const op = "service.registry.RegisterSigner"

	key, err := normalizeKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		ok, err := access.CanOrganize(ctx, tx, caller)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrUnauthorized
		}

		return tx.Signers().Add(ctx, domain.Signer{
			Organizer: caller,
			PublicKey: key,
			AddedAt:   s.clock.Now(),
		})
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("signer registered", slog.String("organizer", caller), slog.String("public_key", key))

	return key, nil
}

// RevokeSigner removes a signing key. Vouchers it signed stop verifying.
func (s *Service) RevokeSigner(ctx context.Context, caller, publicKey string) error {
	const op = "service.registry.RevokeSigner"

	key, err := normalizeKey(publicKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.Signers().Remove(ctx, caller, key); err != nil {
		return fmt.Errorf("%s: %w", op, mapRepoErr(err))
	}

	s.log.Info("signer revoked", slog.String("organizer", caller), slog.String("public_key", key))

	return nil
}

func (s *Service) ListSigners(ctx context.Context, organizer string) ([]domain.Signer, error) {
	const op = "service.registry.ListSigners"

	signers, err := s.store.Signers().List(ctx, canonicalAccount(organizer))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return signers, nil
}

// Bootstrap applies the initial access control state in one transaction.
// Every step is idempotent, so it runs on each start.
func (s *Service) Bootstrap(ctx context.Context, b domain.Bootstrap) error {
	const op = "service.registry.Bootstrap"

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		for _, a := range b.Admins {
			if err := tx.Roles().Grant(ctx, domain.Grant{Account: canonicalAccount(a), Role: domain.RoleAdmin}); err != nil {
				return err
			}
		}

		for _, o := range b.Organizers {
			if err := tx.Roles().Grant(ctx, domain.Grant{Account: canonicalAccount(o), Role: domain.RoleOrganizer}); err != nil {
				return err
			}
		}

		for _, g := range b.Grants {
			g.Account = canonicalAccount(g.Account)
			g.Organizer = canonicalAccount(g.Organizer)
			if !g.Role.Valid() || g.Account == "" {
				return fmt.Errorf("%w: bad grant for %q", domain.ErrInvalidParameters, g.Account)
			}
			if g.Role == domain.RoleAdmin || g.Role == domain.RoleOrganizer {
				g.Organizer = ""
				g.EventID = nil
			}
			if err := tx.Roles().Grant(ctx, g); err != nil {
				return err
			}
		}

		for _, sg := range b.Signers {
			key, err := normalizeKey(sg.PublicKey)
			if err != nil {
				return err
			}
			organizer := canonicalAccount(sg.Organizer)
			if organizer == "" {
				return fmt.Errorf("%w: signer %s has no organizer", domain.ErrInvalidParameters, key)
			}
			if err := tx.Signers().Add(ctx, domain.Signer{
				Organizer: organizer,
				PublicKey: key,
				AddedAt:   s.clock.Now(),
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("registry bootstrapped",
		slog.Int("admins", len(b.Admins)),
		slog.Int("organizers", len(b.Organizers)),
		slog.Int("grants", len(b.Grants)),
		slog.Int("signers", len(b.Signers)),
	)

	return nil
}

// Reconcile compares every event's sold counter with its ticket count.
// Drift is never expected; when found it is logged and exported.
func (s *Service) Reconcile(ctx context.Context) ([]domain.SoldDrift, error) {
	const op = "service.registry.Reconcile"

	drift, err := s.store.Events().SoldDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gauge := make(map[int64]int64, len(drift))
	for _, d := range drift {
		gauge[d.EventID] = d.Sold - d.Tickets
		s.log.Error("sold counter drift",
			slog.String("op", op),
			slog.Int64("event_id", d.EventID),
			slog.Int64("sold", d.Sold),
			slog.Int64("tickets", d.Tickets),
		)
	}
	s.metrics.SetSoldDrift(gauge)

	return drift, nil
}
