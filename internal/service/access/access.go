// Package access answers role questions against a repository snapshot. The
// helpers take repository.Repos so they can run inside the same transaction
// as the mutation they guard.
package access

import (
	"context"
	"fmt"

	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/repository"
)

// global roles are stored without an organizer scope.
const globalScope = ""

func IsAdmin(ctx context.Context, r repository.Repos, account string) (bool, error) {
	const op = "access.IsAdmin"

	if account == "" {
		return false, nil
	}

	ok, err := r.Roles().Has(ctx, account, domain.RoleAdmin, globalScope, 0)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// CanOrganize reports whether account may create events.
func CanOrganize(ctx context.Context, r repository.Repos, account string) (bool, error) {
	const op = "access.CanOrganize"

	if account == "" {
		return false, nil
	}

	ok, err := r.Roles().Has(ctx, account, domain.RoleOrganizer, globalScope, 0)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return true, nil
	}

	return IsAdmin(ctx, r, account)
}

// IsMinter reports whether account belongs to the authorized minter set of
// the event's organizer. The organizer itself always does.
func IsMinter(ctx context.Context, r repository.Repos, account string, ev *domain.Event) (bool, error) {
	const op = "access.IsMinter"

	if account == "" {
		return false, nil
	}
	if account == ev.Organizer {
		return true, nil
	}

	ok, err := r.Roles().Has(ctx, account, domain.RoleMinter, ev.Organizer, 0)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// IsOperator reports whether account may verify and use tickets of ev,
// either through an organizer-wide or an event-scoped operator grant.
func IsOperator(ctx context.Context, r repository.Repos, account string, ev *domain.Event) (bool, error) {
	const op = "access.IsOperator"

	if account == "" {
		return false, nil
	}
	if account == ev.Organizer {
		return true, nil
	}

	ok, err := r.Roles().Has(ctx, account, domain.RoleOperator, ev.Organizer, ev.ID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}
