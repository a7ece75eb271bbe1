package uow

import (
	"context"
	"errors"
	"time"

	"github.com/kirinyoku/tixledger/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

const (
	defaultAttempts = 3
	retryBackoff    = 10 * time.Millisecond
)

// UoW represents a unit of work.
type UoW struct {
	store    repository.Store
	attempts int
}

func NewUoW(store repository.Store) *UoW {
	return &UoW{store: store, attempts: defaultAttempts}
}

// WithAttempts returns a copy that tries a transaction up to n times when it
// aborts with a serialization failure.
func (u *UoW) WithAttempts(n int) *UoW {
	cp := *u
	if n < 1 {
		n = 1
	}
	cp.attempts = n
	return &cp
}

// Do runs fn inside a transaction. A serialization failure restarts fn from
// scratch with a fresh hook list; every other error is returned untouched.
// After a successful commit, it executes all after-commit hooks.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error,
) error {
	var (
		hooks []AfterCommit
		err   error
	)

	for attempt := 1; attempt <= u.attempts; attempt++ {
		hooks = nil

		err = u.store.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
			return fn(ctx, tx, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil || !errors.Is(err, repository.ErrSerialization) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
