package service

import (
	"log/slog"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/metrics"
	"github.com/kirinyoku/tixledger/internal/repository"
	redisrepo "github.com/kirinyoku/tixledger/internal/repository/redis"
	"github.com/kirinyoku/tixledger/internal/service/auth"
	"github.com/kirinyoku/tixledger/internal/service/ledger"
	"github.com/kirinyoku/tixledger/internal/service/registry"
	"github.com/kirinyoku/tixledger/internal/service/verification"
	"github.com/kirinyoku/tixledger/internal/ticketqr"
)

type Services struct {
	Registry     *registry.Service
	Ledger       *ledger.Service
	Verification *verification.Service
	Auth         *auth.Service
}

type Config struct {
	Registry     registry.Config
	Ledger       ledger.Config
	Verification verification.Config
	Auth         auth.Config
}

// Deps are the collaborators shared by the services. Cache, Limiter and
// Publisher may be nil; the services then skip caching, rate limiting and
// change notifications.
type Deps struct {
	Store     repository.Store
	Cache     *redisrepo.Cache
	Limiter   ledger.RateLimiter
	Publisher ledger.ChangePublisher
	Nonces    auth.NonceStore
	QR        *ticketqr.Codec
	Clock     clock.Clock
	Log       *slog.Logger
	Metrics   *metrics.Metrics
}

func NewServices(d Deps, cfg Config) *Services {
	return &Services{
		Registry:     registry.New(d.Store, d.Cache, d.Clock, d.Log, d.Metrics, cfg.Registry),
		Ledger:       ledger.New(d.Store, d.Cache, d.Limiter, d.Publisher, d.Clock, d.Log, d.Metrics, cfg.Ledger),
		Verification: verification.New(d.Store, d.QR, d.Publisher, d.Clock, d.Log, d.Metrics, cfg.Verification),
		Auth:         auth.New(d.Nonces, d.Clock, d.Log, cfg.Auth),
	}
}
