package httpgin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/tixledger/internal/metrics"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
	"github.com/kirinyoku/tixledger/internal/service"
)

// Feed streams ticket changes until ctx is done.
type Feed interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, c redisx.TicketChange)) error
}

// Idempotency remembers mint results by request key.
type Idempotency interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	GetResult(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key string) error
}

// Options carries the optional collaborators of the router. Nil fields turn
// the matching feature off: idempotent mint replay, the live feed and
// /metrics.
type Options struct {
	Idempotency     Idempotency
	IdempotencyLock time.Duration
	Feed            Feed
	Metrics         *metrics.Metrics
}

type handler struct {
	svcs *service.Services
	opts Options
	log  *slog.Logger
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	registerValidators()

	if opts.IdempotencyLock <= 0 {
		opts.IdempotencyLock = 60 * time.Second
	}

	h := &handler{svcs: svcs, opts: opts, log: logger}

	r := gin.New()

	r.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORS(),
	)
	if opts.Metrics != nil {
		r.Use(MetricsMiddleware(opts.Metrics))
	}
	r.Use(AuthMiddleware(svcs.Auth))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// Public API
	r.GET("/auth/nonce", h.challenge)
	r.POST("/auth/verify", h.login)

	r.GET("/events", h.listEvents)
	r.GET("/events/:id", h.getEvent)
	r.GET("/events/:id/feed", h.feed)
	r.POST("/events/:id/tickets", h.mint)
	r.POST("/vouchers/verify", h.verifyVoucher)

	r.GET("/tickets/:id", h.checkValidity)
	r.GET("/tickets/:id/history", h.history)
	r.GET("/accounts/:account/tickets", h.listByOwner)
	r.GET("/organizers/:account/signers", h.listSigners)
	r.GET("/supply", h.totalSupply)

	// Account API
	authed := r.Group("/", RequireAccount())
	{
		authed.POST("/events", h.createEvent)
		authed.POST("/events/:id/close", h.closeEvent)

		authed.GET("/tickets/:id/qr", h.qrCode)
		authed.POST("/tickets/:id/verify", h.markVerified)
		authed.POST("/tickets/:id/use", h.markUsed)
		authed.POST("/scan", h.scan)

		authed.POST("/roles", h.grantRole)
		authed.DELETE("/roles", h.revokeRole)
		authed.POST("/signers", h.registerSigner)
		authed.DELETE("/signers/:key", h.revokeSigner)
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v < 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func page(c *gin.Context) (limit, offset int) {
	return parseIntDefault(c.Query("limit"), 50), parseIntDefault(c.Query("offset"), 0)
}

// subject identifies the caller for rate limiting and idempotency: the
// account when logged in, otherwise the client address.
func subject(c *gin.Context) string {
	if a := account(c); a != "" {
		return a
	}
	return "ip:" + c.ClientIP()
}
