package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/lib/jwt"
	"github.com/kirinyoku/tixledger/internal/voucher"
)

type NonceStore interface {
	Put(ctx context.Context, account, nonce string) error
	Take(ctx context.Context, account string) (string, bool, error)
}

type Config struct {
	Secret   []byte
	TokenTTL time.Duration
}

type Service struct {
	nonces NonceStore
	clock  clock.Clock
	log    *slog.Logger
	cfg    Config
}

func New(nonces NonceStore, clk clock.Clock, log *slog.Logger, cfg Config) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}

	return &Service{
		nonces: nonces,
		clock:  clk,
		log:    log,
		cfg:    cfg,
	}
}

// Message is the exact text a wallet signs to log in.
func Message(account, nonce string) string {
	return fmt.Sprintf("Sign in to tixledger\naccount: %s\nnonce: %s", account, nonce)
}

// Challenge issues a fresh login nonce for account, replacing any pending
// one, and returns the message to sign.
//
// Returns:
//   - error: domain.ErrInvalidParameters if account is not a hex Ed25519
//     public key.
func (s *Service) Challenge(ctx context.Context, account string) (string, error) {
	const op = "service.auth.Challenge"

	acct, err := voucher.NormalizeKey(account)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, domain.ErrInvalidParameters, err)
	}

	nonce := voucher.NewNonce()
	if err := s.nonces.Put(ctx, acct, nonce); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return Message(acct, nonce), nil
}

// Login exchanges a signed challenge for a bearer token. The challenge is
// consumed whether or not the signature checks out.
//
// Returns:
//   - string: the signed token.
//   - time.Time: token expiry.
//   - error: domain.ErrUnauthorized if no challenge is pending.
//   - error: domain.ErrInvalidSignature if the signature does not verify.
func (s *Service) Login(ctx context.Context, account, signatureHex string) (string, time.Time, error) {
	const op = "service.auth.Login"

	pub, err := voucher.DecodeKey(account)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w: %v", op, domain.ErrInvalidParameters, err)
	}
	acct := voucher.EncodeKey(pub)

	nonce, ok, err := s.nonces.Take(ctx, acct)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return "", time.Time{}, fmt.Errorf("%s: %w: no pending challenge", op, domain.ErrUnauthorized)
	}

	sig, err := voucher.DecodeSignature(signatureHex)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, domain.ErrInvalidSignature)
	}

	if !ed25519.Verify(pub, []byte(Message(acct, nonce)), sig) {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, domain.ErrInvalidSignature)
	}

	now := s.clock.Now()
	token, err := jwt.NewToken(acct, s.cfg.Secret, s.cfg.TokenTTL, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("account logged in", slog.String("account", acct))

	return token, now.Add(s.cfg.TokenTTL), nil
}

// Authenticate resolves a bearer token to its account.
//
// Returns:
//   - error: domain.ErrUnauthorized if the token is invalid or expired.
func (s *Service) Authenticate(token string) (string, error) {
	const op = "service.auth.Authenticate"

	account, err := jwt.Parse(token, s.cfg.Secret, s.clock.Now())
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return "", fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

// MemoryNonces keeps challenges in process memory. It backs local runs
// without Redis. A challenge older than ttl is treated as missing.
type MemoryNonces struct {
	mu     sync.Mutex
	clock  clock.Clock
	ttl    time.Duration
	nonces map[string]pendingNonce
}

type pendingNonce struct {
	value    string
	issuedAt time.Time
}

func NewMemoryNonces(clk clock.Clock, ttl time.Duration) *MemoryNonces {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryNonces{clock: clk, ttl: ttl, nonces: map[string]pendingNonce{}}
}

func (m *MemoryNonces) Put(_ context.Context, account, nonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for acct, p := range m.nonces {
		if now.Sub(p.issuedAt) >= m.ttl {
			delete(m.nonces, acct)
		}
	}
	m.nonces[account] = pendingNonce{value: nonce, issuedAt: now}
	return nil
}

func (m *MemoryNonces) Take(_ context.Context, account string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.nonces[account]
	delete(m.nonces, account)
	if !ok || m.clock.Now().Sub(p.issuedAt) >= m.ttl {
		return "", false, nil
	}
	return p.value, true, nil
}
