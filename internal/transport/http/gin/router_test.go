package httpgin

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/kirinyoku/tixledger/internal/clock"
	"github.com/kirinyoku/tixledger/internal/domain"
	"github.com/kirinyoku/tixledger/internal/lib/jwt"
	"github.com/kirinyoku/tixledger/internal/metrics"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
	"github.com/kirinyoku/tixledger/internal/repository/memory"
	"github.com/kirinyoku/tixledger/internal/service"
	"github.com/kirinyoku/tixledger/internal/service/auth"
	"github.com/kirinyoku/tixledger/internal/service/ledger"
	"github.com/kirinyoku/tixledger/internal/service/registry"
	"github.com/kirinyoku/tixledger/internal/ticketqr"
	"github.com/kirinyoku/tixledger/internal/voucher"
)

var secret = []byte("router-test-secret")

type harness struct {
	t      *testing.T
	router *gin.Engine
	svcs   *service.Services
	clk    *clock.FakeClock
	codec  *ticketqr.Codec

	organizer string
	gate      string
	signer    ed25519.PrivateKey
}

type fakeFeed struct {
	changes []redisx.TicketChange
}

func (f *fakeFeed) Subscribe(ctx context.Context, handler func(ctx context.Context, c redisx.TicketChange)) error {
	for _, c := range f.changes {
		handler(ctx, c)
	}
	return nil
}

type fakeIdempotency struct {
	mu       sync.Mutex
	locks    map[string]bool
	results  map[string]string
	released int
	busy     bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{locks: map[string]bool{}, results: map[string]string{}}
}

func (f *fakeIdempotency) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy || f.locks[key] {
		return false, nil
	}
	if _, ok := f.results[key]; ok {
		return false, nil
	}
	f.locks[key] = true
	return true, nil
}

func (f *fakeIdempotency) SaveResult(_ context.Context, key string, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, key)
	f.results[key] = payload
	return nil
}

func (f *fakeIdempotency) GetResult(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.results[key]
	return v, ok, nil
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, key)
	f.released++
	return nil
}

func newAccount(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := voucher.GenerateKeypair()
	require.NoError(t, err)
	return voucher.EncodeKey(pub), priv
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.Fake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := ticketqr.NewCodec("qr-secret")

	svcs := service.NewServices(service.Deps{
		Store:   memory.New(),
		Nonces:  auth.NewMemoryNonces(clk, 5*time.Minute),
		QR:      codec,
		Clock:   clk,
		Log:     log,
		Metrics: opts.Metrics,
	}, service.Config{
		Registry: registry.Config{RejectPastStart: true},
		Ledger:   ledger.Config{},
		Auth:     auth.Config{Secret: secret, TokenTTL: time.Hour},
	})

	h := &harness{
		t:      t,
		router: NewRouter(svcs, opts, log),
		svcs:   svcs,
		clk:    clk,
		codec:  codec,
	}

	h.organizer, _ = newAccount(t)
	h.gate, _ = newAccount(t)

	ctx := context.Background()
	require.NoError(t, svcs.Registry.Bootstrap(ctx, domain.Bootstrap{Organizers: []string{h.organizer}}))
	require.NoError(t, svcs.Registry.GrantRole(ctx, h.organizer, domain.Grant{Account: h.gate, Role: domain.RoleOperator}))

	pub, priv, err := voucher.GenerateKeypair()
	require.NoError(t, err)
	_, err = svcs.Registry.RegisterSigner(ctx, h.organizer, voucher.EncodeKey(pub))
	require.NoError(t, err)
	h.signer = priv

	return h
}

func (h *harness) token(account string) string {
	h.t.Helper()
	tok, err := jwt.NewToken(account, secret, time.Hour, h.clk.Now())
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, account string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(account))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) createEvent(capacity int64, enforceSeats bool) int64 {
	h.t.Helper()

	w := h.do(http.MethodPost, "/events", h.organizer, map[string]any{
		"name":          "Concert",
		"starts_at":     h.clk.Now().Add(48 * time.Hour),
		"venue":         "Arena",
		"price":         "12.50",
		"capacity":      capacity,
		"enforce_seats": enforceSeats,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "event_id").Int()
}

func (h *harness) mint(eventID int64, recipient, seat string) int64 {
	h.t.Helper()

	w := h.do(http.MethodPost, "/events/"+itoa(eventID)+"/tickets", h.organizer, map[string]any{
		"recipient": recipient,
		"seat":      seat,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "ticket_id").Int()
}

func (h *harness) voucherBody(eventID int64, recipient, seat string, price int64) map[string]any {
	h.t.Helper()

	v, sig, err := voucher.Sign(h.signer, domain.Voucher{
		EventID:   eventID,
		Recipient: recipient,
		Seat:      seat,
		Price:     price,
		ExpiresAt: h.clk.Now().Add(time.Hour).Unix(),
		Nonce:     voucher.NewNonce(),
	})
	require.NoError(h.t, err)

	return map[string]any{
		"voucher": map[string]any{
			"event_id":   v.EventID,
			"recipient":  v.Recipient,
			"seat":       v.Seat,
			"price":      v.Price,
			"expires_at": v.ExpiresAt,
			"nonce":      v.Nonce,
			"signer":     v.Signer,
		},
		"signature": hex.EncodeToString(sig),
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, Options{})

	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t, Options{})
	acct, priv := newAccount(t)

	w := h.do(http.MethodGet, "/auth/nonce?account="+acct, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := gjson.Get(w.Body.String(), "message").String()
	require.Contains(t, msg, acct)

	sig := hex.EncodeToString(ed25519.Sign(priv, []byte(msg)))
	w = h.do(http.MethodPost, "/auth/verify", "", map[string]string{"account": acct, "signature": sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := gjson.Get(w.Body.String(), "token").String()
	require.NotEmpty(t, token)

	// The challenge is single use.
	w = h.do(http.MethodPost, "/auth/verify", "", map[string]string{"account": acct, "signature": sig})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "authenticated request reaches binding")
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, Options{})

	w := h.do(http.MethodPost, "/events", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", gjson.Get(w.Body.String(), "kind").String())

	w = h.do(http.MethodGet, "/supply", "", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEvents(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.createEvent(2, false)

	w := h.do(http.MethodGet, "/events/"+itoa(id), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, int64(1250), gjson.Get(body, "price").Int())
	assert.Equal(t, "12.50", gjson.Get(body, "price_display").String())
	assert.Equal(t, int64(2), gjson.Get(body, "remaining").Int())
	assert.Equal(t, h.organizer, gjson.Get(body, "organizer").String())

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	w = h.do(http.MethodGet, "/events/"+itoa(id), "", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = h.do(http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "#").Int())

	// Only organizers create events.
	w = h.do(http.MethodPost, "/events", h.gate, map[string]any{
		"name": "x", "starts_at": h.clk.Now().Add(time.Hour), "venue": "v", "capacity": 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/events", h.organizer, map[string]any{
		"name": "x", "starts_at": h.clk.Now().Add(time.Hour), "venue": "v", "capacity": 1, "price": "1.005",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/close", h.organizer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", h.organizer, map[string]any{"recipient": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "event_closed", gjson.Get(w.Body.String(), "kind").String())

	w = h.do(http.MethodGet, "/events/999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/events/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMintWithMinterRole(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.createEvent(1, true)

	ticketID := h.mint(id, "alice", "A-1")
	assert.Positive(t, ticketID)

	w := h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", h.organizer, map[string]any{"recipient": "bob", "seat": "A-2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "capacity_exceeded", gjson.Get(w.Body.String(), "kind").String())

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", "", map[string]any{"recipient": "bob"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", h.gate, map[string]any{"recipient": "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", h.organizer, map[string]any{"recipient": "bob", "seat": "!bad"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/accounts/alice/tickets", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ticketID, gjson.Get(w.Body.String(), "0.id").Int())

	w = h.do(http.MethodGet, "/supply", "", nil)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total").Int())
}

func TestMintIdempotency(t *testing.T) {
	idem := newFakeIdempotency()
	h := newHarness(t, Options{Idempotency: idem})
	first := h.createEvent(10, false)
	second := h.createEvent(10, false)

	mint := func(eventID int64, recipient, key string) *httptest.ResponseRecorder {
		return h.do(http.MethodPost, "/events/"+itoa(eventID)+"/tickets", h.organizer,
			map[string]any{"recipient": recipient}, "Idempotency-Key", key)
	}

	w := mint(first, "alice", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "k1", w.Header().Get("Idempotency-Key"))
	ticketID := gjson.Get(w.Body.String(), "ticket_id").Int()

	w = mint(first, "alice", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, ticketID, gjson.Get(w.Body.String(), "ticket_id").Int())
	assert.Equal(t, int64(1), gjson.Get(h.do(http.MethodGet, "/supply", "", nil).Body.String(), "total").Int())

	// The key is scoped to the event and the body.
	w = mint(second, "alice", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEqual(t, ticketID, gjson.Get(w.Body.String(), "ticket_id").Int())
	assert.Equal(t, second, gjson.Get(w.Body.String(), "event_id").Int())

	w = mint(first, "bob", "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEqual(t, ticketID, gjson.Get(w.Body.String(), "ticket_id").Int())
	assert.Equal(t, int64(3), gjson.Get(h.do(http.MethodGet, "/supply", "", nil).Body.String(), "total").Int())

	// A failed mint releases the key so a retry runs again.
	w = h.do(http.MethodPost, "/events/"+itoa(second)+"/close", h.organizer, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = mint(second, "carol", "k2")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "event_closed", gjson.Get(w.Body.String(), "kind").String())
	assert.Equal(t, 1, idem.released)
	assert.Empty(t, idem.locks)

	w = mint(second, "carol", "k2")
	assert.Equal(t, "event_closed", gjson.Get(w.Body.String(), "kind").String())
	assert.Equal(t, 2, idem.released)

	idem.busy = true
	w = mint(first, "dave", "k3")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "in_progress", gjson.Get(w.Body.String(), "kind").String())
	assert.Equal(t, int64(3), gjson.Get(h.do(http.MethodGet, "/supply", "", nil).Body.String(), "total").Int())
}

func TestMintWithVoucher(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.createEvent(10, false)

	body := h.voucherBody(id, "carol", "B-7", 1250)

	w := h.do(http.MethodPost, "/vouchers/verify", "", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, gjson.Get(w.Body.String(), "hash").String(), 64)

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ticketID := gjson.Get(w.Body.String(), "ticket_id").Int()

	w = h.do(http.MethodGet, "/tickets/"+itoa(ticketID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carol", gjson.Get(w.Body.String(), "owner").String())
	assert.Equal(t, "B-7", gjson.Get(w.Body.String(), "ticket.seat").String())

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", "", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "voucher_already_used", gjson.Get(w.Body.String(), "kind").String())

	tampered := h.voucherBody(id, "dave", "", 1250)
	tampered["voucher"].(map[string]any)["recipient"] = "mallory"
	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", "", tampered)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_signature", gjson.Get(w.Body.String(), "kind").String())

	expired := h.voucherBody(id, "erin", "", 1250)
	h.clk.Advance(2 * time.Hour)
	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", "", expired)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "expired_voucher", gjson.Get(w.Body.String(), "kind").String())
}

func TestVerifyAndUse(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.createEvent(5, false)
	ticketID := h.mint(id, "alice", "")
	path := "/tickets/" + itoa(ticketID)

	w := h.do(http.MethodPost, path+"/use", h.gate, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "used requires verified")

	w = h.do(http.MethodPost, path+"/verify", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, path+"/verify", h.gate, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "verified", gjson.Get(w.Body.String(), "status").String())

	w = h.do(http.MethodPost, path+"/use", h.gate, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "used", gjson.Get(w.Body.String(), "status").String())
	assert.False(t, gjson.Get(w.Body.String(), "valid").Bool())

	w = h.do(http.MethodPost, path+"/use", h.gate, nil)
	assert.Equal(t, http.StatusGone, w.Code)

	w = h.do(http.MethodGet, path+"/history", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := gjson.Parse(w.Body.String())
	assert.Equal(t, "already_used", history.Get("0.outcome").String())
	assert.Equal(t, "use", history.Get("0.action").String())

	w = h.do(http.MethodGet, "/tickets/999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQRAndScan(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.createEvent(5, false)
	owner, _ := newAccount(t)
	ticketID := h.mint(id, owner, "")

	w := h.do(http.MethodGet, "/tickets/"+itoa(ticketID)+"/qr", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte{0xFF, 0xD8}))

	w = h.do(http.MethodGet, "/tickets/"+itoa(ticketID)+"/qr", h.gate, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	payload := h.codec.Encode(ticketqr.Payload{TicketID: ticketID, EventID: id})
	w = h.do(http.MethodPost, "/scan", h.gate, map[string]string{"payload": payload})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, gjson.Get(w.Body.String(), "valid").Bool())

	w = h.do(http.MethodPost, "/scan", h.gate, map[string]string{"payload": payload + "00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_payload", gjson.Get(w.Body.String(), "kind").String())
}

func TestRolesAndSigners(t *testing.T) {
	h := newHarness(t, Options{})
	minter, _ := newAccount(t)
	id := h.createEvent(5, false)

	grant := map[string]any{"account": minter, "role": "minter"}
	w := h.do(http.MethodPost, "/roles", h.organizer, grant)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", minter, map[string]any{"recipient": "alice"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodDelete, "/roles", h.organizer, grant)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodPost, "/events/"+itoa(id)+"/tickets", minter, map[string]any{"recipient": "alice"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/roles", h.organizer, map[string]any{"account": minter, "role": "king"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	key, _ := newAccount(t)
	w = h.do(http.MethodPost, "/signers", h.organizer, map[string]string{"public_key": strings.ToUpper(key)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, key, gjson.Get(w.Body.String(), "public_key").String())

	w = h.do(http.MethodGet, "/organizers/"+h.organizer+"/signers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "#").Int())

	w = h.do(http.MethodDelete, "/signers/"+key, h.organizer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodDelete, "/signers/"+key, h.organizer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeed(t *testing.T) {
	feed := &fakeFeed{}
	h := newHarness(t, Options{Feed: feed})
	id := h.createEvent(5, false)

	feed.changes = []redisx.TicketChange{
		{Type: "ticket.minted", EventID: id, TicketID: 1, Status: "minted"},
		{Type: "ticket.minted", EventID: id + 1, TicketID: 2, Status: "minted"},
	}

	w := h.do(http.MethodGet, "/events/"+itoa(id)+"/feed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event:ready")
	assert.Equal(t, 1, strings.Count(body, "event:ticket"))
	assert.Contains(t, body, `"ticket_id":1`)

	disabled := newHarness(t, Options{})
	w = disabled.do(http.MethodGet, "/events/1/feed", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, Options{Metrics: m})
	h.createEvent(1, false)

	w := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tixledger_http_request_duration_seconds")
}
