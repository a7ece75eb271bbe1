package httpgin

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zeebo/blake3"

	"github.com/kirinyoku/tixledger/internal/domain"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
	"github.com/kirinyoku/tixledger/internal/voucher"
)

// @Summary  Mint a ticket (idempotent)
// @Description Without a voucher the caller must hold the minter role of the
// @Description event's organizer. With a voucher no login is needed.
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Param    Idempotency-Key header string false "replay key"
// @Param    req body  MintRequest true "payload"
// @Success  201 {object} MintResponse
// @Failure  400 {object} ErrorResponse
// @Failure  401 {object} ErrorResponse "invalid signature"
// @Failure  403 {object} ErrorResponse "not a minter / voucher expired"
// @Failure  409 {object} ErrorResponse "closed / sold out / seat taken / voucher used / key in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/tickets [post]
func (h *handler) mint(c *gin.Context) {
	eventID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	mr := domain.MintRequest{
		EventID:     eventID,
		Recipient:   req.Recipient,
		Seat:        req.Seat,
		MetadataURI: req.MetadataURI,
	}
	resp := MintResponse{EventID: eventID}

	if req.Voucher != nil {
		if req.Signature == "" {
			badRequest(c, "signature is required with a voucher")
			return
		}
		sig, err := voucher.DecodeSignature(req.Signature)
		if err != nil {
			respondErr(c, domain.ErrInvalidSignature)
			return
		}
		mr.Authorization = domain.VoucherProof{Voucher: req.Voucher.toDomain(), Signature: sig}
		resp.EventID = req.Voucher.EventID
	} else {
		if account(c) == "" {
			respondErr(c, domain.ErrUnauthorized)
			return
		}
		mr.Authorization = domain.MinterProof{Caller: account(c)}
	}

	ctx := c.Request.Context()
	idem := h.opts.Idempotency
	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	var storeKey string
	if idem != nil && idemKey != "" {
		storeKey = redisx.KeyIdemMint(eventID, subject(c), idemKey, fingerprint(req))

		if payload, ok, _ := idem.GetResult(ctx, storeKey); ok {
			replay(c, idemKey, payload)
			return
		}

		locked, err := idem.AcquireLock(ctx, storeKey, h.opts.IdempotencyLock)
		if err != nil {
			respondErr(c, err)
			return
		}
		if !locked {
			if payload, ok, _ := idem.GetResult(ctx, storeKey); ok {
				replay(c, idemKey, payload)
				return
			}
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "request with this idempotency key is in progress",
				Kind:  "in_progress",
			})
			return
		}
	}

	ticketID, err := h.svcs.Ledger.Mint(ctx, mr, "mint:"+subject(c))
	if err != nil {
		if storeKey != "" {
			_ = idem.Release(context.WithoutCancel(ctx), storeKey)
		}
		respondErr(c, err)
		return
	}

	resp.TicketID = ticketID

	if storeKey != "" {
		b, _ := json.Marshal(resp)
		_ = idem.SaveResult(context.WithoutCancel(ctx), storeKey, string(b))
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusCreated, resp)
}

// fingerprint identifies the request body so a reused Idempotency-Key with
// different content mints instead of replaying.
func fingerprint(req MintRequest) string {
	b, _ := json.Marshal(req)
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

// @Summary  Check a voucher without consuming it
// @Param    req body  VerifyVoucherRequest true "payload"
// @Success  200 {object} domain.AuthorizationResult
// @Failure  401 {object} ErrorResponse "invalid signature"
// @Failure  409 {object} ErrorResponse "voucher used / event closed"
// @Router   /vouchers/verify [post]
func (h *handler) verifyVoucher(c *gin.Context) {
	var req VerifyVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sig, err := voucher.DecodeSignature(req.Signature)
	if err != nil {
		respondErr(c, domain.ErrInvalidSignature)
		return
	}

	res, err := h.svcs.Ledger.VerifyVoucher(c.Request.Context(), req.Voucher.toDomain(), sig)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// @Summary  Ticket validity
// @Param    id  path  int  true  "Ticket ID"
// @Success  200 {object} domain.ValidityReport
// @Failure  404 {object} ErrorResponse
// @Router   /tickets/{id} [get]
func (h *handler) checkValidity(c *gin.Context) {
	ticketID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	report, err := h.svcs.Verification.CheckValidity(c.Request.Context(), ticketID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, report)
}

// @Summary  Verification log of a ticket, newest first
// @Param    id  path  int  true  "Ticket ID"
// @Success  200 {array} domain.VerificationRecord
// @Failure  404 {object} ErrorResponse
// @Router   /tickets/{id}/history [get]
func (h *handler) history(c *gin.Context) {
	ticketID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	records, err := h.svcs.Verification.History(c.Request.Context(), ticketID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// @Summary  Gate QR code of a ticket
// @Security BearerAuth
// @Param    id  path  int  true  "Ticket ID"
// @Produce  image/jpeg
// @Success  200
// @Failure  403 {object} ErrorResponse "not the owner"
// @Router   /tickets/{id}/qr [get]
func (h *handler) qrCode(c *gin.Context) {
	ticketID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	img, err := h.svcs.Verification.QRCode(c.Request.Context(), ticketID, account(c))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, "image/jpeg", img)
}

// @Summary  Mark a ticket verified
// @Security BearerAuth
// @Param    id  path  int  true  "Ticket ID"
// @Success  200 {object} domain.ValidityReport
// @Failure  403 {object} ErrorResponse "not an operator"
// @Failure  409 {object} ErrorResponse "already verified"
// @Failure  410 {object} ErrorResponse "already used"
// @Router   /tickets/{id}/verify [post]
func (h *handler) markVerified(c *gin.Context) {
	h.transition(c, h.svcs.Verification.MarkVerified)
}

// @Summary  Mark a ticket used
// @Security BearerAuth
// @Param    id  path  int  true  "Ticket ID"
// @Success  200 {object} domain.ValidityReport
// @Failure  403 {object} ErrorResponse "not an operator"
// @Failure  409 {object} ErrorResponse "not verified yet"
// @Failure  410 {object} ErrorResponse "already used"
// @Router   /tickets/{id}/use [post]
func (h *handler) markUsed(c *gin.Context) {
	h.transition(c, h.svcs.Verification.MarkUsed)
}

func (h *handler) transition(c *gin.Context, fn func(ctx context.Context, ticketID int64, caller string) error) {
	ticketID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), ticketID, account(c)); err != nil {
		respondErr(c, err)
		return
	}

	report, err := h.svcs.Verification.CheckValidity(c.Request.Context(), ticketID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// @Summary  Check a scanned gate payload
// @Security BearerAuth
// @Param    req body  ScanRequest true "payload"
// @Success  200 {object} domain.ValidityReport
// @Failure  400 {object} ErrorResponse "forged or malformed payload"
// @Router   /scan [post]
func (h *handler) scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	report, err := h.svcs.Verification.Scan(c.Request.Context(), req.Payload, account(c))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// @Summary  Tickets owned by an account
// @Param    account path  string  true  "Owner"
// @Param    limit   query int     false "page size"
// @Param    offset  query int     false "offset"
// @Success  200 {array} domain.Ticket
// @Router   /accounts/{account}/tickets [get]
func (h *handler) listByOwner(c *gin.Context) {
	limit, offset := page(c)

	tickets, err := h.svcs.Ledger.ListByOwner(c.Request.Context(), c.Param("account"), limit, offset)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, tickets)
}

// @Summary  Number of tickets ever minted
// @Success  200 {object} SupplyResponse
// @Router   /supply [get]
func (h *handler) totalSupply(c *gin.Context) {
	n, err := h.svcs.Ledger.TotalSupply(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}

	writeJSONWithCache(c, http.StatusOK, SupplyResponse{Total: n}, "public, max-age=5")
}
