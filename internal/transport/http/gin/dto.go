package httpgin

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/tixledger/internal/domain"
)

// Prices are stored in minor units with two decimal places.
const priceExp = -2

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type CreateEventRequest struct {
	Name         string          `json:"name" binding:"required,max=200"`
	StartsAt     time.Time       `json:"starts_at" binding:"required"`
	Venue        string          `json:"venue" binding:"required,max=200"`
	Price        decimal.Decimal `json:"price"`
	Capacity     int64           `json:"capacity" binding:"required,gt=0"`
	EnforceSeats bool            `json:"enforce_seats"`
}

func (r CreateEventRequest) toDomain() (domain.NewEvent, error) {
	minor := r.Price.Shift(-priceExp)
	if r.Price.IsNegative() || !minor.IsInteger() {
		return domain.NewEvent{}, fmt.Errorf("%w: price must be non-negative with at most two decimals", domain.ErrInvalidParameters)
	}

	return domain.NewEvent{
		Name:         r.Name,
		StartsAt:     r.StartsAt,
		Venue:        r.Venue,
		Price:        minor.IntPart(),
		Capacity:     r.Capacity,
		EnforceSeats: r.EnforceSeats,
	}, nil
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type EventResponse struct {
	domain.Event
	PriceDisplay string `json:"price_display"`
	Remaining    int64  `json:"remaining"`
}

func newEventResponse(e domain.Event) EventResponse {
	return EventResponse{
		Event:        e,
		PriceDisplay: decimal.New(e.Price, priceExp).StringFixed(-priceExp),
		Remaining:    e.Remaining(),
	}
}

func newEventResponses(events []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, newEventResponse(e))
	}
	return out
}

type VoucherInput struct {
	EventID   int64  `json:"event_id" binding:"required,gt=0"`
	Recipient string `json:"recipient" binding:"required"`
	Seat      string `json:"seat" binding:"omitempty,seat"`
	Price     int64  `json:"price" binding:"gte=0"`
	ExpiresAt int64  `json:"expires_at" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Signer    string `json:"signer" binding:"required,hexadecimal"`
}

func (v VoucherInput) toDomain() domain.Voucher {
	return domain.Voucher{
		EventID:   v.EventID,
		Recipient: v.Recipient,
		Seat:      v.Seat,
		Price:     v.Price,
		ExpiresAt: v.ExpiresAt,
		Nonce:     v.Nonce,
		Signer:    v.Signer,
	}
}

// MintRequest mints with the caller's minter role unless a voucher is
// attached. With a voucher, recipient and seat come from the voucher.
type MintRequest struct {
	Recipient   string        `json:"recipient"`
	Seat        string        `json:"seat" binding:"omitempty,seat"`
	MetadataURI string        `json:"metadata_uri" binding:"omitempty,uri"`
	Voucher     *VoucherInput `json:"voucher"`
	Signature   string        `json:"signature" binding:"omitempty,hexadecimal"`
}

type MintResponse struct {
	TicketID int64 `json:"ticket_id"`
	EventID  int64 `json:"event_id"`
}

type VerifyVoucherRequest struct {
	Voucher   VoucherInput `json:"voucher" binding:"required"`
	Signature string       `json:"signature" binding:"required,hexadecimal"`
}

type ScanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

type GrantRequest struct {
	Account   string `json:"account" binding:"required"`
	Role      string `json:"role" binding:"required,oneof=admin organizer minter operator"`
	Organizer string `json:"organizer"`
	EventID   *int64 `json:"event_id" binding:"omitempty,gt=0"`
}

func (r GrantRequest) toDomain() domain.Grant {
	return domain.Grant{
		Account:   r.Account,
		Role:      domain.Role(r.Role),
		Organizer: r.Organizer,
		EventID:   r.EventID,
	}
}

type SignerRequest struct {
	PublicKey string `json:"public_key" binding:"required,hexadecimal"`
}

type SignerResponse struct {
	PublicKey string `json:"public_key"`
}

type ChallengeResponse struct {
	Message string `json:"message"`
}

type LoginRequest struct {
	Account   string `json:"account" binding:"required,hexadecimal"`
	Signature string `json:"signature" binding:"required,hexadecimal"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SupplyResponse struct {
	Total int64 `json:"total"`
}
