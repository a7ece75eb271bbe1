package domain

import "errors"

// Every rejected engine operation returns one of these, wrapped with the
// operation name. Callers compare with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidParameters  = errors.New("invalid parameters")
	ErrEventClosed        = errors.New("event closed")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrSeatTaken          = errors.New("seat taken")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrExpiredVoucher     = errors.New("voucher expired")
	ErrVoucherAlreadyUsed = errors.New("voucher already used")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyUsed        = errors.New("ticket already used")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidPayload     = errors.New("invalid ticket payload")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidParameters, "invalid_parameters"},
	{ErrEventClosed, "event_closed"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrSeatTaken, "seat_taken"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrExpiredVoucher, "expired_voucher"},
	{ErrVoucherAlreadyUsed, "voucher_already_used"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrAlreadyUsed, "already_used"},
	{ErrRateLimited, "rate_limited"},
	{ErrInvalidPayload, "invalid_payload"},
}

// Kind returns a stable machine readable name for err: "ok" for nil,
// "internal" for anything outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
