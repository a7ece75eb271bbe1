package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tixledger/internal/domain"
)

func statusOf(c *gin.Context, err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidParameters),
		errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEventClosed),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrSeatTaken),
		errors.Is(err, domain.ErrVoucherAlreadyUsed),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		if account(c) == "" {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.Is(err, domain.ErrExpiredVoucher):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyUsed):
		return http.StatusGone
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// respondErr writes err as an ErrorResponse. Internal errors are not echoed
// to the client.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	status := statusOf(c, err)
	msg := err.Error()

	switch status {
	case http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal error"
	case http.StatusTooManyRequests:
		c.Header("Retry-After", "60")
	}

	c.JSON(status, ErrorResponse{Error: msg, Kind: domain.Kind(err)})
}

func abortErr(c *gin.Context, err error) {
	respondErr(c, err)
	c.Abort()
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Kind: domain.Kind(domain.ErrInvalidParameters)})
}
