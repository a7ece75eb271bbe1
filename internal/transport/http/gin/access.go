package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary  Login challenge
// @Param    account query string true "hex Ed25519 public key"
// @Success  200 {object} ChallengeResponse
// @Failure  400 {object} ErrorResponse
// @Router   /auth/nonce [get]
func (h *handler) challenge(c *gin.Context) {
	msg, err := h.svcs.Auth.Challenge(c.Request.Context(), c.Query("account"))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, ChallengeResponse{Message: msg})
}

// @Summary  Exchange a signed challenge for a bearer token
// @Param    req body  LoginRequest true "payload"
// @Success  200 {object} LoginResponse
// @Failure  401 {object} ErrorResponse
// @Router   /auth/verify [post]
func (h *handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	token, exp, err := h.svcs.Auth.Login(c.Request.Context(), req.Account, req.Signature)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp})
}

// @Summary  Grant a role
// @Security BearerAuth
// @Param    req body  GrantRequest true "payload"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Router   /roles [post]
func (h *handler) grantRole(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.svcs.Registry.GrantRole(c.Request.Context(), account(c), req.toDomain()); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Revoke a role
// @Security BearerAuth
// @Param    req body  GrantRequest true "payload"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /roles [delete]
func (h *handler) revokeRole(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.svcs.Registry.RevokeRole(c.Request.Context(), account(c), req.toDomain()); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Register a voucher signer for the calling organizer
// @Security BearerAuth
// @Param    req body  SignerRequest true "payload"
// @Success  201 {object} SignerResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Router   /signers [post]
func (h *handler) registerSigner(c *gin.Context) {
	var req SignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	key, err := h.svcs.Registry.RegisterSigner(c.Request.Context(), account(c), req.PublicKey)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, SignerResponse{PublicKey: key})
}

// @Summary  Revoke a voucher signer of the calling organizer
// @Security BearerAuth
// @Param    key path string true "hex Ed25519 public key"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /signers/{key} [delete]
func (h *handler) revokeSigner(c *gin.Context) {
	if err := h.svcs.Registry.RevokeSigner(c.Request.Context(), account(c), c.Param("key")); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Voucher signers of an organizer
// @Param    account path string true "Organizer"
// @Success  200 {array} domain.Signer
// @Router   /organizers/{account}/signers [get]
func (h *handler) listSigners(c *gin.Context) {
	signers, err := h.svcs.Registry.ListSigners(c.Request.Context(), c.Param("account"))
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, signers)
}
