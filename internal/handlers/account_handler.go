package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/httpx"
	"github.com/dperhar/Karma-app-sub001/internal/service"
	"github.com/dperhar/Karma-app-sub001/internal/validation"
)

type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type storeCredentialRequest struct {
	Session string `json:"session"` // base64-encoded platform session
}

// StoreCredential receives a freshly established platform session from the
// authentication flow and seals it.
func (h *AccountHandler) StoreCredential(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	var req storeCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	session, ok := validation.DecodeCredential(req.Session)
	if !ok {
		return httpx.BadRequest(c, "invalid_credential", "Credential must be non-empty base64")
	}

	resp, err := h.accounts.StoreCredential(userID, session)
	if err != nil {
		return httpx.Internal(c, "credential_store_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Logout soft-invalidates the stored credential.
func (h *AccountHandler) Logout(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	if err := h.accounts.Logout(userID); err != nil {
		return httpx.Internal(c, "logout_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me returns the caller's profile.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	resp, err := h.accounts.Me(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.NotFound(c, "no_user", "User not found")
	}
	if err != nil {
		return httpx.Internal(c, "user_lookup_failed")
	}
	return c.JSON(resp)
}

// Status reports the stored connection's validation bookkeeping.
func (h *AccountHandler) Status(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	resp, err := h.accounts.Status(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.NotFound(c, "no_connection", "No stored connection for user")
	}
	if err != nil {
		return httpx.Internal(c, "connection_lookup_failed")
	}
	return c.JSON(resp)
}
