package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dperhar/Karma-app-sub001/internal/engine"
	"github.com/dperhar/Karma-app-sub001/internal/httpx"
	"github.com/dperhar/Karma-app-sub001/internal/pool"
	"github.com/dperhar/Karma-app-sub001/internal/service"
	"github.com/dperhar/Karma-app-sub001/internal/validation"
)

type SyncHandler struct {
	syncs *service.SyncService
}

func NewSyncHandler(syncs *service.SyncService) *SyncHandler {
	return &SyncHandler{syncs: syncs}
}

// syncError maps the error taxonomy onto HTTP statuses.
func syncError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pool.ErrNoValidCredential):
		return httpx.Unauthorized(c, "no_valid_credential", "User must re-authenticate with the platform")
	case errors.Is(err, engine.ErrSyncInFlight):
		return httpx.Conflict(c, "sync_in_flight", "A sync for this conversation is already running")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return httpx.NotFound(c, "not_found", "Conversation not found")
	default:
		return httpx.Internal(c, "sync_failed")
	}
}

// SyncDialogs triggers one dialog-list page fetch for the caller.
func (h *SyncHandler) SyncDialogs(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}
	limit := validation.ClampLimit(c.QueryInt("limit"))

	res, serr := h.syncs.SyncDialogs(c.Context(), userID, limit)
	if serr != nil {
		return syncError(c, serr)
	}
	return c.JSON(res)
}

// SyncMessages triggers one message page fetch for a conversation the
// caller owns.
func (h *SyncHandler) SyncMessages(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	convID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}
	direction, ok := validation.ParseDirection(c.Query("direction"))
	if !ok {
		return httpx.BadRequest(c, "invalid_direction", "Direction must be older or newer")
	}
	limit := validation.ClampLimit(c.QueryInt("limit"))

	res, serr := h.syncs.SyncConversationMessages(c.Context(), userID, uint(convID), limit, direction)
	if serr != nil {
		return syncError(c, serr)
	}
	return c.JSON(res)
}

// SyncParticipants triggers one participant page fetch for a conversation.
func (h *SyncHandler) SyncParticipants(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	convID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}
	limit := validation.ClampLimit(c.QueryInt("limit"))

	res, serr := h.syncs.SyncConversationParticipants(c.Context(), userID, uint(convID), limit)
	if serr != nil {
		return syncError(c, serr)
	}
	return c.JSON(res)
}

// Resync re-opens backfill for a fully synced conversation.
func (h *SyncHandler) Resync(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	convID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}

	if serr := h.syncs.Resync(userID, uint(convID)); serr != nil {
		return syncError(c, serr)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Reset discards a conversation's sync progress so the next backfill
// starts from scratch.
func (h *SyncHandler) Reset(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	convID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return httpx.BadRequest(c, "invalid_conversation", "Invalid conversation id")
	}

	if serr := h.syncs.Reset(userID, uint(convID)); serr != nil {
		return syncError(c, serr)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Overview returns the caller's per-conversation sync statuses plus
// connection health aggregates.
func (h *SyncHandler) Overview(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "missing_user", "Missing user identity")
	}

	payload, serr := h.syncs.Overview(userID)
	if serr != nil {
		return httpx.Internal(c, "overview_failed")
	}
	return c.JSON(payload)
}
