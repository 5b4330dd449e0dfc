// Account-linking HTTP handlers.
//
// This file exposes the app-facing endpoints for binding a user's account to
// a chat:
//   - POST /api/v1/link/code    (issue a fresh verification code)
//   - GET  /api/v1/link/status  (report whether the account is linked)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/http/middleware"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

//
// Service contracts (context-aware)
//

// LinkService defines the linking operations consumed by HTTP handlers.
// Implementations must be safe for concurrent use and honor the context.
type LinkService interface {
	// RequestCode invalidates prior codes and issues a fresh one.
	RequestCode(ctx context.Context, userID, detectedTZ string) (*services.CodeGrant, error)
	// Status reports whether the user's account is bound to a chat.
	Status(ctx context.Context, userID string) (*services.LinkStatus, error)
}

// SettingsService defines delivery-settings operations consumed by handlers.
type SettingsService interface {
	Save(ctx context.Context, userID string, in services.SettingsInput) (*services.Settings, error)
	Get(ctx context.Context, userID string) (*services.Settings, error)
}

// SendService triggers an immediate delivery for the caller.
type SendService interface {
	SendNow(ctx context.Context, userID string, slot domain.Slot) error
}

// SweepService runs a scheduled delivery sweep.
type SweepService interface {
	Sweep(ctx context.Context, slot domain.Slot, now time.Time) (*services.SweepSummary, error)
}

// InboundService processes chat updates from the webhook.
type InboundService interface {
	HandleMessage(ctx context.Context, chatID int64, text string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the API. It depends on abstract
// service interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	linkSvc     LinkService
	settingsSvc SettingsService
	sendSvc     SendService
	sweepSvc    SweepService
	inboundSvc  InboundService
}

// New constructs a Handlers instance bound to the given services.
func New(link LinkService, settings SettingsService, send SendService,
	sweep SweepService, inbound InboundService) *Handlers {
	return &Handlers{
		linkSvc:     link,
		settingsSvc: settings,
		sendSvc:     send,
		sweepSvc:    sweep,
		inboundSvc:  inbound,
	}
}

//
// DTOs
//

// RequestCodeRequest is the JSON payload for issuing a verification code.
type RequestCodeRequest struct {
	// DetectedTimezone is the client's best guess at the user's IANA zone;
	// it seeds the bot configuration on first link. Optional.
	DetectedTimezone string `json:"detected_timezone"`
}

//
// Handlers
//

// RequestLinkCode issues a fresh 6-digit verification code for the caller.
// Any previously issued codes for the same user stop working immediately.
func (h *Handlers) RequestLinkCode(c *gin.Context) {
	var req RequestCodeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	grant, err := h.linkSvc.RequestCode(c.Request.Context(), middleware.UserIDFrom(c), req.DetectedTimezone)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCodeIssueFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, grant)
}

// LinkStatus reports whether the caller's account is linked to a chat.
func (h *Handlers) LinkStatus(c *gin.Context) {
	st, err := h.linkSvc.Status(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}
