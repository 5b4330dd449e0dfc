// Manual send HTTP handler.
//
// POST /api/v1/send-now delivers the caller's prompt for a slot immediately,
// bypassing the delivery window. The per-cell cooldown still applies.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/http/middleware"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

// SendNowRequest is the JSON payload for an immediate delivery.
type SendNowRequest struct {
	Slot string `json:"slot" binding:"required"`
}

// SendNow triggers an immediate delivery of the caller's prompt.
func (h *Handlers) SendNow(c *gin.Context) {
	var req SendNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.sendSvc.SendNow(c.Request.Context(), middleware.UserIDFrom(c), domain.Slot(req.Slot))
	switch {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"status": "sent"})
	case errors.Is(err, services.ErrInvalidSlot):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSlot, err.Error())
	case errors.Is(err, services.ErrNotLinked):
		fail(c, http.StatusConflict, ErrCodeNotLinked, "link your account to a chat first")
	case errors.Is(err, services.ErrNoPrompt):
		fail(c, http.StatusNotFound, ErrCodeNoPrompt, "no prompt content for this slot")
	case errors.Is(err, services.ErrCooldown):
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	default:
		fail(c, http.StatusBadGateway, ErrCodeSendFailed, err.Error())
	}
}
