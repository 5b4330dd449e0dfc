// Delivery-settings HTTP handlers.
//
// This file exposes:
//   - PUT /api/v1/settings  (save timezone, slot times, active flag, source)
//   - GET /api/v1/settings  (read the stored configuration)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K41R0N/threadbot-sub001/internal/http/middleware"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

// SaveSettings validates and stores the caller's delivery settings. The chat
// binding and scheduler state are preserved across saves.
func (h *Handlers) SaveSettings(c *gin.Context) {
	var in services.SettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	out, err := h.settingsSvc.Save(c.Request.Context(), middleware.UserIDFrom(c), in)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSettings) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidSettings, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}

// GetSettings returns the caller's stored delivery settings.
func (h *Handlers) GetSettings(c *gin.Context) {
	out, err := h.settingsSvc.Get(c.Request.Context(), middleware.UserIDFrom(c))
	if err != nil {
		if errors.Is(err, services.ErrConfigNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no settings stored for this user")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, out)
}
