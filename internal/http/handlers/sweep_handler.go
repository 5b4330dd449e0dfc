// Sweep trigger HTTP handler.
//
// POST /internal/sweep runs a delivery sweep on demand. The route is meant
// for the external cron that fires every five minutes and is guarded by the
// X-Sweep-Secret header at the router. An explicit slot query parameter
// restricts the sweep to one slot; when omitted both slots are swept, which
// is what the cron does since eligibility is decided per user anyway.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

// SweepResponse aggregates the summaries of the swept slots.
type SweepResponse struct {
	Summaries []services.SweepSummary `json:"summaries"`
}

// RunSweep executes the delivery sweep for the requested slot, or for both
// slots when none is given.
func (h *Handlers) RunSweep(c *gin.Context) {
	now := time.Now().UTC()

	slots := []domain.Slot{domain.SlotMorning, domain.SlotEvening}
	if q := c.Query("slot"); q != "" {
		s := domain.Slot(q)
		if !s.Valid() {
			fail(c, http.StatusBadRequest, ErrCodeInvalidSlot, "slot must be morning or evening")
			return
		}
		slots = []domain.Slot{s}
	}

	resp := SweepResponse{}
	for _, slot := range slots {
		sum, err := h.sweepSvc.Sweep(c.Request.Context(), slot, now)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, err.Error())
			return
		}
		resp.Summaries = append(resp.Summaries, *sum)
	}
	ok(c, http.StatusOK, resp)
}
