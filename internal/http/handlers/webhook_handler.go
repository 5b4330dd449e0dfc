// Telegram webhook HTTP handler.
//
// POST /telegram/webhook receives update pushes from the chat platform. The
// secret-token check happens at the router; everything that reaches this
// handler is acknowledged with 200 no matter what, because a non-2xx answer
// makes the platform redeliver the same update and the processing here is
// idempotent but not free. Malformed payloads and processing failures are
// logged and swallowed.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/K41R0N/threadbot-sub001/internal/http/middleware"
)

// webhookUpdate mirrors the subset of the Telegram Update object this service
// consumes. Everything else in the payload is ignored.
type webhookUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
	EditedMessage *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"edited_message"`
}

// Webhook ingests one update from the chat platform. It always returns 200.
func (h *Handlers) Webhook(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	var upd webhookUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		lg.Warn().Err(err).Msg("webhook payload not parseable; acknowledged anyway")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	chatID, text := int64(0), ""
	switch {
	case upd.Message != nil:
		chatID, text = upd.Message.Chat.ID, upd.Message.Text
	case upd.EditedMessage != nil:
		chatID, text = upd.EditedMessage.Chat.ID, upd.EditedMessage.Text
	}
	if chatID == 0 {
		// Non-message update (poll, channel post). Nothing to do.
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := h.inboundSvc.HandleMessage(c.Request.Context(), chatID, text); err != nil {
		lg.Error().Err(err).
			Int64("update_id", upd.UpdateID).
			Int64("chat_id", chatID).
			Msg("webhook update processing failed; acknowledged anyway")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
