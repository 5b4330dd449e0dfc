package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

// User-facing chat messages. Kept in one place so wording changes do not
// ripple through the services.
const (
	msgLinked = "You're all set! Your account is now linked to this chat. " +
		"Prompts will arrive at your configured times."

	msgAlreadyLinked = "This chat is already linked to an account. " +
		"You're good to go."

	msgCodeNotFound = "That code doesn't match any pending verification. " +
		"Codes expire after 10 minutes; please request a new one from the app."

	msgNotLinked = "This chat isn't linked to an account yet. " +
		"Open the app and request a verification code to get started."

	msgReplySaved = "Got it, your reply has been saved."

	msgNoPromptYet = "Thanks for your message! You'll be able to reply once " +
		"your first prompt arrives."
)

var themeTitle = cases.Title(language.English)

// FormatPromptMessage renders a prompt record as the chat message body. The
// theme becomes a title-cased heading followed by the prompts as a numbered
// list. Escaping for the wire format happens in the gateway, not here.
func FormatPromptMessage(rec *domain.PromptRecord) string {
	var b strings.Builder
	if rec.Theme != "" {
		b.WriteString(themeTitle.String(rec.Theme))
		b.WriteString("\n\n")
	}
	if len(rec.Prompts) == 1 {
		b.WriteString(rec.Prompts[0])
		return b.String()
	}
	for i, p := range rec.Prompts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, p)
	}
	return b.String()
}
