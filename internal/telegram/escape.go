// Package telegram implements the outbound messaging gateway: a thin HTTP
// client for the Bot API (sendMessage, setWebhook), MarkdownV2 escaping, and
// per-chat send throttling. It is the single point of contact with the chat
// platform; nothing else in the service talks to it directly.
package telegram

import "strings"

// markdownV2Reserved is the full set of characters the MarkdownV2 dialect
// requires to be backslash-escaped in literal text. The backslash itself is
// handled alongside them so escaping is total regardless of input.
const markdownV2Reserved = `\_*[]()~` + "`" + `>#+-=|{}.!`

// EscapeMarkdownV2 returns s with every MarkdownV2 reserved character
// backslash-escaped so the platform renders the original text literally.
// The function walks the string once, so an already-present backslash is
// escaped like any other reserved character and cannot re-arm a later one.
func EscapeMarkdownV2(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if r < 128 && strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
