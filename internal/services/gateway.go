package services

import "context"

// Gateway abstracts the chat platform used to deliver messages. The concrete
// implementation lives in internal/telegram; services depend only on this
// interface so tests can substitute a fake.
type Gateway interface {
	// SendMessage delivers text to a chat. It reports (true, nil) when the
	// platform accepted the message, (false, nil) when the platform
	// definitively rejected it, and (false, err) on transport failure.
	SendMessage(ctx context.Context, chatID int64, text string) (bool, error)

	// RegisterWebhook points the platform's update stream at url, guarded by
	// the given secret token.
	RegisterWebhook(ctx context.Context, url, secret string) (bool, error)
}

// ExternalSource resolves prompt content for users whose prompt source is
// "external". Implementations fetch the text from an outside system; the
// delivery sweep treats ErrNoPrompt as "nothing to send today".
type ExternalSource interface {
	PromptForDate(ctx context.Context, userID, date string) (string, error)
}
