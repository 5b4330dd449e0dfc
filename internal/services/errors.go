// Package services implements the business logic for prompt delivery,
// account linking, inbound message routing, and delivery settings. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrNotLinked indicates the user has no bot configuration or no chat
	// binding yet, so nothing can be delivered to them.
	ErrNotLinked = errors.New("account is not linked to a chat")

	// ErrInvalidSlot is returned when a slot argument is neither "morning"
	// nor "evening".
	ErrInvalidSlot = errors.New("slot must be morning or evening")

	// ErrNoPrompt indicates no prompt content exists for the requested
	// (user, date, slot) cell.
	ErrNoPrompt = errors.New("no prompt content for this slot")

	// ErrSendRejected indicates the chat platform refused the message
	// (invalid chat, bot blocked); the message will never arrive.
	ErrSendRejected = errors.New("chat platform rejected the message")

	// ErrCooldown is returned by the manual send path when either the
	// 30-second spacing or the hourly budget refuses the send.
	ErrCooldown = errors.New("manual send refused by cooldown")

	// ErrInvalidSettings wraps validation failures of a settings payload.
	ErrInvalidSettings = errors.New("invalid delivery settings")

	// ErrConfigNotFound indicates the user has no stored bot configuration.
	ErrConfigNotFound = errors.New("bot configuration not found")
)
