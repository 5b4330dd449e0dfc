// Package services – InboundService
//
// This file routes messages that users send to the bot. Every inbound text is
// classified exactly once, in priority order: a 6-digit verification code,
// then a bare greeting, then free text. Codes and greetings drive account
// linking; free text from a linked chat is stored as a reply to the most
// recently delivered prompt. Replies back to the user are best effort; a
// failed confirmation never fails the update.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

var greetingWords = map[string]bool{
	"hello": true,
	"hi":    true,
	"hey":   true,
}

// InboundService handles chat updates arriving through the webhook.
type InboundService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gateway sends conversational replies back to the chat.
	Gateway Gateway

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewInboundService constructs an InboundService.
func NewInboundService(db *gorm.DB, gw Gateway) *InboundService {
	return &InboundService{DB: db, Gateway: gw, Now: time.Now}
}

// HandleMessage classifies and processes one inbound chat message. Errors are
// for the caller's logs only; the webhook acknowledges regardless.
func (s *InboundService) HandleMessage(ctx context.Context, chatID int64, text string) error {
	tr := otel.Tracer("services/InboundService")
	ctx, span := tr.Start(ctx, "HandleMessage",
		trace.WithAttributes(attribute.Int64("chat.id", chatID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		webhookUpdatesTotal.WithLabelValues("empty").Inc()
		return nil
	}

	if m := codePattern.FindStringSubmatch(text); m != nil {
		webhookUpdatesTotal.WithLabelValues("code").Inc()
		return s.verify(ctx, chatID, m[1])
	}
	if isGreeting(text) {
		webhookUpdatesTotal.WithLabelValues("greeting").Inc()
		return s.verify(ctx, chatID, "")
	}

	webhookUpdatesTotal.WithLabelValues("text").Inc()
	return s.recordReply(ctx, chatID, text)
}

// verify resolves a pending verification and binds the chat on success. An
// empty code means the greeting path: the most recently issued pending code
// wins, whoever it belongs to.
func (s *InboundService) verify(ctx context.Context, chatID int64, code string) error {
	now := s.Now().UTC()

	var (
		rec *domain.VerificationCode
		err error
	)
	if code != "" {
		rec, err = repo.FindPendingByCode(ctx, s.DB, code, now)
	} else {
		rec, err = repo.FindLatestPending(ctx, s.DB, now)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return s.verifyMiss(ctx, chatID)
		}
		verificationsTotal.WithLabelValues("error").Inc()
		return err
	}

	won, err := repo.ConsumeCode(ctx, s.DB, rec.ID, chatID, now)
	if err != nil {
		verificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !won {
		return s.verifyMiss(ctx, chatID)
	}

	if err := s.bindChat(ctx, rec, chatID); err != nil {
		verificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	verificationsTotal.WithLabelValues("linked").Inc()
	s.reply(ctx, chatID, msgLinked)
	return nil
}

// verifyMiss is the shared dead end for unknown, expired, and already
// consumed codes. A chat that linked earlier gets a friendlier answer.
func (s *InboundService) verifyMiss(ctx context.Context, chatID int64) error {
	linked, err := repo.HasUsedCodeForChat(ctx, s.DB, chatID)
	if err != nil {
		verificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	if linked {
		verificationsTotal.WithLabelValues("already_linked").Inc()
		s.reply(ctx, chatID, msgAlreadyLinked)
		return nil
	}
	verificationsTotal.WithLabelValues("not_found").Inc()
	s.reply(ctx, chatID, msgCodeNotFound)
	return nil
}

// bindChat upserts the user's bot configuration with the new chat binding.
// The configuration activates only when the user already has prompt content;
// otherwise it stays dormant until prompts exist.
func (s *InboundService) bindChat(ctx context.Context, rec *domain.VerificationCode, chatID int64) error {
	n, err := repo.CountPrompts(ctx, s.DB, rec.UserID)
	if err != nil {
		return err
	}

	cfg, err := repo.GetConfigByUser(ctx, s.DB, rec.UserID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		tz := rec.DetectedTZ
		if tz == "" {
			tz = "UTC"
		}
		if _, lerr := time.LoadLocation(tz); lerr != nil {
			tz = "UTC"
		}
		cfg = &domain.BotConfig{
			UserID:      rec.UserID,
			Timezone:    tz,
			MorningTime: "08:00",
			EveningTime: "20:00",
			Source:      domain.SourceGenerated,
		}
	case err != nil:
		return err
	}

	cfg.ChatID = &chatID
	cfg.Active = n > 0
	if cfg.Active {
		cfg.Source = domain.SourceGenerated
	}
	return repo.UpsertConfig(ctx, s.DB, cfg)
}

// recordReply attaches free text to the user's most recently sent prompt.
func (s *InboundService) recordReply(ctx context.Context, chatID int64, text string) error {
	cfg, err := repo.GetConfigByChat(ctx, s.DB, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.reply(ctx, chatID, msgNotLinked)
			return nil
		}
		return err
	}

	latest, err := repo.LatestSentPrompt(ctx, s.DB, cfg.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.reply(ctx, chatID, msgNoPromptYet)
			return nil
		}
		return err
	}

	if err := repo.AppendReply(ctx, s.DB, latest.ID, text); err != nil {
		return err
	}
	s.reply(ctx, chatID, msgReplySaved)
	return nil
}

// reply sends a conversational message without letting its failure surface.
func (s *InboundService) reply(ctx context.Context, chatID int64, text string) {
	if delivered, err := s.Gateway.SendMessage(ctx, chatID, text); err != nil || !delivered {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("conversational reply not delivered")
	}
}

// isGreeting reports whether the message is a bare greeting, ignoring case
// and trailing punctuation.
func isGreeting(text string) bool {
	word := strings.ToLower(strings.TrimRight(text, "!.,?"))
	return greetingWords[strings.TrimSpace(word)]
}
