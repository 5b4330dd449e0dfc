// Package services – SendService
//
// This file implements the manual "send now" path. It bypasses the delivery
// window entirely but still honors the per-cell cooldown (30-second spacing,
// ten sends per rolling hour) and records the send in the scheduler state so
// a later sweep does not deliver the same slot again.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
)

const (
	cooldownSpacing = 30 * time.Second
	cooldownBudget  = 10
)

// SendService triggers an immediate delivery for one user and slot.
type SendService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Delivery supplies content resolution and the gateway.
	Delivery *DeliveryService

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewSendService constructs a SendService on top of an existing
// DeliveryService.
func NewSendService(db *gorm.DB, delivery *DeliveryService) *SendService {
	return &SendService{DB: db, Delivery: delivery, Now: time.Now}
}

// SendNow delivers the user's prompt for the given slot immediately.
// It returns ErrCooldown when pacing refuses the send and ErrNoPrompt when
// there is nothing to deliver.
func (s *SendService) SendNow(ctx context.Context, userID string, slot domain.Slot) error {
	tr := otel.Tracer("services/SendService")
	ctx, span := tr.Start(ctx, "SendNow",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("sweep.slot", string(slot)),
		),
	)
	defer span.End()

	if !slot.Valid() {
		return ErrInvalidSlot
	}

	cfg, err := repo.GetConfigByUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}
	if cfg.ChatID == nil {
		return ErrNotLinked
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	now := s.Now().UTC()
	localDate := now.In(loc).Format(domain.DateKey)

	err = repo.TakeCooldown(ctx, s.DB, userID, localDate, slot, now, cooldownSpacing, cooldownBudget)
	if err != nil {
		if errors.Is(err, repo.ErrCooldownSpacing) || errors.Is(err, repo.ErrCooldownBudget) {
			return fmt.Errorf("%w: %w", ErrCooldown, err)
		}
		return err
	}

	if err := s.Delivery.deliver(ctx, cfg, slot, localDate); err != nil {
		return err
	}
	promptsSentTotal.WithLabelValues(string(slot), string(cfg.Source)).Inc()

	// Record the send in scheduler state so the sweep skips this slot today.
	// Manual sends may repeat within a day, so losing the claim is fine.
	if _, err := repo.ClaimSend(ctx, s.DB, userID, localDate, slot, now); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("record manual send in scheduler state failed")
	}
	return nil
}
