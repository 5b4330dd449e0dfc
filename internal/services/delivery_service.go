// Package services – DeliveryService
//
// This file implements the scheduled delivery sweep. A sweep walks every
// active bot configuration, determines which users are inside the delivery
// window for the requested slot, claims the (user, date, slot) cell so that
// concurrent or repeated sweeps cannot double-send, resolves the prompt
// content for that user, and delivers it through the chat gateway. Failed
// deliveries release the claim so a later tick inside the window can retry;
// successful deliveries leave the claim in place, making the send
// at-most-once per user, local day, and slot.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
)

// Half-width of the delivery window around a slot's configured time,
// inclusive on both ends.
const windowSlack = 5 * time.Minute

// SweepOutcome describes what happened to a single user during a sweep.
type SweepOutcome struct {
	UserID string `json:"user_id"`
	Sent   bool   `json:"sent"`
	Detail string `json:"detail"`
}

// SweepSummary aggregates a full sweep run.
type SweepSummary struct {
	Slot      domain.Slot    `json:"slot"`
	Processed int            `json:"processed"`
	Sent      int            `json:"sent"`
	Outcomes  []SweepOutcome `json:"outcomes"`
}

// DeliveryService owns the scheduled sweep and the shared content resolution
// used by both the sweep and the manual send path.
type DeliveryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gateway delivers messages to the chat platform.
	Gateway Gateway
	// External resolves prompt content for externally sourced users.
	// May be nil, in which case external users get a no-content failure.
	External ExternalSource

	// Concurrency bounds how many users a sweep processes in parallel.
	Concurrency int
	// UserTimeout caps the time spent on a single user's delivery.
	UserTimeout time.Duration
}

// NewDeliveryService constructs a DeliveryService with default bounds.
func NewDeliveryService(db *gorm.DB, gw Gateway, ext ExternalSource) *DeliveryService {
	return &DeliveryService{
		DB:          db,
		Gateway:     gw,
		External:    ext,
		Concurrency: 8,
		UserTimeout: 5 * time.Second,
	}
}

// Sweep processes every active configuration for the given slot at the given
// instant. One user's failure never aborts the sweep; it is recorded as an
// outcome and the walk continues.
func (s *DeliveryService) Sweep(ctx context.Context, slot domain.Slot, now time.Time) (*SweepSummary, error) {
	tr := otel.Tracer("services/DeliveryService")
	ctx, span := tr.Start(ctx, "Sweep",
		trace.WithAttributes(attribute.String("sweep.slot", string(slot))),
	)
	defer span.End()

	if !slot.Valid() {
		return nil, ErrInvalidSlot
	}

	configs, err := repo.ListActiveConfigs(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	summary := &SweepSummary{Slot: slot, Processed: len(configs)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	limit := s.Concurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)

	for i := range configs {
		cfg := configs[i]
		g.Go(func() error {
			out, attempted := s.sweepOne(ctx, &cfg, slot, now)
			if !attempted {
				return nil
			}
			mu.Lock()
			summary.Outcomes = append(summary.Outcomes, out)
			if out.Sent {
				summary.Sent++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("sweep.processed", summary.Processed),
		attribute.Int("sweep.sent", summary.Sent),
	)
	return summary, nil
}

// sweepOne handles a single user. attempted is false when the user is simply
// outside the delivery window and produced no outcome.
func (s *DeliveryService) sweepOne(ctx context.Context, cfg *domain.BotConfig, slot domain.Slot, now time.Time) (SweepOutcome, bool) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		sendFailuresTotal.WithLabelValues("bad_timezone").Inc()
		return SweepOutcome{UserID: cfg.UserID, Detail: "invalid timezone: " + cfg.Timezone}, true
	}
	local := now.In(loc)

	slotTime := cfg.MorningTime
	if slot == domain.SlotEvening {
		slotTime = cfg.EveningTime
	}
	ok, err := withinWindow(local, slotTime)
	if err != nil {
		sendFailuresTotal.WithLabelValues("bad_slot_time").Inc()
		return SweepOutcome{UserID: cfg.UserID, Detail: "invalid slot time: " + slotTime}, true
	}
	if !ok {
		return SweepOutcome{}, false
	}

	localDate := local.Format(domain.DateKey)
	if cfg.ChatID == nil {
		sendFailuresTotal.WithLabelValues("no_chat").Inc()
		return SweepOutcome{UserID: cfg.UserID, Detail: "no chat binding"}, true
	}

	won, err := repo.ClaimSend(ctx, s.DB, cfg.UserID, localDate, slot, now)
	if err != nil {
		sendFailuresTotal.WithLabelValues("claim").Inc()
		return SweepOutcome{UserID: cfg.UserID, Detail: "claim failed: " + err.Error()}, true
	}
	if !won {
		return SweepOutcome{UserID: cfg.UserID, Detail: "already sent for this slot"}, true
	}

	uctx := ctx
	if s.UserTimeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, s.UserTimeout)
		defer cancel()
	}

	if err := s.deliver(uctx, cfg, slot, localDate); err != nil {
		if rerr := repo.ReleaseSend(context.WithoutCancel(ctx), s.DB, cfg.UserID, localDate, slot); rerr != nil {
			log.Error().Err(rerr).Str("user_id", cfg.UserID).Msg("release claim failed")
		}
		log.Warn().Err(err).
			Str("user_id", cfg.UserID).
			Str("slot", string(slot)).
			Msg("delivery failed; claim released")
		return SweepOutcome{UserID: cfg.UserID, Detail: err.Error()}, true
	}

	promptsSentTotal.WithLabelValues(string(slot), string(cfg.Source)).Inc()
	return SweepOutcome{UserID: cfg.UserID, Sent: true, Detail: "sent"}, true
}

// deliver resolves content and pushes it to the user's chat. Any error means
// the message did not arrive and the caller must release the claim.
func (s *DeliveryService) deliver(ctx context.Context, cfg *domain.BotConfig, slot domain.Slot, localDate string) error {
	text, rec, err := s.resolveContent(ctx, cfg, slot, localDate)
	if err != nil {
		sendFailuresTotal.WithLabelValues("no_content").Inc()
		return err
	}

	delivered, err := s.Gateway.SendMessage(ctx, *cfg.ChatID, text)
	if err != nil {
		sendFailuresTotal.WithLabelValues("transport").Inc()
		return fmt.Errorf("send message: %w", err)
	}
	if !delivered {
		sendFailuresTotal.WithLabelValues("rejected").Inc()
		return ErrSendRejected
	}

	if rec != nil {
		if _, err := repo.MarkPromptSent(ctx, s.DB, rec.ID, time.Now().UTC()); err != nil {
			log.Error().Err(err).Str("prompt_id", rec.ID).Msg("mark prompt sent failed")
		}
	}
	return nil
}

// resolveContent picks the message body for a (user, date, slot) cell based
// on the configured prompt source. rec is non-nil only for generated prompts
// that should be marked sent after delivery.
func (s *DeliveryService) resolveContent(ctx context.Context, cfg *domain.BotConfig, slot domain.Slot, localDate string) (string, *domain.PromptRecord, error) {
	switch cfg.Source {
	case domain.SourceExternal:
		if s.External == nil {
			return "", nil, ErrNoPrompt
		}
		text, err := s.External.PromptForDate(ctx, cfg.UserID, localDate)
		if err != nil {
			return "", nil, err
		}
		return text, nil, nil
	default:
		rec, err := repo.GetPrompt(ctx, s.DB, cfg.UserID, localDate, slot)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, ErrNoPrompt
			}
			return "", nil, err
		}
		return FormatPromptMessage(rec), rec, nil
	}
}

// withinWindow reports whether local time falls inside the inclusive
// five-minute window around an "HH:MM" slot time. The distance is measured
// in seconds of day with wraparound (a 23:58 slot still matches 00:02) and
// floored to whole elapsed minutes, so 08:54:30 sits 5 minutes from a 09:00
// slot and is eligible while 08:53:59 sits 6 minutes away and is not.
func withinWindow(local time.Time, slotTime string) (bool, error) {
	target, err := time.Parse("15:04", slotTime)
	if err != nil {
		return false, err
	}
	nowSec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	targetSec := target.Hour()*3600 + target.Minute()*60

	diff := nowSec - targetSec
	if diff < 0 {
		diff = -diff
	}
	if diff > 43200 {
		diff = 86400 - diff
	}
	return time.Duration(diff/60)*time.Minute <= windowSlack, nil
}
