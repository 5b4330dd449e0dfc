// Package repo implements the data persistence layer for the delivery and
// linking stores, backed by GORM. This file provides repository functions for
// the manual-send cooldown ledger.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

// ErrCooldownSpacing and ErrCooldownBudget classify why a manual send was
// refused: too soon after the previous send, or over the hourly cap.
var (
	ErrCooldownSpacing = errors.New("cooldown: minimum spacing not elapsed")
	ErrCooldownBudget  = errors.New("cooldown: hourly send budget exhausted")
)

// TakeCooldown reserves one manual send for (userID, date, slot) at time now,
// enforcing a minimum spacing between sends and a rolling per-hour cap. The
// check and the counter bump run in one transaction; SQLite serializes the
// write so two racing calls cannot both pass on the last budget unit.
//
// The hourly window is rolling: once windowStartedAt is more than an hour in
// the past the counter resets rather than waiting for a calendar boundary.
func TakeCooldown(ctx context.Context, db *gorm.DB, userID, date string, slot domain.Slot, now time.Time, minSpacing time.Duration, maxPerWindow int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cd domain.SendCooldown
		err := tx.Where("user_id = ? AND date = ? AND slot = ?", userID, date, string(slot)).
			First(&cd).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cd = domain.SendCooldown{
				ID:              uuid.NewString(),
				UserID:          userID,
				Date:            date,
				Slot:            slot,
				SendCount:       1,
				WindowStartedAt: now,
				LastSentAt:      now,
			}
			return tx.Create(&cd).Error
		case err != nil:
			return err
		}

		if now.Sub(cd.LastSentAt) < minSpacing {
			return ErrCooldownSpacing
		}

		if now.Sub(cd.WindowStartedAt) >= time.Hour {
			// Window elapsed; start a fresh one.
			cd.WindowStartedAt = now
			cd.SendCount = 0
		}
		if cd.SendCount >= maxPerWindow {
			return ErrCooldownBudget
		}

		cd.SendCount++
		cd.LastSentAt = now
		return tx.Model(&domain.SendCooldown{}).
			Where("id = ?", cd.ID).
			Updates(map[string]any{
				"send_count":        cd.SendCount,
				"window_started_at": cd.WindowStartedAt,
				"last_sent_at":      cd.LastSentAt,
			}).Error
	})
}
