// Package repo implements the data persistence layer for the delivery and
// linking stores, backed by GORM. This file provides repository functions for
// the BotConfig model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a config is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
//
// The one non-CRUD operation is ClaimSend/ReleaseSend, the conditional update
// pair that gives the delivery sweep its at-most-once guarantee. The claim is
// a single UPDATE guarded by the previous last-sent state, so two overlapping
// sweeps (or a sweep racing a manual send) cannot both win it.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetConfigByUser fetches the BotConfig owned by userID, or ErrNotFound.
func GetConfigByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.BotConfig, error) {
	var cfg domain.BotConfig
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigByChat fetches the BotConfig bound to chatID, or ErrNotFound.
// This is the lookup the shared webhook uses to attribute inbound messages.
func GetConfigByChat(ctx context.Context, db *gorm.DB, chatID int64) (*domain.BotConfig, error) {
	var cfg domain.BotConfig
	if err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListActiveConfigs returns every config with the active flag set, ordered by
// user for deterministic sweep output.
func ListActiveConfigs(ctx context.Context, db *gorm.DB) ([]domain.BotConfig, error) {
	var out []domain.BotConfig
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}

// UpsertConfig inserts a new config or updates the existing row for
// cfg.UserID in place. The ID of an existing row is preserved.
func UpsertConfig(ctx context.Context, db *gorm.DB, cfg *domain.BotConfig) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.BotConfig
		err := tx.Where("user_id = ?", cfg.UserID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if cfg.ID == "" {
				cfg.ID = uuid.NewString()
			}
			cfg.CreatedAt = time.Now().UTC()
			return tx.Create(cfg).Error
		case err != nil:
			return err
		default:
			cfg.ID = existing.ID
			cfg.CreatedAt = existing.CreatedAt
			return tx.Model(&domain.BotConfig{}).
				Where("id = ?", existing.ID).
				Select("Timezone", "MorningTime", "EveningTime", "Active", "ChatID", "Source",
					"WebhookStatus", "WebhookError", "WebhookCheckedAt").
				Updates(cfg).Error
		}
	})
}

// ClaimSend atomically records that a send for (localDate, slot) is underway
// for userID. It returns true when this caller won the claim, false when the
// slot was already claimed for that date (the skip signal for the sweep).
//
// The guard is the previous state itself: the UPDATE only applies when the
// stored (last_sent_date, last_sent_slot) differs from the claim. This is the
// concurrency boundary; a read-then-write here would race overlapping sweeps.
func ClaimSend(ctx context.Context, db *gorm.DB, userID, localDate string, slot domain.Slot, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.BotConfig{}).
		Where("user_id = ?", userID).
		Where("NOT (last_sent_date = ? AND last_sent_slot = ?)", localDate, string(slot)).
		Updates(map[string]any{
			"last_sent_date": localDate,
			"last_sent_slot": string(slot),
			"last_sent_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseSend undoes a claim after a failed delivery so that the slot is not
// falsely marked sent. It only clears the state when it still matches the
// claim, leaving any newer claim untouched.
func ReleaseSend(ctx context.Context, db *gorm.DB, userID, localDate string, slot domain.Slot) error {
	return db.WithContext(ctx).Model(&domain.BotConfig{}).
		Where("user_id = ? AND last_sent_date = ? AND last_sent_slot = ?", userID, localDate, string(slot)).
		Updates(map[string]any{
			"last_sent_date": "",
			"last_sent_slot": "",
			"last_sent_at":   nil,
		}).Error
}

// RecordWebhookOutcome stores the result of the latest webhook registration
// attempt on the user's config.
func RecordWebhookOutcome(ctx context.Context, db *gorm.DB, userID, status, errMsg string, at time.Time) error {
	return db.WithContext(ctx).Model(&domain.BotConfig{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"webhook_status":     status,
			"webhook_error":      errMsg,
			"webhook_checked_at": at,
		}).Error
}
