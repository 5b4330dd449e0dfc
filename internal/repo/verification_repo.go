// Package repo implements the data persistence layer for the delivery and
// linking stores, backed by GORM. This file provides repository functions for
// the verification-code ledger.
//
// Pending-ness (unused and unexpired) is enforced by filtering on every
// query; expiry is never written back to rows. Consumption is a single
// conditional UPDATE so a code can be bound to at most one chat even under
// concurrent webhook deliveries.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

// DeleteCodesForUser removes every verification code owned by userID,
// regardless of state. Called when a fresh code is issued (one outstanding
// code per user) and on account deletion.
func DeleteCodesForUser(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.VerificationCode{}).Error
}

// CreateCode persists a new verification code row.
func CreateCode(ctx context.Context, db *gorm.DB, code *domain.VerificationCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(code).Error
}

// FindPendingByCode returns the newest pending row with this exact code
// value, or ErrNotFound. Issue-time redraws keep pending values unique, so
// the newest-first ordering only matters as a tiebreak for rows created
// before that guarantee held.
func FindPendingByCode(ctx context.Context, db *gorm.DB, code string, now time.Time) (*domain.VerificationCode, error) {
	var rec domain.VerificationCode
	err := db.WithContext(ctx).
		Where("code = ? AND used_at IS NULL AND expires_at > ?", code, now).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindLatestPending returns the most recently created pending code across
// all users, or ErrNotFound. This backs the bare-greeting resolution path,
// which carries no user identity.
func FindLatestPending(ctx context.Context, db *gorm.DB, now time.Time) (*domain.VerificationCode, error) {
	var rec domain.VerificationCode
	err := db.WithContext(ctx).
		Where("used_at IS NULL AND expires_at > ?", now).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ConsumeCode marks the code used and binds chatID to it. The UPDATE is
// guarded on the row still being pending, so exactly one concurrent caller
// observes true; every other caller (including a replay of the same message)
// observes false.
func ConsumeCode(ctx context.Context, db *gorm.DB, id string, chatID int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.VerificationCode{}).
		Where("id = ? AND used_at IS NULL AND expires_at > ?", id, now).
		Updates(map[string]any{
			"used_at": now,
			"chat_id": chatID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// HasUsedCodeForChat reports whether some code was already consumed by this
// chat. Distinguishes "you're already linked" from "code not found" when a
// verification attempt fails to resolve.
func HasUsedCodeForChat(ctx context.Context, db *gorm.DB, chatID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.VerificationCode{}).
		Where("chat_id = ? AND used_at IS NOT NULL", chatID).
		Count(&n).Error
	return n > 0, err
}

// PurgeExpiredCodes deletes unused codes whose expiry has passed and returns
// the number of rows removed. Used rows are kept as the linking audit trail.
func PurgeExpiredCodes(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("used_at IS NULL AND expires_at <= ?", now).
		Delete(&domain.VerificationCode{})
	return res.RowsAffected, res.Error
}
