// Package repo implements the data persistence layer for the delivery and
// linking stores, backed by GORM. This file provides repository functions for
// the PromptRecord calendar.
//
// Error semantics follow the package convention: missing rows surface as
// ErrNotFound (gorm.ErrRecordNotFound), everything else is the raw gorm error.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

// replySeparator joins multiple replies to the same prompt record.
const replySeparator = "\n\n"

// CreatePromptBatch inserts a batch of prompt records, generating IDs for any
// record without one. The (user, date, slot) unique index rejects duplicate
// calendar cells; callers own deciding whether that is an error.
func CreatePromptBatch(ctx context.Context, db *gorm.DB, records []domain.PromptRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].Status == "" {
			records[i].Status = domain.PromptScheduled
		}
		records[i].CreatedAt = now
	}
	return db.WithContext(ctx).Create(&records).Error
}

// GetPrompt fetches the record for one calendar cell, or ErrNotFound.
func GetPrompt(ctx context.Context, db *gorm.DB, userID, date string, slot domain.Slot) (*domain.PromptRecord, error) {
	var rec domain.PromptRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND date = ? AND slot = ?", userID, date, string(slot)).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountPrompts returns the number of prompt records owned by userID. The
// linking flow uses this to decide whether to auto-activate delivery.
func CountPrompts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.PromptRecord{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// MarkPromptSent transitions a record to sent. The UPDATE is guarded on the
// current status so the draft/scheduled → sent transition happens exactly
// once; a second caller sees false and must not treat the slot as fresh.
func MarkPromptSent(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.PromptRecord{}).
		Where("id = ? AND status <> ?", id, domain.PromptSent).
		Updates(map[string]any{
			"status":  domain.PromptSent,
			"sent_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// LatestSentPrompt returns the most recently sent record for userID, which
// is the record an inbound free-form reply is attributed to. Ordering prefers the
// newest calendar date, breaking ties by send time.
func LatestSentPrompt(ctx context.Context, db *gorm.DB, userID string) (*domain.PromptRecord, error) {
	var rec domain.PromptRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.PromptSent).
		Order("date DESC, sent_at DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AppendReply appends text to the record's reply field, preserving earlier
// replies with a blank-line separator. Runs in a transaction so concurrent
// replies both land.
func AppendReply(ctx context.Context, db *gorm.DB, id, text string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.PromptRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			return err
		}
		joined := text
		if rec.Reply != nil && *rec.Reply != "" {
			joined = *rec.Reply + replySeparator + text
		}
		return tx.Model(&domain.PromptRecord{}).
			Where("id = ?", id).
			Update("reply", joined).Error
	})
}
