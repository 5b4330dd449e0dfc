// Package domain defines the persistence models for the prompt delivery and
// account-linking core: per-user bot configuration, the prompt calendar,
// one-time verification codes, and manual-send cooldowns. These types are
// mapped with GORM and form the core data layer of the service.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Slot identifies one of the two daily delivery windows.
type Slot string

// Delivery slots.
const (
	SlotMorning Slot = "morning"
	SlotEvening Slot = "evening"
)

// Valid reports whether s is a known slot value.
func (s Slot) Valid() bool { return s == SlotMorning || s == SlotEvening }

// PromptSource selects where a user's daily prompt content comes from.
type PromptSource string

// Prompt sources. SourceGenerated reads the prompt calendar populated by the
// generation pipeline; SourceExternal resolves content through a
// user-supplied external database at send time.
const (
	SourceGenerated PromptSource = "generated"
	SourceExternal  PromptSource = "external"
)

// DateKey is the canonical calendar-date key format ("2006-01-02") used by
// PromptRecord.Date, BotConfig.LastSentDate, and SendCooldown.Date. Dates are
// always the user's local date, never UTC.
const DateKey = "2006-01-02"

// PromptStatus values for PromptRecord.Status.
const (
	PromptDraft     = "draft"
	PromptScheduled = "scheduled"
	PromptSent      = "sent"
)

// BotConfig holds one user's delivery settings and the per-user scheduler
// state. A single shared bot serves every user, so the only chat-platform
// identity stored here is the chat binding established during linking.
//
// Fields:
//   - UserID: account identity; one config per user (unique).
//   - Timezone: IANA zone name the send times are interpreted in.
//   - MorningTime / EveningTime: local wall-clock send times ("15:04").
//   - Active: master switch consulted by the delivery sweep.
//   - ChatID: bound chat identifier; nil until linking completes.
//   - Source: prompt content source (generated or external).
//   - LastSentDate / LastSentSlot / LastSentAt: the at-most-once send state;
//     updated only through the conditional claim in the repo layer.
//   - WebhookStatus / WebhookError / WebhookCheckedAt: outcome of the last
//     webhook registration attempt, surfaced to the settings UI.
type BotConfig struct {
	ID           string       `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string       `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_bot_config_user"`
	Timezone     string       `json:"timezone"      gorm:"type:varchar(64);not null"`
	MorningTime  string       `json:"morning_time"  gorm:"type:varchar(5);not null;default:'08:00'"`
	EveningTime  string       `json:"evening_time"  gorm:"type:varchar(5);not null;default:'20:00'"`
	Active       bool         `json:"active"        gorm:"not null;default:false"`
	ChatID       *int64       `json:"chat_id,omitempty" gorm:"uniqueIndex:ux_bot_config_chat"`
	Source       PromptSource `json:"source"        gorm:"type:varchar(16);not null;default:'generated';check:source IN ('generated','external')"`
	LastSentDate string       `json:"last_sent_date" gorm:"type:varchar(10);not null;default:''"`
	LastSentSlot Slot         `json:"last_sent_slot" gorm:"type:varchar(8);not null;default:''"`
	LastSentAt   *time.Time   `json:"last_sent_at,omitempty"`

	WebhookStatus    string     `json:"webhook_status" gorm:"type:varchar(16);not null;default:''"`
	WebhookError     string     `json:"webhook_error"  gorm:"type:text;not null;default:''"`
	WebhookCheckedAt *time.Time `json:"webhook_checked_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for BotConfig.
func (BotConfig) TableName() string { return "bot_configs" }

// PromptList is an ordered list of prompt strings persisted as a JSON TEXT
// column. The generation pipeline emits a fixed count per record (typically 5).
type PromptList []string

// Value implements driver.Valuer, serializing the list as JSON.
func (p PromptList) Value() (driver.Value, error) {
	if p == nil {
		p = PromptList{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, accepting TEXT or BLOB JSON payloads.
func (p *PromptList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), p)
	case []byte:
		return json.Unmarshal(v, p)
	default:
		return fmt.Errorf("promptlist: unsupported scan type %T", src)
	}
}

// PromptRecord is one generated journaling prompt set for a (user, local
// date, slot) cell of the calendar. At most one record exists per cell,
// enforced by a unique index.
//
// Lifecycle: created as draft/scheduled by the generation pipeline; moved to
// sent exactly once by the delivery path; Reply is appended by the inbound
// router when the user answers in chat.
type PromptRecord struct {
	ID      string     `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID  string     `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_prompt_cell,priority:1"`
	Date    string     `json:"date"    gorm:"type:varchar(10);not null;uniqueIndex:ux_prompt_cell,priority:2"`
	Slot    Slot       `json:"slot"    gorm:"type:varchar(8);not null;uniqueIndex:ux_prompt_cell,priority:3;check:slot IN ('morning','evening')"`
	Theme   string     `json:"theme"   gorm:"type:varchar(128);not null;default:''"`
	Prompts PromptList `json:"prompts" gorm:"type:text;not null"`
	Status  string     `json:"status"  gorm:"type:varchar(16);not null;default:'draft';check:status IN ('draft','scheduled','sent')"`
	Reply   *string    `json:"reply,omitempty" gorm:"type:text"`
	SentAt  *time.Time `json:"sent_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for PromptRecord.
func (PromptRecord) TableName() string { return "prompt_records" }

// VerificationCode is a short-lived one-time code binding a user account to
// a chat. A user has at most one outstanding code: generating a new one
// deletes the previous rows for that user.
//
// State machine: pending (UsedAt nil, unexpired) → used (UsedAt set, ChatID
// bound) via the inbound router, or pending → expired purely by the clock.
// Expiry is enforced by filtering on every query, not by a writeback.
type VerificationCode struct {
	ID         string     `json:"id"      gorm:"type:char(36);primaryKey"`
	Code       string     `json:"-"       gorm:"type:char(6);not null;index"`
	UserID     string     `json:"user_id" gorm:"type:varchar(64);not null;index"`
	DetectedTZ string     `json:"detected_tz" gorm:"type:varchar(64);not null;default:''"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ChatID     *int64     `json:"chat_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for VerificationCode.
func (VerificationCode) TableName() string { return "verification_codes" }

// Pending reports whether the code is still consumable at time now.
func (v *VerificationCode) Pending(now time.Time) bool {
	return v.UsedAt == nil && now.Before(v.ExpiresAt)
}

// SendCooldown tracks the user-triggered "send now" budget for one
// (user, local date, slot) key: a rolling cap of sends per hour plus a
// minimum spacing between consecutive sends. It is independent of the
// scheduler's own idempotency state.
type SendCooldown struct {
	ID              string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_cooldown_key,priority:1"`
	Date            string    `json:"date"    gorm:"type:varchar(10);not null;uniqueIndex:ux_cooldown_key,priority:2"`
	Slot            Slot      `json:"slot"    gorm:"type:varchar(8);not null;uniqueIndex:ux_cooldown_key,priority:3"`
	SendCount       int       `json:"send_count" gorm:"not null;default:0"`
	WindowStartedAt time.Time `json:"window_started_at"`
	LastSentAt      time.Time `json:"last_sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SendCooldown.
func (SendCooldown) TableName() string { return "send_cooldowns" }
