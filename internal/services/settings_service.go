// Package services – SettingsService
//
// This file manages a user's delivery settings: timezone, the two slot times,
// the active flag, and the prompt source. Saving settings also refreshes the
// webhook registration when a public URL is configured, and records the
// outcome on the configuration so the app can surface webhook health.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
)

// SettingsInput is the payload for saving delivery settings.
type SettingsInput struct {
	Timezone    string `json:"timezone" validate:"required,timezone"`
	MorningTime string `json:"morning_time" validate:"required,datetime=15:04"`
	EveningTime string `json:"evening_time" validate:"required,datetime=15:04"`
	Active      bool   `json:"active"`
	Source      string `json:"source" validate:"required,oneof=generated external"`
}

// Settings is the stored configuration as returned to the app.
type Settings struct {
	Timezone      string  `json:"timezone"`
	MorningTime   string  `json:"morning_time"`
	EveningTime   string  `json:"evening_time"`
	Active        bool    `json:"active"`
	Source        string  `json:"source"`
	Linked        bool    `json:"linked"`
	WebhookStatus string  `json:"webhook_status,omitempty"`
	WebhookError  string  `json:"webhook_error,omitempty"`
	LastSentDate  string  `json:"last_sent_date,omitempty"`
	LastSentSlot  string  `json:"last_sent_slot,omitempty"`
}

// SettingsService validates and persists delivery settings.
type SettingsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gateway registers the webhook with the chat platform.
	Gateway Gateway

	// WebhookURL is the public endpoint updates should be pushed to.
	// Empty disables registration on save.
	WebhookURL string
	// WebhookSecret guards the webhook endpoint.
	WebhookSecret string

	validate *validator.Validate
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(db *gorm.DB, gw Gateway, webhookURL, webhookSecret string) *SettingsService {
	return &SettingsService{
		DB:            db,
		Gateway:       gw,
		WebhookURL:    webhookURL,
		WebhookSecret: webhookSecret,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Save validates and stores the user's delivery settings, preserving the
// existing chat binding and scheduler state. When a webhook URL is
// configured the registration is refreshed as part of the save.
func (s *SettingsService) Save(ctx context.Context, userID string, in SettingsInput) (*Settings, error) {
	tr := otel.Tracer("services/SettingsService")
	ctx, span := tr.Start(ctx, "Save",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	cfg, err := repo.GetConfigByUser(ctx, s.DB, userID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		cfg = &domain.BotConfig{UserID: userID}
	case err != nil:
		return nil, err
	}

	cfg.Timezone = in.Timezone
	cfg.MorningTime = in.MorningTime
	cfg.EveningTime = in.EveningTime
	cfg.Active = in.Active
	cfg.Source = domain.PromptSource(in.Source)

	if err := repo.UpsertConfig(ctx, s.DB, cfg); err != nil {
		return nil, err
	}

	s.refreshWebhook(ctx, userID)

	cfg, err = repo.GetConfigByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return settingsFromConfig(cfg), nil
}

// Get returns the stored settings for a user.
func (s *SettingsService) Get(ctx context.Context, userID string) (*Settings, error) {
	cfg, err := repo.GetConfigByUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return settingsFromConfig(cfg), nil
}

// refreshWebhook re-registers the webhook and records the outcome. Failures
// are stored for visibility, never surfaced as save errors.
func (s *SettingsService) refreshWebhook(ctx context.Context, userID string) {
	if s.WebhookURL == "" {
		return
	}
	now := time.Now().UTC()
	ok, err := s.Gateway.RegisterWebhook(ctx, s.WebhookURL, s.WebhookSecret)
	status, detail := "ok", ""
	switch {
	case err != nil:
		status, detail = "error", err.Error()
	case !ok:
		status, detail = "error", "registration rejected by platform"
	}
	if status != "ok" {
		log.Warn().Str("user_id", userID).Str("detail", detail).Msg("webhook registration failed")
	}
	if rerr := repo.RecordWebhookOutcome(ctx, s.DB, userID, status, detail, now); rerr != nil {
		log.Error().Err(rerr).Str("user_id", userID).Msg("record webhook outcome failed")
	}
}

func settingsFromConfig(cfg *domain.BotConfig) *Settings {
	out := &Settings{
		Timezone:      cfg.Timezone,
		MorningTime:   cfg.MorningTime,
		EveningTime:   cfg.EveningTime,
		Active:        cfg.Active,
		Source:        string(cfg.Source),
		Linked:        cfg.ChatID != nil,
		WebhookStatus: cfg.WebhookStatus,
		WebhookError:  cfg.WebhookError,
		LastSentDate:  cfg.LastSentDate,
		LastSentSlot:  string(cfg.LastSentSlot),
	}
	return out
}
