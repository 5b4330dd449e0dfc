// Package services – LinkService
//
// This file implements account linking between an application user and a
// chat. The app requests a short-lived 6-digit verification code; the user
// sends that code (or a bare greeting) to the bot, and the inbound router
// consumes it to bind the chat. Requesting a new code invalidates any prior
// codes for the same user, so at most one code per user is ever pending.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
)

// codeTTL is how long a verification code stays redeemable.
const codeTTL = 10 * time.Minute

// LinkService issues verification codes and reports link status.
type LinkService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewLinkService constructs a LinkService.
func NewLinkService(db *gorm.DB) *LinkService {
	return &LinkService{DB: db}
}

// CodeGrant is what the app shows the user after requesting a code.
type CodeGrant struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkStatus reports whether a user's account is bound to a chat.
type LinkStatus struct {
	Linked   bool   `json:"linked"`
	ChatID   *int64 `json:"chat_id,omitempty"`
	Active   bool   `json:"active"`
	Timezone string `json:"timezone,omitempty"`
}

// RequestCode invalidates any earlier codes for the user and issues a fresh
// 6-digit code valid for ten minutes. detectedTZ is the client's best guess
// at the user's timezone and seeds the bot configuration on first link.
func (s *LinkService) RequestCode(ctx context.Context, userID, detectedTZ string) (*CodeGrant, error) {
	tr := otel.Tracer("services/LinkService")
	ctx, span := tr.Start(ctx, "RequestCode",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if userID == "" {
		return nil, errors.New("user id is required")
	}

	if err := repo.DeleteCodesForUser(ctx, s.DB, userID); err != nil {
		return nil, fmt.Errorf("invalidate prior codes: %w", err)
	}

	now := time.Now().UTC()
	code, err := s.uniqueCode(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	rec := &domain.VerificationCode{
		Code:       code,
		UserID:     userID,
		DetectedTZ: detectedTZ,
		ExpiresAt:  now.Add(codeTTL),
		CreatedAt:  now,
	}
	if err := repo.CreateCode(ctx, s.DB, rec); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	return &CodeGrant{Code: code, ExpiresAt: rec.ExpiresAt}, nil
}

// Status reports whether the user's account is linked to a chat.
func (s *LinkService) Status(ctx context.Context, userID string) (*LinkStatus, error) {
	cfg, err := repo.GetConfigByUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &LinkStatus{}, nil
		}
		return nil, err
	}
	return &LinkStatus{
		Linked:   cfg.ChatID != nil,
		ChatID:   cfg.ChatID,
		Active:   cfg.Active,
		Timezone: cfg.Timezone,
	}, nil
}

// PurgeExpired removes verification codes that expired without being used.
// Consumed codes are kept as the durable record of the link.
func (s *LinkService) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredCodes(ctx, s.DB, time.Now().UTC())
}

// uniqueCode draws codes until one is not currently pending for any user.
// Two users holding the same value would make greeting attribution arbitrary,
// so collisions are resolved at issue time instead of at verification.
func (s *LinkService) uniqueCode(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		_, err = repo.FindPendingByCode(ctx, s.DB, code, now)
		if errors.Is(err, repo.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not draw an unused code")
}

// randomCode draws a uniform 6-digit code from [100000, 999999] using the
// crypto source. Leading zeroes are impossible, so string length is stable.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
