package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/repo"
)

func seedCode(t *testing.T, db *gorm.DB, userID, code string, createdAt time.Time) *domain.VerificationCode {
	t.Helper()
	rec := &domain.VerificationCode{
		Code:      code,
		UserID:    userID,
		ExpiresAt: createdAt.Add(10 * time.Minute),
		CreatedAt: createdAt,
	}
	if err := repo.CreateCode(context.Background(), db, rec); err != nil {
		t.Fatalf("seed code: %v", err)
	}
	return rec
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func lastMessage(t *testing.T, gw *fakeGateway) sentMessage {
	t.Helper()
	msgs := gw.messages()
	if len(msgs) == 0 {
		t.Fatal("no message was sent")
	}
	return msgs[len(msgs)-1]
}

func TestHandleMessage_CodeLinksChat(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(now)
	seedCode(t, db, "u1", "123456", now.Add(-time.Minute))
	seedPrompt(t, db, "u1", "2026-03-10", domain.SlotMorning)

	if err := svc.HandleMessage(context.Background(), 555, "here is my code 123456 thanks"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	cfg, err := repo.GetConfigByUser(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("config after link: %v", err)
	}
	if cfg.ChatID == nil || *cfg.ChatID != 555 {
		t.Fatalf("chat not bound: %+v", cfg)
	}
	if !cfg.Active || cfg.Source != domain.SourceGenerated {
		t.Fatalf("config should auto-activate when prompts exist: %+v", cfg)
	}
	if got := lastMessage(t, gw); got.Text != msgLinked {
		t.Fatalf("reply = %q, want linked confirmation", got.Text)
	}
}

func TestHandleMessage_FirstTimeLinkStaysDormant(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(now)
	code := seedCode(t, db, "u-new", "222333", now.Add(-time.Minute))
	code.DetectedTZ = "Europe/Athens"
	if err := db.Save(code).Error; err != nil {
		t.Fatal(err)
	}

	if err := svc.HandleMessage(context.Background(), 777, "222333"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	cfg, err := repo.GetConfigByUser(context.Background(), db, "u-new")
	if err != nil {
		t.Fatalf("config after link: %v", err)
	}
	if cfg.Active {
		t.Fatal("config must stay inactive when the user has no prompts yet")
	}
	if cfg.Timezone != "Europe/Athens" {
		t.Fatalf("timezone = %q, want detected zone", cfg.Timezone)
	}
	if cfg.MorningTime != "08:00" || cfg.EveningTime != "20:00" {
		t.Fatalf("default slot times not applied: %+v", cfg)
	}
}

func TestHandleMessage_GreetingResolvesMostRecentCode(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(now)
	seedCode(t, db, "older", "111111", now.Add(-5*time.Minute))
	seedCode(t, db, "newer", "222222", now.Add(-1*time.Minute))

	for _, greeting := range []string{"hello", "Hi!", "HEY"} {
		t.Run(greeting, func(t *testing.T) {
			if !isGreeting(greeting) {
				t.Fatalf("%q should classify as greeting", greeting)
			}
		})
	}

	if err := svc.HandleMessage(context.Background(), 888, "Hello!"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	cfg, err := repo.GetConfigByUser(context.Background(), db, "newer")
	if err != nil {
		t.Fatalf("newest code's user should be linked: %v", err)
	}
	if cfg.ChatID == nil || *cfg.ChatID != 888 {
		t.Fatalf("chat not bound to newest code's user: %+v", cfg)
	}
	if _, err := repo.GetConfigByUser(context.Background(), db, "older"); err == nil {
		t.Fatal("older code's user must not be linked")
	}
}

func TestHandleMessage_UnknownCode(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	if err := svc.HandleMessage(context.Background(), 999, "654321"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastMessage(t, gw); got.Text != msgCodeNotFound {
		t.Fatalf("reply = %q, want not-found message", got.Text)
	}
}

func TestHandleMessage_AlreadyLinkedChat(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(now)
	seedCode(t, db, "u1", "123456", now.Add(-time.Minute))
	if err := svc.HandleMessage(context.Background(), 555, "123456"); err != nil {
		t.Fatal(err)
	}

	// Same chat sends a stale code later.
	if err := svc.HandleMessage(context.Background(), 555, "999999"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastMessage(t, gw); got.Text != msgAlreadyLinked {
		t.Fatalf("reply = %q, want already-linked message", got.Text)
	}
}

func TestHandleMessage_ExpiredCodeRejected(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(now)
	seedCode(t, db, "u1", "123456", now.Add(-30*time.Minute))

	if err := svc.HandleMessage(context.Background(), 555, "123456"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastMessage(t, gw); got.Text != msgCodeNotFound {
		t.Fatalf("reply = %q, want not-found message", got.Text)
	}
	if _, err := repo.GetConfigByUser(context.Background(), db, "u1"); err == nil {
		t.Fatal("expired code must not link")
	}
}

func TestHandleMessage_FreeTextStoredAsReply(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	seedConfig(t, db, "u1", 444, "UTC")
	rec := seedPrompt(t, db, "u1", "2026-03-09", domain.SlotEvening)
	if _, err := repo.MarkPromptSent(context.Background(), db, rec.ID, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	if err := svc.HandleMessage(context.Background(), 444, "I finally finished the draft."); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastMessage(t, gw); got.Text != msgReplySaved {
		t.Fatalf("reply = %q, want saved confirmation", got.Text)
	}

	stored, err := repo.GetPrompt(context.Background(), db, "u1", "2026-03-09", domain.SlotEvening)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Reply == nil || !strings.Contains(*stored.Reply, "finished the draft") {
		t.Fatalf("reply not stored: %+v", stored.Reply)
	}

	// A second message appends rather than overwrites.
	if err := svc.HandleMessage(context.Background(), 444, "And submitted it."); err != nil {
		t.Fatal(err)
	}
	stored, _ = repo.GetPrompt(context.Background(), db, "u1", "2026-03-09", domain.SlotEvening)
	if !strings.Contains(*stored.Reply, "finished the draft") || !strings.Contains(*stored.Reply, "submitted it") {
		t.Fatalf("second reply did not append: %q", *stored.Reply)
	}
}

func TestHandleMessage_UnlinkedFreeText(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	if err := svc.HandleMessage(context.Background(), 321, "what is this bot?"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastMessage(t, gw); got.Text != msgNotLinked {
		t.Fatalf("reply = %q, want link instructions", got.Text)
	}
}

func TestHandleMessage_LinkedButNothingSentYet(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	seedConfig(t, db, "u1", 444, "UTC")
	if err := svc.HandleMessage(context.Background(), 444, "hello there, long message"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := lastMessage(t, gw); got.Text != msgNoPromptYet {
		t.Fatalf("reply = %q, want no-prompt message", got.Text)
	}
}

func TestHandleMessage_EmptyTextIgnored(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{}
	svc := NewInboundService(db, gw)

	if err := svc.HandleMessage(context.Background(), 1, "   "); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(gw.messages()) != 0 {
		t.Fatal("blank update must not trigger a reply")
	}
}

func TestIsGreeting(t *testing.T) {
	yes := []string{"hello", "Hello", "HI", "hey!", "Hey."}
	for _, s := range yes {
		if !isGreeting(s) {
			t.Errorf("isGreeting(%q) = false, want true", s)
		}
	}
	no := []string{"hello world", "they", "高hi", "heyyy", ""}
	for _, s := range no {
		if isGreeting(s) {
			t.Errorf("isGreeting(%q) = true, want false", s)
		}
	}
}
