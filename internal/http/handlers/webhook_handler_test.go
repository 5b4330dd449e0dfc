package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

func postWebhook(t *testing.T, inbound stubInboundSvc, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := newTestRouter(New(stubLinkSvc{}, stubSettingsSvc{}, stubSendSvc{}, stubSweepSvc{}, inbound))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_DispatchesMessage(t *testing.T) {
	var gotChat int64
	var gotText string
	inbound := stubInboundSvc{handle: func(_ context.Context, chatID int64, text string) error {
		gotChat, gotText = chatID, text
		return nil
	}}

	w := postWebhook(t, inbound, `{"update_id":7,"message":{"message_id":1,"chat":{"id":555},"text":"123456"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if gotChat != 555 || gotText != "123456" {
		t.Fatalf("service got (%d, %q)", gotChat, gotText)
	}
}

func TestWebhook_EditedMessageFallback(t *testing.T) {
	var gotText string
	inbound := stubInboundSvc{handle: func(_ context.Context, _ int64, text string) error {
		gotText = text
		return nil
	}}

	w := postWebhook(t, inbound, `{"update_id":8,"edited_message":{"chat":{"id":9},"text":"hello"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if gotText != "hello" {
		t.Fatalf("service got %q", gotText)
	}
}

// Malformed payloads, non-message updates, and processing failures must all
// be acknowledged with 200 so the platform does not redeliver.
func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		inbound stubInboundSvc
	}{
		{"malformed json", `{"update_id":`, stubInboundSvc{handle: func(context.Context, int64, string) error {
			t.Fatal("service must not be called for unparseable payloads")
			return nil
		}}},
		{"non-message update", `{"update_id":9,"poll":{"id":"p1"}}`, stubInboundSvc{handle: func(context.Context, int64, string) error {
			t.Fatal("service must not be called without a chat id")
			return nil
		}}},
		{"processing failure", `{"update_id":10,"message":{"chat":{"id":3},"text":"hi"}}`, stubInboundSvc{handle: func(context.Context, int64, string) error {
			return errors.New("db down")
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := postWebhook(t, tc.inbound, tc.body); w.Code != http.StatusOK {
				t.Fatalf("want 200, got %d", w.Code)
			}
		})
	}
}

func TestRunSweep_BothSlotsByDefault(t *testing.T) {
	var swept []domain.Slot
	sweep := stubSweepSvc{sweep: func(_ context.Context, slot domain.Slot, _ time.Time) (*services.SweepSummary, error) {
		swept = append(swept, slot)
		return &services.SweepSummary{Slot: slot, Processed: 1}, nil
	}}
	r := newTestRouter(New(stubLinkSvc{}, stubSettingsSvc{}, stubSendSvc{}, sweep, stubInboundSvc{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/sweep", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if len(swept) != 2 || swept[0] != domain.SlotMorning || swept[1] != domain.SlotEvening {
		t.Fatalf("swept slots %v", swept)
	}

	var resp SweepResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Summaries) != 2 {
		t.Fatalf("want 2 summaries, got %d", len(resp.Summaries))
	}
}

func TestRunSweep_ExplicitSlot(t *testing.T) {
	var swept []domain.Slot
	sweep := stubSweepSvc{sweep: func(_ context.Context, slot domain.Slot, _ time.Time) (*services.SweepSummary, error) {
		swept = append(swept, slot)
		return &services.SweepSummary{Slot: slot}, nil
	}}
	r := newTestRouter(New(stubLinkSvc{}, stubSettingsSvc{}, stubSendSvc{}, sweep, stubInboundSvc{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/sweep?slot=evening", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if len(swept) != 1 || swept[0] != domain.SlotEvening {
		t.Fatalf("swept slots %v", swept)
	}
}

func TestRunSweep_InvalidSlot(t *testing.T) {
	sweep := stubSweepSvc{sweep: func(context.Context, domain.Slot, time.Time) (*services.SweepSummary, error) {
		t.Fatal("sweep must not run for an invalid slot")
		return nil, nil
	}}
	r := newTestRouter(New(stubLinkSvc{}, stubSettingsSvc{}, stubSendSvc{}, sweep, stubInboundSvc{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/sweep?slot=noon", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
}

func TestRunSweep_SweepError(t *testing.T) {
	sweep := stubSweepSvc{sweep: func(context.Context, domain.Slot, time.Time) (*services.SweepSummary, error) {
		return nil, errors.New("db down")
	}}
	r := newTestRouter(New(stubLinkSvc{}, stubSettingsSvc{}, stubSendSvc{}, sweep, stubInboundSvc{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/sweep", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != ErrCodeSweepFailed {
		t.Fatalf("unexpected error code %q", resp.Code)
	}
}
