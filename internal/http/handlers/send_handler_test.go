package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/K41R0N/threadbot-sub001/internal/domain"
	"github.com/K41R0N/threadbot-sub001/internal/services"
)

func postSendNow(t *testing.T, send stubSendSvc, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := newTestRouter(New(stubLinkSvc{}, stubSettingsSvc{}, send, stubSweepSvc{}, stubInboundSvc{}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/send-now", bytes.NewBufferString(body)), "u1"))
	return w
}

func TestSendNow_OK(t *testing.T) {
	var gotSlot domain.Slot
	send := stubSendSvc{sendNow: func(_ context.Context, userID string, slot domain.Slot) error {
		if userID != "u1" {
			t.Fatalf("unexpected user %q", userID)
		}
		gotSlot = slot
		return nil
	}}

	w := postSendNow(t, send, `{"slot":"morning"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (%s)", w.Code, w.Body.String())
	}
	if gotSlot != domain.SlotMorning {
		t.Fatalf("service got slot %q", gotSlot)
	}
}

func TestSendNow_MissingSlot(t *testing.T) {
	send := stubSendSvc{sendNow: func(context.Context, string, domain.Slot) error {
		t.Fatal("service must not be called on a binding error")
		return nil
	}}

	if w := postSendNow(t, send, `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
}

func TestSendNow_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid slot", services.ErrInvalidSlot, http.StatusBadRequest, ErrCodeInvalidSlot},
		{"not linked", services.ErrNotLinked, http.StatusConflict, ErrCodeNotLinked},
		{"no prompt", services.ErrNoPrompt, http.StatusNotFound, ErrCodeNoPrompt},
		{"cooldown", services.ErrCooldown, http.StatusTooManyRequests, ErrCodeRateLimited},
		{"transport", errors.New("telegram: 502"), http.StatusBadGateway, ErrCodeSendFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			send := stubSendSvc{sendNow: func(context.Context, string, domain.Slot) error { return tc.err }}

			w := postSendNow(t, send, `{"slot":"evening"}`)

			if w.Code != tc.wantStatus {
				t.Fatalf("want %d, got %d", tc.wantStatus, w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("want code %q, got %q", tc.wantCode, resp.Code)
			}
		})
	}
}

// Wrapped sentinels must still map; SendNow wraps cooldown errors with the
// repository detail.
func TestSendNow_WrappedCooldown(t *testing.T) {
	wrapped := fmt.Errorf("%w: wait 12s before sending again", services.ErrCooldown)
	send := stubSendSvc{sendNow: func(context.Context, string, domain.Slot) error { return wrapped }}

	if w := postSendNow(t, send, `{"slot":"morning"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
}
