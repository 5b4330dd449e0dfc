package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/K41R0N/threadbot-sub001/internal/config"
	"github.com/K41R0N/threadbot-sub001/internal/domain"
)

// --- fake chat gateway so no network is touched ---

type fakeGateway struct{}

func (fakeGateway) SendMessage(context.Context, int64, string) (bool, error) { return true, nil }
func (fakeGateway) RegisterWebhook(context.Context, string, string) (bool, error) {
	return true, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "router.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.BotConfig{}, &domain.VerificationCode{},
		&domain.PromptRecord{}, &domain.SendCooldown{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   20,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Telegram:    config.TelegramConfig{WebhookSecret: "hook-secret"},
		Sweep: config.SweepConfig{
			Secret:      "sweep-secret",
			Concurrency: 2,
			UserTimeout: time.Second,
		},
	}
}

func newEngine(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, Deps{DB: newTestDB(t), Gateway: fakeGateway{}}, cfg)
	return r
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r := newEngine(t, testConfig())

	// /health works; allow-all CORS branch sets "*"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 envelope
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (DELETE /health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	r := newEngine(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_SecretGuards(t *testing.T) {
	r := newEngine(t, testConfig())

	// Webhook without the secret header → 401, never 200-acknowledged
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/telegram/webhook",
		bytes.NewBufferString(`{"update_id":1}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("webhook without secret expected 401, got %d", w.Code)
	}

	// Webhook with the right secret → 200 even for a contentless update
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook",
		bytes.NewBufferString(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hook-secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook with secret expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	// Sweep trigger with the wrong secret → 401
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	req.Header.Set("X-Sweep-Secret", "guess")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("sweep with wrong secret expected 401, got %d", w.Code)
	}

	// Sweep trigger with the right secret runs against the empty DB
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/sweep", nil)
	req.Header.Set("X-Sweep-Secret", "sweep-secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep with secret expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_APIRequiresUser(t *testing.T) {
	r := newEngine(t, testConfig())

	// Without identity → 401 from RequireUser
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/link/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-ID, got %d", w.Code)
	}

	// With identity the pipeline reaches the service layer
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/link/status", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for link status, got %d (%s)", w.Code, w.Body.String())
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(8))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("tiny")))
	if w.Code != http.StatusOK {
		t.Fatalf("small body expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo",
		bytes.NewBufferString("definitely more than eight bytes")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body expected 413, got %d", w.Code)
	}
}
