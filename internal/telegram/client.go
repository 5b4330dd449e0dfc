package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAPIBase is the production Bot API endpoint. Tests point the client
// at an httptest server instead.
const DefaultAPIBase = "https://api.telegram.org"

// secretTokenRE is the platform's constraint on webhook secret tokens.
// Validated locally before any setWebhook call so an invalid token surfaces
// as a clear configuration error instead of an opaque platform rejection.
var secretTokenRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// ErrInvalidSecretToken is returned by RegisterWebhook (and config loading)
// when a webhook secret token violates the platform's token format.
var ErrInvalidSecretToken = errors.New("telegram: secret token must match [A-Za-z0-9_-]{1,256}")

// ValidSecretToken reports whether token satisfies the platform constraint.
func ValidSecretToken(token string) bool { return secretTokenRE.MatchString(token) }

// Client is the messaging gateway for one shared bot. All users are served
// through the same bot token; outbound messages are disambiguated solely by
// chat ID. The client throttles per chat to stay inside the platform's
// per-chat delivery posture.
//
// Send outcomes are three-valued on purpose:
//   - (true, nil): delivered to the platform and accepted.
//   - (false, nil): the platform rejected the request (invalid chat, bot
//     blocked). The message will never arrive; retrying is pointless.
//   - (false, err): the request never reached the platform (transport,
//     timeout). A later attempt might succeed.
//
// Callers upstream treat both failure shapes the same (no retry), but logs
// keep them distinct for operators.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *chatLimiter
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIBase overrides the Bot API base URL (tests, proxies).
func WithAPIBase(base string) Option {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRate overrides the per-chat token bucket (messages per second, burst).
func WithRate(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = newChatLimiter(perSecond, burst) }
}

// NewClient builds a gateway client for the given bot token. The HTTP
// timeout bounds every outbound call so one slow send cannot stall a sweep.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		base:    DefaultAPIBase,
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: newChatLimiter(1, 3),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// apiResponse is the Bot API envelope common to every method call.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// SendMessage escapes text for MarkdownV2 and delivers it to chatID.
// See the Client doc for the (delivered, err) contract.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (bool, error) {
	if err := c.limiter.wait(ctx, chatID); err != nil {
		return false, fmt.Errorf("telegram: rate limit wait: %w", err)
	}

	payload := map[string]any{
		"chat_id":    chatID,
		"text":       EscapeMarkdownV2(text),
		"parse_mode": "MarkdownV2",
	}
	resp, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram transport failure")
		return false, err
	}
	if !resp.OK {
		// Platform-level rejection: reached Telegram, refused there.
		log.Warn().
			Int64("chat_id", chatID).
			Int("error_code", resp.ErrorCode).
			Str("description", resp.Description).
			Msg("telegram rejected send")
		return false, nil
	}
	return true, nil
}

// RegisterWebhook points the shared bot's webhook at url, authenticated by
// secret. The call is idempotent: registering the same url/secret again is a
// no-op on the platform side. An invalid secret fails locally with
// ErrInvalidSecretToken before any network traffic.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) (bool, error) {
	if !ValidSecretToken(secret) {
		return false, ErrInvalidSecretToken
	}

	payload := map[string]any{
		"url":          url,
		"secret_token": secret,
	}
	resp, err := c.call(ctx, "setWebhook", payload)
	if err != nil {
		return false, err
	}
	if !resp.OK {
		log.Warn().
			Int("error_code", resp.ErrorCode).
			Str("description", resp.Description).
			Msg("telegram rejected webhook registration")
		return false, nil
	}
	return true, nil
}

// call POSTs a JSON payload to one Bot API method and decodes the envelope.
func (c *Client) call(ctx context.Context, method string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	return &out, nil
}
