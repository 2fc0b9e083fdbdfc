// Package notify delivers alerts to a Telegram chat.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/metrics"
	"github.com/tinytelemetry/logops/internal/model"
	"golang.org/x/time/rate"
)

var (
	log  = logrus.WithField("component", "notify")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// DefaultBaseURL is the Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Alert kinds that are not anomaly types.
const (
	KindErrorSpike    = "error_spike"
	KindCriticalSpike = "critical_spike"
)

// ErrAPI is returned when Telegram answers with a non-OK result.
var ErrAPI = errors.New("telegram api error")

// Config configures the Telegram notifier.
type Config struct {
	BotToken string
	ChatID   string
	BaseURL  string
	// Cooldown suppresses repeats of the same alert kind for the same service.
	Cooldown time.Duration
	// MessagesPerMinute bounds the overall send rate.
	MessagesPerMinute int
	Timeout           time.Duration
}

// Alert is one notification.
type Alert struct {
	Kind    string
	Service string
	Details []Detail
	Time    time.Time
}

// Detail is one labelled value in an alert body.
type Detail struct {
	Label string
	Value string
}

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewTelegram creates a notifier. A notifier without token or chat id is
// disabled and drops every alert.
func NewTelegram(cfg Config) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = model.DefaultAlertCooldown
	}
	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MessagesPerMinute)), cfg.MessagesPerMinute),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Enabled reports whether credentials are configured.
func (t *Telegram) Enabled() bool {
	return t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

// Send delivers a unless it is disabled or cooling down. It reports whether
// a message was sent.
func (t *Telegram) Send(ctx context.Context, a Alert) (bool, error) {
	if !t.Enabled() {
		log.WithField("kind", a.Kind).Debug("telegram not configured, skipping alert")
		metrics.ObserveAlert(a.Kind, "disabled")
		return false, nil
	}
	if !t.claim(cooldownKey(a)) {
		log.WithField("key", cooldownKey(a)).Debug("alert suppressed by cooldown")
		metrics.ObserveAlert(a.Kind, "suppressed")
		return false, nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		t.release(cooldownKey(a))
		metrics.ObserveAlert(a.Kind, "error")
		return false, err
	}

	if err := t.sendMessage(ctx, Format(a, t.now())); err != nil {
		t.release(cooldownKey(a))
		metrics.ObserveAlert(a.Kind, "error")
		return false, err
	}
	metrics.ObserveAlert(a.Kind, "sent")
	return true, nil
}

func cooldownKey(a Alert) string {
	service := a.Service
	if service == "" || service == model.AffectedMultiple {
		service = "global"
	}
	return a.Kind + "_" + service
}

// claim records a send for key unless one happened within the cooldown.
func (t *Telegram) claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.cfg.Cooldown {
		return false
	}
	t.lastSent[key] = now
	return true
}

func (t *Telegram) release(key string) {
	t.mu.Lock()
	delete(t.lastSent, key)
	t.mu.Unlock()
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.cfg.ChatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/bot" + t.cfg.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return t.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", t.redact(err))
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, result.Description)
	}
	return nil
}

// redact removes the bot token from URLs carried by transport errors.
func (t *Telegram) redact(err error) error {
	if t.cfg.BotToken == "" {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, t.cfg.BotToken, "<redacted>")
		return err
	}
	if strings.Contains(err.Error(), t.cfg.BotToken) {
		return errors.New(strings.ReplaceAll(err.Error(), t.cfg.BotToken, "<redacted>"))
	}
	return err
}
