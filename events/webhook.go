package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

// WebhookManager keeps webhook registrations in SQLite and delivers events
// to the registered URLs. Deliveries fan out concurrently, carry an HMAC
// signature when the registration has a secret, and log failures without
// surfacing them to whatever published the event.
type WebhookManager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	db              *sql.DB
	client          *http.Client
	deliveryTimeout time.Duration
	running         int32
}

type Webhook struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func NewWebhookManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.EventsConfig) (*WebhookManager, error) {
	dbPath := config.WebhookDB
	if dbPath == "" {
		dbPath = "./webhooks.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to open webhook database")
	}

	deliveryTimeout := time.Duration(config.HookTimeout) * time.Second
	if deliveryTimeout <= 0 {
		deliveryTimeout = 5 * time.Second
	}

	managerCtx, cancel := context.WithCancel(ctx)

	wm := &WebhookManager{
		ctx:             managerCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		db:              db,
		client:          &http.Client{Timeout: deliveryTimeout},
		deliveryTimeout: deliveryTimeout,
	}

	if err := wm.initSchema(); err != nil {
		cancel()
		_ = db.Close()
		return nil, err
	}

	return wm, nil
}

func (wm *WebhookManager) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT,
		enabled BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_event ON webhooks(event);
	`

	if _, err := wm.db.Exec(query); err != nil {
		return types.WrapError(err, "failed to create webhooks table")
	}
	return nil
}

func (wm *WebhookManager) Start() error {
	if !atomic.CompareAndSwapInt32(&wm.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	wm.logger.Info("Webhook manager started")
	return nil
}

func (wm *WebhookManager) Stop() error {
	if !atomic.CompareAndSwapInt32(&wm.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	wm.cancel()

	if err := wm.db.Close(); err != nil {
		return types.WrapError(err, "failed to close webhook database")
	}

	wm.logger.Info("Webhook manager stopped")
	return nil
}

func (wm *WebhookManager) IsRunning() bool {
	return atomic.LoadInt32(&wm.running) == 1
}

// Register stores a new webhook and returns it with a generated id and
// delivery secret.
func (wm *WebhookManager) Register(event, url string) (*Webhook, error) {
	if url == "" {
		return nil, types.ErrWebhookURLInvalid
	}

	webhook := &Webhook{
		ID:        uuid.New().String(),
		Event:     event,
		URL:       url,
		Secret:    generateSecret(),
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := wm.db.Exec(
		`INSERT INTO webhooks (id, event, url, secret, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		webhook.ID, webhook.Event, webhook.URL, webhook.Secret, webhook.Enabled, webhook.CreatedAt,
	)
	if err != nil {
		return nil, types.WrapError(err, "failed to insert webhook")
	}

	return webhook, nil
}

func (wm *WebhookManager) List() ([]*Webhook, error) {
	rows, err := wm.db.Query(
		`SELECT id, event, url, secret, enabled, created_at FROM webhooks ORDER BY created_at DESC`)
	if err != nil {
		return nil, types.WrapError(err, "failed to list webhooks")
	}
	defer rows.Close()

	return scanWebhooks(rows)
}

func (wm *WebhookManager) Delete(id string) error {
	result, err := wm.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return types.WrapError(err, "failed to delete webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(err, "failed to check delete result")
	}
	if affected == 0 {
		return types.ErrWebhookNotFound
	}

	return nil
}

// Notify delivers the event to every enabled registration for its action.
func (wm *WebhookManager) Notify(event types.Event) {
	if !wm.IsRunning() {
		return
	}

	webhooks, err := wm.byEvent(event.Action)
	if err != nil {
		wm.logger.Error("Failed to load webhooks for event",
			zap.String("action", event.Action), zap.Error(err))
		return
	}

	if len(webhooks) == 0 {
		return
	}

	notifyCtx, cancel := context.WithTimeout(wm.ctx, wm.deliveryTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(notifyCtx)

	for _, webhook := range webhooks {
		wh := webhook
		g.Go(func() error {
			if err := wm.deliver(gCtx, wh, event); err != nil {
				wm.logger.Error("Webhook delivery failed",
					zap.String("webhook_id", wh.ID),
					zap.String("action", event.Action),
					zap.String("url", wh.URL),
					zap.Error(err))
				wm.recordDelivery(event.Action, "error")
				return nil
			}
			wm.recordDelivery(event.Action, "success")
			return nil
		})
	}

	_ = g.Wait()
}

func (wm *WebhookManager) byEvent(action string) ([]*Webhook, error) {
	rows, err := wm.db.Query(
		`SELECT id, event, url, secret, enabled, created_at FROM webhooks WHERE event = ? AND enabled = true`,
		action)
	if err != nil {
		return nil, types.WrapError(err, "failed to query webhooks")
	}
	defer rows.Close()

	return scanWebhooks(rows)
}

func (wm *WebhookManager) deliver(ctx context.Context, webhook *Webhook, event types.Event) error {
	body, err := utils.Marshal(event)
	if err != nil {
		return types.WrapError(err, "failed to marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return types.WrapError(err, "failed to create delivery request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ThreadLens-Webhook/1.0")
	req.Header.Set("X-Event-ID", event.ID)

	if webhook.Secret != "" {
		req.Header.Set("X-Signature", "sha256="+signPayload(webhook.Secret, body))
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return types.WrapError(err, "delivery request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (wm *WebhookManager) recordDelivery(action, result string) {
	if wm.metrics == nil {
		return
	}

	wm.metrics.Counter("webhook_deliveries_total", map[string]string{
		"action": action,
		"result": result,
	}).Inc()
}

func scanWebhooks(rows *sql.Rows) ([]*Webhook, error) {
	var webhooks []*Webhook
	for rows.Next() {
		var wh Webhook
		if err := rows.Scan(&wh.ID, &wh.Event, &wh.URL, &wh.Secret, &wh.Enabled, &wh.CreatedAt); err != nil {
			return nil, types.WrapError(err, "failed to scan webhook row")
		}
		webhooks = append(webhooks, &wh)
	}
	return webhooks, rows.Err()
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(buf)
}
