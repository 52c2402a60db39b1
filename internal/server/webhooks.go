package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldtasker/internal/config"
	"fieldtasker/internal/domain"
	"fieldtasker/internal/engine"
	"fieldtasker/internal/log"
	"fieldtasker/internal/metrics"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the task_history feed and posts new entries to the
// configured endpoints. Each hook keeps its own cursor; a failed delivery
// stops that hook's batch so entries are retried in order.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]int64
}

func startWebhookDispatcher(e engine.Engine, webhooks []config.WebhookConfig) {
	if len(webhooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		webhooks: webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[int]int64),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *webhookDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(idx int, hook config.WebhookConfig) {
	logger := log.WithComponent("webhook")
	ctx := context.Background()
	cursor := d.cursorFor(idx, hook)
	entries, err := d.engine.Repo.HistoryAfter(ctx, defaultWebhookBatch, cursor, hook.ProjectID)
	if err != nil {
		logger.Error().Err(err).Str("hook", hook.Name).Msg("fetch history failed")
		return
	}
	for _, entry := range entries {
		if err := d.postEntry(ctx, hook, entry); err != nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
			logger.Error().Err(err).Str("hook", hook.Name).Str("url", hook.URL).Msg("delivery failed")
			return
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
		d.setCursor(idx, entry.ID)
	}
}

func (d *webhookDispatcher) cursorFor(idx int, hook config.WebhookConfig) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	// Start at the current tail; hooks receive entries created after startup.
	cur, err := d.engine.Repo.LatestHistoryID(context.Background(), hook.ProjectID)
	if err != nil {
		logger := log.WithComponent("webhook")
		logger.Error().Err(err).Str("hook", hook.Name).Msg("init cursor failed")
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

func (d *webhookDispatcher) postEntry(ctx context.Context, hook config.WebhookConfig, entry domain.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fieldtasker-Action", string(entry.Action))
	req.Header.Set("X-Fieldtasker-Delivery", fmt.Sprintf("%d", entry.ID))
	req.Header.Set("X-Fieldtasker-Project", entry.ProjectID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Fieldtasker-Secret", hook.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
