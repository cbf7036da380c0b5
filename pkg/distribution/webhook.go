package distribution

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// WebhookPayload is the JSON body posted to a webhook endpoint
type WebhookPayload struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WebhookChannel notifies an HTTP endpoint that an export is ready. The
// transport is optional; without a client the channel reports pending, a
// terminal state the operator resolves out of band.
type WebhookChannel struct {
	client *http.Client
	log    logger.Logger
}

// NewWebhookChannel creates a webhook notification channel. Pass a nil
// client to run in notify-later mode.
func NewWebhookChannel(client *http.Client, log logger.Logger) *WebhookChannel {
	return &WebhookChannel{client: client, log: log}
}

// Deliver posts an export.completed event to the configured URL
func (c *WebhookChannel) Deliver(ctx context.Context, schedule *models.ExportSchedule, exp *models.Export) models.ChannelResult {
	cfg := schedule.DistributionConfig.Webhook
	now := time.Now().UTC()

	if err := validateWebhookURL(cfg.URL); err != nil {
		return models.ChannelResult{
			Status:    models.ChannelStatusFailed,
			Detail:    domain.ClientMessage(err),
			Timestamp: now,
		}
	}

	if c.client == nil {
		return models.ChannelResult{
			Status:    models.ChannelStatusPending,
			Detail:    "not_implemented",
			Timestamp: now,
		}
	}

	if err := c.post(ctx, cfg, schedule, exp); err != nil {
		return models.ChannelResult{
			Status:    models.ChannelStatusFailed,
			Detail:    domain.ClientMessage(err),
			Timestamp: now,
		}
	}
	return models.ChannelResult{Status: models.ChannelStatusSuccess, Timestamp: now}
}

func (c *WebhookChannel) post(ctx context.Context, cfg *models.WebhookChannelConfig, schedule *models.ExportSchedule, exp *models.Export) error {
	payload := WebhookPayload{
		Event: "export.completed",
		Data: map[string]interface{}{
			"schedule_id":   schedule.ID,
			"schedule_name": schedule.Name,
			"export_id":     exp.ID,
			"report_id":     exp.ReportID,
			"format":        exp.Format,
			"row_count":     exp.RowCount,
			"file_size":     exp.FileSize,
		},
		Timestamp: time.Now().UTC().Unix(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.NewDistributionChannelError(models.ChannelWebhook, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return domain.NewDistributionChannelError(models.ChannelWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", signPayload(body, cfg.Secret))
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewDistributionChannelError(models.ChannelWebhook, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.NewDistributionChannelError(models.ChannelWebhook,
			fmt.Errorf("endpoint returned status %d", resp.StatusCode))
	}
	return nil
}

// validateWebhookURL rejects anything but absolute http(s) URLs
func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return domain.NewValidationError("webhook url is not valid")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return domain.NewValidationError("webhook url must use http or https")
	}
	if parsed.Host == "" {
		return domain.NewValidationError("webhook url requires a host")
	}
	return nil
}

// signPayload computes the HMAC-SHA256 signature for a webhook body
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature; exported for receivers
func VerifySignature(body []byte, signature, secret string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
