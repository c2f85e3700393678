package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/paylane/concierge/pkg/logger"
)

// DeliveryResult is the outcome of one escalation send. Err carries a stable
// classification string, never the transport error body.
type DeliveryResult struct {
	OK        bool
	MessageID string
	Channel   string
	Err       string
}

// DeliveryClient sends an escalation message to the operator channel.
type DeliveryClient interface {
	Send(ctx context.Context, message Message) DeliveryResult
}

// WebhookClient posts messages to a Slack-compatible webhook with a bounded
// per-attempt timeout and a fixed retry budget.
type WebhookClient struct {
	http       *resty.Client
	webhookURL string
	timeout    time.Duration
	maxRetries int
}

func NewWebhookClient(webhookURL string, timeout time.Duration, maxRetries int) *WebhookClient {
	return &WebhookClient{
		http:       resty.New().SetTimeout(timeout),
		webhookURL: webhookURL,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

func (c *WebhookClient) Send(ctx context.Context, message Message) DeliveryResult {
	if c.webhookURL == "" {
		return DeliveryResult{Channel: message.Channel, Err: "delivery_credentials_missing"}
	}

	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewConstant(500*time.Millisecond))

	var messageID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		response, callErr := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json; charset=utf-8").
			SetBody(message).
			Post(c.webhookURL)
		if callErr != nil {
			return retry.RetryableError(callErr)
		}
		if response.StatusCode() >= 500 {
			return retry.RetryableError(fmt.Errorf("http_%d", response.StatusCode()))
		}
		if response.StatusCode() >= 400 {
			return fmt.Errorf("http_%d", response.StatusCode())
		}
		messageID = response.Header().Get("X-Slack-Req-Id")
		if messageID == "" {
			messageID = fmt.Sprintf("hook-%d", time.Now().UnixMilli())
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("Escalation delivery failed",
			"channel", message.Channel, "error", err)
		return DeliveryResult{Channel: message.Channel, Err: classifyDeliveryError(ctx, err)}
	}
	return DeliveryResult{OK: true, MessageID: messageID, Channel: message.Channel}
}

func classifyDeliveryError(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "timeout"
	}
	if err != nil {
		return "transport_error"
	}
	return "unknown_error"
}

// MockDeliveryClient always succeeds; used when no webhook is configured in
// development and by tests.
type MockDeliveryClient struct{}

func (MockDeliveryClient) Send(ctx context.Context, message Message) DeliveryResult {
	messageID := fmt.Sprintf("mock-%d", time.Now().UnixMilli())
	logger.FromContext(ctx).Info("Escalation delivered to mock channel",
		"channel", message.Channel, "message_id", messageID)
	return DeliveryResult{OK: true, MessageID: messageID, Channel: message.Channel}
}
