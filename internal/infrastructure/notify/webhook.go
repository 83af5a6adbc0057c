package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/go-resty/resty/v2"
)

type webhookPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// WebhookNotifier posts each notification as JSON to a fixed URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("User-Agent", "bitalert")

	return &WebhookNotifier{client: client, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, recipient string, msg domain.Message) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookPayload{Recipient: recipient, Subject: msg.Subject, Body: msg.Body}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook non-2xx: %s", resp.Status())
	}
	return nil
}
