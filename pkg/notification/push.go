package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// PushClient delivers a push notification to device aliases.
type PushClient interface {
	PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]string) error
}

type PushConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// HTTPPush talks to a push relay that accepts alias audiences.
type HTTPPush struct {
	client *resty.Client
}

func NewHTTPPush(cfg PushConfig) *HTTPPush {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().SetBaseURL(cfg.URL).SetTimeout(cfg.Timeout)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &HTTPPush{client: client}
}

func (p *HTTPPush) PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]string) error {
	if len(alias) == 0 {
		return fmt.Errorf("push: empty audience")
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"audience": map[string]interface{}{"alias": alias},
			"title":    title,
			"content":  content,
			"extras":   extras,
		}).
		Post("/push")
	if err != nil {
		return fmt.Errorf("push relay: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push relay: status %d", resp.StatusCode())
	}
	return nil
}
