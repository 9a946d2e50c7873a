package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// SMSClient sends one text message.
type SMSClient interface {
	Send(ctx context.Context, phone, text string) error
}

type SMSConfig struct {
	GatewayURL string
	Token      string
	Sender     string
	Timeout    time.Duration
}

// GatewaySMS posts messages to an HTTP SMS gateway.
type GatewaySMS struct {
	cfg    SMSConfig
	client *resty.Client
}

func NewGatewaySMS(cfg SMSConfig) *GatewaySMS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &GatewaySMS{cfg: cfg, client: client}
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

func (g *GatewaySMS) Send(ctx context.Context, phone, text string) error {
	if phone == "" {
		return fmt.Errorf("sms: empty phone")
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(smsRequest{To: phone, From: g.cfg.Sender, Text: text}).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway: status %d", resp.StatusCode())
	}
	return nil
}
