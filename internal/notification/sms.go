package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrGatewayNotConfigured is returned by a live SMS channel that has no
// gateway URL or API key.
var ErrGatewayNotConfigured = errors.New("sms gateway not configured")

// SMSOptions configures the HTTP SMS gateway.
type SMSOptions struct {
	GatewayURL string
	APIKey     string
	Sender     string
	// DryRun logs instead of calling the gateway. It is never implied by
	// missing gateway settings.
	DryRun bool
}

type smsResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

// SMSChannel posts codes to a form-encoded SMS gateway.
type SMSChannel struct {
	opts   SMSOptions
	client *http.Client
	logger *zap.Logger
}

func NewSMSChannel(opts SMSOptions, client *http.Client, logger *zap.Logger) *SMSChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SMSChannel{opts: opts, client: client, logger: logger}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

func (c *SMSChannel) Send(ctx context.Context, msg Message) error {
	if c.opts.DryRun {
		// The code itself stays out of the log.
		c.logger.Info("sms dry-run", zap.String("to", msg.Recipient), zap.String("sender", c.opts.Sender))
		return nil
	}
	if c.opts.APIKey == "" || c.opts.GatewayURL == "" {
		return ErrGatewayNotConfigured
	}

	form := url.Values{
		"apiKey":    {c.opts.APIKey},
		"recipient": {msg.Recipient},
		"text":      {otpSMSText(msg)},
	}
	if c.opts.Sender != "" {
		form.Set("from", c.opts.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.GatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read SMS response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sms gateway returned HTTP %d", resp.StatusCode)
	}

	var result smsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parse SMS response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("sms gateway returned error code: %d", result.Code)
	}

	c.logger.Debug("sms sent", zap.String("to", msg.Recipient), zap.String("message_id", result.Data.MessageID))
	return nil
}
