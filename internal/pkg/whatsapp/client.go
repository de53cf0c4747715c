package whatsapp

import (
	"Campus/internal/api/config"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

var ErrNotConfigured = errors.New("whatsapp channel not configured")

// OutboundMessage 一条待投递的出站消息
type OutboundMessage struct {
	To        string
	Type      string // TEXT / IMAGE / DOCUMENT / AUDIO / VIDEO ...
	Body      string
	MediaURL  string
	MediaType string
}

// Sender 外部投递通道
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
}

// Client WhatsApp Business Cloud API 客户端
type Client struct {
	http          *resty.Client
	phoneNumberID string
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// APIError 通道返回的业务错误
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: status=%d code=%d msg=%s", e.Status, e.Code, e.Message)
}

// Temporary 5xx 与限流可重试
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == 429
}

func NewClient(cfg config.WhatsAppConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{
		http:          client,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

// Send 投递消息，返回通道侧消息 ID
func (c *Client) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	if c.phoneNumberID == "" {
		return "", ErrNotConfigured
	}

	var out sendResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(buildPayload(msg)).
		SetResult(&out).
		SetError(&apiErr).
		Post("/" + c.phoneNumberID + "/messages")
	if err != nil {
		return "", fmt.Errorf("whatsapp request failed: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{
			Status:  resp.StatusCode(),
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
		}
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("whatsapp response carries no message id")
	}
	return out.Messages[0].ID, nil
}

// buildPayload 文本走 text，媒体按类型走 link 形式
func buildPayload(msg *OutboundMessage) map[string]any {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                normalizePhone(msg.To),
	}

	kind := strings.ToLower(msg.Type)
	switch kind {
	case "image", "document", "audio", "video":
		if msg.MediaURL != "" {
			media := map[string]any{"link": msg.MediaURL}
			if msg.Body != "" && kind != "audio" {
				media["caption"] = msg.Body
			}
			payload["type"] = kind
			payload[kind] = media
			return payload
		}
	}

	payload["type"] = "text"
	payload["text"] = map[string]any{"body": msg.Body, "preview_url": false}
	return payload
}

// normalizePhone 去掉空格、横线与前导 +
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
