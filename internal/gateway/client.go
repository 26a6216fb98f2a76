// internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/waflowhq/waflow-backend/internal/payload"
)

// Sender delivers one payload to the messaging gateway and returns the
// gateway-assigned message id.
type Sender interface {
	Send(ctx context.Context, p *payload.GatewayPayload) (string, error)
}

// Client posts messages to a WhatsApp-Cloud-style gateway API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send translates the queue payload into the gateway's wire format. Template
// sends carry name/language/components; direct sends carry type plus the
// matching content or media block.
func (c *Client) Send(ctx context.Context, p *payload.GatewayPayload) (string, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(p.To, "+"),
	}

	if p.TemplateName != "" {
		params := make([]map[string]any, 0, len(p.TemplateParameters))
		for _, v := range p.TemplateParameters {
			params = append(params, map[string]any{"type": "text", "text": v})
		}
		body["type"] = "template"
		body["template"] = map[string]any{
			"name":     p.TemplateName,
			"language": map[string]any{"code": p.TemplateLanguage},
			"components": []map[string]any{
				{"type": "body", "parameters": params},
			},
		}
	} else {
		body["type"] = p.MessageType
		switch p.MessageType {
		case "text":
			body["text"] = map[string]any{"body": p.MessageContent}
		default:
			media := map[string]any{"link": p.MediaURL}
			if p.Caption != "" {
				media["caption"] = p.Caption
			}
			body[p.MessageType] = media
		}
	}

	if p.ContextMessageID != "" {
		body["context"] = map[string]any{"message_id": p.ContextMessageID}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("gateway accepted send but returned no message id")
	}
	return out.Messages[0].ID, nil
}

var _ Sender = (*Client)(nil)
