package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxDiscordContent is Discord's message content limit.
const maxDiscordContent = 2000

// Discord posts messages to Discord incoming webhooks.
type Discord struct {
	client *http.Client
}

// NewDiscord creates a webhook poster. A nil client uses a 10 second timeout.
func NewDiscord(client *http.Client) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{client: client}
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Post sends content to the webhook URL.
func (d *Discord) Post(ctx context.Context, webhookURL, title, content string) error {
	if !strings.HasPrefix(webhookURL, "https://") && !strings.HasPrefix(webhookURL, "http://") {
		return fmt.Errorf("invalid webhook url")
	}
	if len(content) > maxDiscordContent {
		content = content[:maxDiscordContent]
	}
	body, err := json.Marshal(discordPayload{
		Username: "Felicity",
		Content:  content,
		Embeds:   []discordEmbed{{Title: title}},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status: %d", resp.StatusCode)
	}
	return nil
}
