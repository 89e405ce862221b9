package notify

import (
	"context"
	"net/http"
	"strings"
)

// Embed colours: red for exposure that needs an operator, green otherwise.
const (
	discordRed   = 0xE74C3C
	discordGreen = 0x2ECC71
)

// DiscordSender posts embeds to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient}
}

// Send implements Sender.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	color := discordGreen
	if strings.HasPrefix(title, "PARTIAL") {
		color = discordRed
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordPayload{
		Username: "sportsarb",
		Embeds:   []discordEmbed{{Title: title, Description: message, Color: color}},
	})
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }
