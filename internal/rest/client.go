// Package rest issues authenticated requests against one endpoint's
// Discord v9 REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sparklost/spacebar-bridge/internal/event"
)

// discordEpochMS is the millisecond offset of Discord's snowflake epoch.
const discordEpochMS = 1420070400000

var (
	nonceMu   sync.Mutex
	lastNonce int64
)

// generateNonce approximates the current time as a Discord snowflake.
// Strictly monotonic even for calls within the same millisecond.
func generateNonce() string {
	n := (time.Now().UnixMilli() - discordEpochMS) << 22
	nonceMu.Lock()
	if n <= lastNonce {
		n = lastNonce + 1
	}
	lastNonce = n
	nonceMu.Unlock()
	return strconv.FormatInt(n, 10)
}

// Client talks to one endpoint's REST API. Operations open one connection
// each and fail soft: the relay loop logs and moves on.
type Client struct {
	name  string
	base  string
	token string
	http  *http.Client
}

func NewClient(name, host, token string) *Client {
	slog.Debug("rest: client ready", "endpoint", name, "api", baseURL(host))
	return &Client{
		name:  name,
		base:  baseURL(host),
		token: token,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// baseURL accepts either a bare host or a full URL.
func baseURL(host string) string {
	if u, err := url.Parse(host); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return "https://" + host
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// GetGatewayURL fetches the gateway WebSocket URL for this endpoint.
func (c *Client) GetGatewayURL(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, "GET", "/api/v9/gateway", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get gateway url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get gateway url: status %d", resp.StatusCode)
	}
	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gateway url: %w", err)
	}
	return result.URL, nil
}

// GetMessagesOptions narrows a GetMessages query. Zero values are omitted
// from the URL.
type GetMessagesOptions struct {
	Before string
	After  string
	Around string
}

// GetMessages fetches up to limit messages from a channel, newest first.
func (c *Client) GetMessages(ctx context.Context, channelID string, limit int, opts GetMessagesOptions) ([]event.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/api/v9/channels/%s/messages?limit=%d", channelID, limit)
	if opts.Before != "" {
		path += "&before=" + opts.Before
	}
	if opts.After != "" {
		path += "&after=" + opts.After
	}
	if opts.Around != "" {
		path += "&around=" + opts.Around
	}
	req, err := c.newRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch messages: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return event.ParseMessages(data)
}

// EmbedAuthor frames the original author inside a mirrored embed.
type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// Embed is the outgoing embed shape for mirrored messages.
type Embed struct {
	Type        string       `json:"type"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Description string       `json:"description,omitempty"`
}

type messageReference struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

type allowedMentions struct {
	Parse       []string `json:"parse"`
	RepliedUser bool     `json:"replied_user"`
}

// SendMessageOptions carries the optional parts of a send.
type SendMessageOptions struct {
	ReplyID        string
	ReplyChannelID string
	ReplyGuildID   string
	ReplyPing      bool
	Embeds         []Embed
	StickerIDs     []string
}

type sendPayload struct {
	Content          string            `json:"content"`
	TTS              bool              `json:"tts"`
	Flags            int               `json:"flags"`
	Nonce            string            `json:"nonce"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
	AllowedMentions  *allowedMentions  `json:"allowed_mentions,omitempty"`
	Embeds           []Embed           `json:"embeds,omitempty"`
	StickerIDs       []string          `json:"sticker_ids,omitempty"`
}

// SendMessage posts a message and returns the created message id.
func (c *Client) SendMessage(ctx context.Context, channelID, content string, opts SendMessageOptions) (string, error) {
	payload := sendPayload{
		Content:    content,
		Nonce:      generateNonce(),
		Embeds:     opts.Embeds,
		StickerIDs: opts.StickerIDs,
	}
	if opts.ReplyID != "" && opts.ReplyChannelID != "" {
		payload.MessageReference = &messageReference{
			MessageID: opts.ReplyID,
			ChannelID: opts.ReplyChannelID,
			GuildID:   opts.ReplyGuildID,
		}
		if !opts.ReplyPing {
			payload.AllowedMentions = &allowedMentions{
				Parse:       []string{"users", "roles", "everyone"},
				RepliedUser: false,
			}
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, "POST", fmt.Sprintf("/api/v9/channels/%s/messages", channelID), body)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("send message: status %d", resp.StatusCode)
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode sent message: %w", err)
	}
	return result.ID, nil
}

// SendUpdateMessage edits a previously mirrored message.
func (c *Client) SendUpdateMessage(ctx context.Context, channelID, messageID, content string, embeds []Embed) error {
	payload := struct {
		Content string  `json:"content"`
		Embeds  []Embed `json:"embeds,omitempty"`
	}{Content: content, Embeds: embeds}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, "PATCH", fmt.Sprintf("/api/v9/channels/%s/messages/%s", channelID, messageID), body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edit message: status %d", resp.StatusCode)
	}
	return nil
}

// SendDeleteMessage removes a previously mirrored message.
func (c *Client) SendDeleteMessage(ctx context.Context, channelID, messageID string) error {
	req, err := c.newRequest(ctx, "DELETE", fmt.Sprintf("/api/v9/channels/%s/messages/%s", channelID, messageID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete message: status %d", resp.StatusCode)
	}
	return nil
}

// SendReaction adds the bot's reaction to a message.
func (c *Client) SendReaction(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/api/v9/channels/%s/messages/%s/reactions/%s/%%40me?location=Message%%20Reaction%%20Picker&type=0",
		channelID, messageID, url.PathEscape(emoji))
	req, err := c.newRequest(ctx, "PUT", path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("send reaction: status %d", resp.StatusCode)
	}
	return nil
}

// RemoveReaction removes the bot's reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/api/v9/channels/%s/messages/%s/reactions/%s/0/%%40me?location=Message%%20Inline%%20Button&burst=false",
		channelID, messageID, url.PathEscape(emoji))
	req, err := c.newRequest(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remove reaction: status %d", resp.StatusCode)
	}
	return nil
}
