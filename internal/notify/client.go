package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/codr1/Kickabout/internal/config"
)

// ErrUpstream marks a failure of the bot API or the token endpoint.
var ErrUpstream = errors.New("bot api error")

// Sender delivers one text to one phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// Client talks to the bot API. Bearer tokens come from the client-credentials
// grant and are cached until shortly before they expire.
type Client struct {
	httpClient *http.Client
	sendURL    string
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// NewClient builds a bot API client from cfg. ctx supplies values such as a
// custom oauth2.HTTPClient; its cancellation is dropped so token refreshes keep
// working while the queue drains at shutdown.
func NewClient(ctx context.Context, cfg config.BotConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("bot api is not configured")
	}
	sendURL, err := url.JoinPath(cfg.BaseURL, cfg.SendPath)
	if err != nil {
		return nil, fmt.Errorf("invalid bot base_url: %w", err)
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithoutCancel(ctx)
	httpClient := oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
	httpClient.Timeout = 10 * time.Second

	return &Client{httpClient: httpClient, sendURL: sendURL}, nil
}

func (c *Client) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(sendRequest{To: phone, Text: text})
	if err != nil {
		return fmt.Errorf("encode bot message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogSender writes messages to the log instead of delivering them. It stands
// in for the bot API in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone, text string) error {
	log.Info().
		Str("component", "notify").
		Str("to", maskPhone(phone)).
		Str("text", text).
		Msg("Bot API disabled, message logged only")
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
