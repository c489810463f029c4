// Package chatter implements the HTTP transport for the Chatter service.
// Every RPC method gets its own typed client method; failures surface as
// *AuthError, *RemoteError or *ProtocolError so callers can react per kind.
package chatter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/chattertools/chattergo/wire"
)

const apiPrefix = "/ajax/chat/"

// Client is the Chatter API client.
type Client struct {
	baseURL string
	httpCli *http.Client
	retries uint64
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpCli = h }
}

// WithLogger sets the client logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRetries sets how many times a transient failure is retried before
// giving up. Auth and protocol failures are never retried.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// NewClient creates a new Chatter client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCli: &http.Client{Timeout: 15 * time.Second},
		retries: 2,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetToken exchanges a short-lived pass for a chat token.
func (c *Client) GetToken(ctx context.Context, pass string) (string, error) {
	var resp wire.TokenResponse
	if err := c.call(ctx, "get_token", &wire.TokenRequest{Pass: pass}, &resp); err != nil {
		return "", err
	}
	if resp.ChatToken == "" {
		return "", &ProtocolError{Method: "get_token", Message: "response missing chat_token"}
	}
	return resp.ChatToken, nil
}

// CreateTell sends a direct message from username to recipient.
func (c *Client) CreateTell(ctx context.Context, token, username, recipient, msg string) error {
	var resp wire.CreateChatResponse
	return c.call(ctx, "create_chat", &wire.CreateChatRequest{
		ChatToken: token,
		Username:  username,
		Tell:      recipient,
		Msg:       msg,
	}, &resp)
}

// CreateChannelMessage broadcasts a message from username to a channel.
func (c *Client) CreateChannelMessage(ctx context.Context, token, username, channel, msg string) error {
	var resp wire.CreateChatResponse
	return c.call(ctx, "create_chat", &wire.CreateChatRequest{
		ChatToken: token,
		Username:  username,
		Channel:   channel,
		Msg:       msg,
	}, &resp)
}

// Chats fetches the raw records delivered to usernames after the given
// epoch-second timestamp, grouped by receiving user.
func (c *Client) Chats(ctx context.Context, token string, usernames []string, after int64) (map[string][]wire.RawRecord, error) {
	var resp wire.ChatsResponse
	err := c.call(ctx, "chats", &wire.ChatsRequest{
		ChatToken: token,
		Usernames: usernames,
		After:     after,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// ChatsBefore fetches the raw records delivered to usernames before the
// given epoch-second timestamp, grouped by receiving user.
func (c *Client) ChatsBefore(ctx context.Context, token string, usernames []string, before int64) (map[string][]wire.RawRecord, error) {
	var resp wire.ChatsResponse
	err := c.call(ctx, "chats", &wire.ChatsRequest{
		ChatToken: token,
		Usernames: usernames,
		Before:    before,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// AccountData fetches the raw per-user-per-channel membership structure.
func (c *Client) AccountData(ctx context.Context, token string) (map[string]map[string][]string, error) {
	var resp wire.AccountDataResponse
	if err := c.call(ctx, "account_data", &wire.AccountDataRequest{ChatToken: token}, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// call issues one RPC, retrying transient failures (network errors, non-401
// non-2xx statuses) with exponential backoff. Auth, remote and protocol
// failures are permanent.
func (c *Client) call(ctx context.Context, method string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	attempt := 0
	op := func() error {
		attempt++
		if err := c.doOnce(ctx, method, payload, out); err != nil {
			c.log.Debug().Str("method", method).Int("attempt", attempt).Err(err).Msg("chatter call failed")
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx))
}

func (c *Client) doOnce(ctx context.Context, method string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+method, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return backoff.Permanent(&AuthError{Message: "expired or invalid token"})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return backoff.Permanent(&ProtocolError{
			Method:  method,
			Message: fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type")),
		})
	}
	if cs, ok := params["charset"]; ok {
		// UTF-8 is the protocol default and the only charset we decode.
		switch strings.ToLower(cs) {
		case "utf-8", "utf8", "us-ascii":
		default:
			return backoff.Permanent(&ProtocolError{
				Method:  method,
				Message: fmt.Sprintf("unsupported charset %q", cs),
			})
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	var env wire.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return backoff.Permanent(&ProtocolError{Method: method, Message: "malformed response envelope"})
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request rejected"
		}
		return backoff.Permanent(&RemoteError{Method: method, Message: msg})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(&ProtocolError{Method: method, Message: "malformed response body"})
	}
	return nil
}
