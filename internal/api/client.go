// Package api implements the REST client for the chat service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coterie-chat/coterie/internal/logging"
	"github.com/coterie-chat/coterie/internal/model"
)

const defaultRequestTimeout = 15 * time.Second

// TokenSource supplies the current bearer token. An empty token means no
// session; requests are sent without an Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource for a fixed token value.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Client talks to the chat service's REST surface. Snapshot ordering is
// whatever the server returned; the client never reorders.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource

	// onUnauthorized runs once per 401 so the owning session can clear the
	// stored token.
	onUnauthorized func()

	log zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUnauthorizedHook registers a callback invoked on any 401 response.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient creates a REST client rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
		tokens:  tokens,
		log:     logging.Component("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detailBody struct {
	Detail string `json:"detail"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type historyItem struct {
	ID        int64           `json:"id"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
	Sender    string          `json:"sender"`
	AvatarURL string          `json:"avatar_url"`
	ReplyTo   *int64          `json:"reply_to"`
	IsDeleted bool            `json:"is_deleted"`
}

type historyResponse struct {
	History []historyItem `json:"history"`
}

type rosterItem struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	InterlocutorName    string `json:"interlocutor_name"`
	AvatarURL           string `json:"avatar_url"`
	InterlocutorDeleted bool   `json:"interlocutor_deleted"`
}

type rosterResponse struct {
	Chats []rosterItem `json:"chats"`
}

type createChatRequest struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
}

type createChatResponse struct {
	ChatID int64 `json:"chat_id"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type currentUserResponse struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

// Login exchanges credentials for a bearer token. Boundary call: credential
// issuance itself is the service's concern, the client only relays.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if password == "" {
		return "", &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if password == "" {
		return "", &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// CurrentUser validates the stored token and reports the account behind it.
func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var resp currentUserResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return model.User{}, err
	}
	return model.User{Username: resp.Username, AvatarURL: resp.AvatarURL, Bio: resp.Bio}, nil
}

// History fetches the point-in-time message snapshot for a chat. The server
// returns ascending timestamp order and that order is preserved as-is.
func (c *Client) History(ctx context.Context, chatID int64) ([]model.Message, error) {
	var resp historyResponse
	path := fmt.Sprintf("/messages/history/%d", chatID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(resp.History))
	for _, item := range resp.History {
		messages = append(messages, model.Message{
			ID:        item.ID,
			ChatID:    chatID,
			Sender:    item.Sender,
			AvatarURL: item.AvatarURL,
			Content:   decodeContent(item.Content),
			Timestamp: model.ParseTimestamp(item.Timestamp),
			ReplyTo:   item.ReplyTo,
			Deleted:   item.IsDeleted,
		})
	}
	return messages, nil
}

// Roster fetches the chat list for the given user.
func (c *Client) Roster(ctx context.Context, username string) ([]model.RosterEntry, error) {
	var resp rosterResponse
	path := "/chats/list/" + username
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]model.RosterEntry, 0, len(resp.Chats))
	for _, item := range resp.Chats {
		interlocutor := item.InterlocutorName
		if interlocutor == "" {
			interlocutor = item.Name
		}
		entries = append(entries, model.RosterEntry{
			ID:                  item.ID,
			Name:                item.Name,
			Interlocutor:        interlocutor,
			AvatarURL:           item.AvatarURL,
			InterlocutorDeleted: item.InterlocutorDeleted,
		})
	}
	return entries, nil
}

// CreateChat opens a one-on-one chat between the current user and target.
func (c *Client) CreateChat(ctx context.Context, currentUser, target string) (int64, error) {
	if strings.TrimSpace(target) == "" {
		return 0, &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	var resp createChatResponse
	err := c.do(ctx, http.MethodPost, "/chats/create", createChatRequest{User1: currentUser, User2: target}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ChatID, nil
}

// DeleteChat removes a chat and all its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/chats/delete/%d", chatID), nil, nil)
}

// EditMessage replaces a message's content in place.
func (c *Client) EditMessage(ctx context.Context, messageID int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	path := fmt.Sprintf("/messages/edit/%d", messageID)
	return c.do(ctx, http.MethodPut, path, editMessageRequest{Content: content}, nil)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/delete/%d", messageID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("transport failure")
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Warn().Str("path", path).Msg("session expired")
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail detailBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err := json.Unmarshal(data, &detail); err != nil || detail.Detail == "" {
			detail.Detail = strings.TrimSpace(string(data))
		}
		return &ServerError{StatusCode: resp.StatusCode, Detail: detail.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServerError{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("malformed response body: %v", err)}
	}
	return nil
}

// decodeContent unwraps the history content field, which is a plain string
// for text messages and an object for attachments.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return "[attachment]"
}
