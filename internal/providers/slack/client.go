// Package slack is a minimal Slack Web API client covering the calls the
// collector and the daily report need.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/freedom_case_2/crcollector/internal/providers"
)

const DefaultBaseURL = "https://slack.com/api"

// APIError is a 200 response carrying ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(token string, httpClient *http.Client) *Client {
	return &Client{BaseURL: DefaultBaseURL, Token: token, HTTP: httpClient}
}

type envelope struct {
	OK               bool   `json:"ok"`
	Error            string `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink"`
}

type Message struct {
	Type       string `json:"type"`
	Subtype    string `json:"subtype"`
	User       string `json:"user"`
	Text       string `json:"text"`
	TS         string `json:"ts"`
	ThreadTS   string `json:"thread_ts"`
	ReplyCount int    `json:"reply_count"`
	Files      []File `json:"files"`
}

type HistoryParams struct {
	Channel string
	Oldest  string
	Latest  string
	Cursor  string
	Limit   int
}

type MessagePage struct {
	Messages   []Message
	HasMore    bool
	NextCursor string
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Profile  struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

// DisplayName prefers the real name, then the handle.
func (u User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	if u.Name != "" {
		return u.Name
	}
	return "Unknown"
}

type Conversation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) History(ctx context.Context, p HistoryParams) (MessagePage, error) {
	q := url.Values{}
	q.Set("channel", p.Channel)
	setIf(q, "oldest", p.Oldest)
	setIf(q, "latest", p.Latest)
	setIf(q, "cursor", p.Cursor)
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	q.Set("inclusive", "true")
	return c.messages(ctx, "conversations.history", q)
}

// Replies returns one page of a thread; the parent message is included first.
func (c *Client) Replies(ctx context.Context, channel, threadTS, cursor string, limit int) (MessagePage, error) {
	q := url.Values{}
	q.Set("channel", channel)
	q.Set("ts", threadTS)
	setIf(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.messages(ctx, "conversations.replies", q)
}

func (c *Client) messages(ctx context.Context, method string, q url.Values) (MessagePage, error) {
	var out struct {
		envelope
		Messages []Message `json:"messages"`
		HasMore  bool      `json:"has_more"`
	}
	if err := c.call(ctx, method, q, &out, &out.envelope); err != nil {
		return MessagePage{}, err
	}
	return MessagePage{
		Messages:   out.Messages,
		HasMore:    out.HasMore,
		NextCursor: out.ResponseMetadata.NextCursor,
	}, nil
}

func (c *Client) UserInfo(ctx context.Context, userID string) (User, error) {
	var out struct {
		envelope
		User User `json:"user"`
	}
	q := url.Values{}
	q.Set("user", userID)
	if err := c.call(ctx, "users.info", q, &out, &out.envelope); err != nil {
		return User{}, err
	}
	return out.User, nil
}

func (c *Client) ConversationInfo(ctx context.Context, channel string) (Conversation, error) {
	var out struct {
		envelope
		Channel Conversation `json:"channel"`
	}
	q := url.Values{}
	q.Set("channel", channel)
	if err := c.call(ctx, "conversations.info", q, &out, &out.envelope); err != nil {
		return Conversation{}, err
	}
	return out.Channel, nil
}

type PostedMessage struct {
	Channel string
	TS      string
}

// PostMessage sends mrkdwn text to a channel.
func (c *Client) PostMessage(ctx context.Context, channel, text string) (PostedMessage, error) {
	body, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    text,
		"mrkdwn":  true,
	})
	if err != nil {
		return PostedMessage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("chat.postMessage"), bytes.NewReader(body))
	if err != nil {
		return PostedMessage{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	var out struct {
		envelope
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if err := providers.DoJSON(c.HTTP, "slack", req, &out); err != nil {
		return PostedMessage{}, err
	}
	if !out.OK {
		return PostedMessage{}, &APIError{Method: "chat.postMessage", Code: out.Error}
	}
	return PostedMessage{Channel: out.Channel, TS: out.TS}, nil
}

// Permalink builds the archive link for a message timestamp.
func Permalink(channel, ts string) string {
	return "https://slack.com/archives/" + channel + "/p" + strings.ReplaceAll(ts, ".", "")
}

func (c *Client) call(ctx context.Context, method string, q url.Values, out any, env *envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(method)+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if err := providers.DoJSON(c.HTTP, "slack", req, out); err != nil {
		return err
	}
	if !env.OK {
		return &APIError{Method: method, Code: env.Error}
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + method
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
