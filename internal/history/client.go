// Package history talks to the EatUp REST API: message history snapshots,
// the session's group list, and the legacy (non-realtime) send path.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eatup/internal/domain"
)

const defaultRequestTimeout = 15 * time.Second

// ErrNoToken is returned when a call would go out without a bearer
// credential. Callers must not attempt requests before login.
var ErrNoToken = errors.New("missing bearer token")

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default().With("component", "history")
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

// flexID tolerates ids serialized as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""

		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)

		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*f = flexID(n.String())

	return nil
}

func (f flexID) String() string {
	return string(f)
}

type rawAuthor struct {
	ID        flexID `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
}

type rawMessage struct {
	ID        flexID     `json:"id"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
	Author    *rawAuthor `json:"author"`

	// The backend emitted both spellings at different points in time.
	IsEdited *bool `json:"isEdited"`
	Edited   *bool `json:"edited"`
}

type rawGroup struct {
	ID             flexID `json:"id"`
	Name           string `json:"name"`
	MissedMessages int    `json:"missedMessages"`
}

// FetchMessages returns the ordered point-in-time snapshot of a group's
// persisted messages. Safe to call repeatedly; callers replace, not merge.
func (c *Client) FetchMessages(ctx context.Context, group domain.Group) ([]domain.Message, error) {
	var raw []rawMessage
	path := fmt.Sprintf("/groups/%s/messages", url.PathEscape(group.Name))
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", group.Name, err)
	}

	out := make([]domain.Message, 0, len(raw))
	for _, m := range raw {
		out = append(out, mapMessage(m, group.ID))
	}

	return out, nil
}

// FetchGroups returns the groups the user belongs to, each enriched with
// member display names. Member lookup failures degrade to an empty list
// rather than failing the whole call.
func (c *Client) FetchGroups(ctx context.Context, email string) ([]domain.Group, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("user email is required")
	}

	var raw []rawGroup
	path := "/users/groups?email=" + url.QueryEscape(email)
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}

	out := make([]domain.Group, 0, len(raw))
	for _, g := range raw {
		group := domain.Group{ID: g.ID.String(), Name: g.Name, MissedMessages: g.MissedMessages}
		members, err := c.fetchGroupMembers(ctx, group.ID)
		if err != nil {
			c.logger.Debug("fetch group members failed", "group", group.Name, "error", err)
			members = nil
		}
		group.MemberNames = members
		out = append(out, group)
	}

	return out, nil
}

// SendMessage is the legacy request/response send path used by the
// non-realtime chat variant.
func (c *Client) SendMessage(ctx context.Context, group domain.Group, content, senderEmail string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if strings.TrimSpace(senderEmail) == "" {
		return errors.New("sender email is required")
	}

	path := fmt.Sprintf("/messages/%s?groupName=%s", url.PathEscape(group.Name), url.QueryEscape(group.Name))
	payload := map[string]string{
		"content":     content,
		"senderEmail": senderEmail,
		"groupId":     group.ID,
	}

	return c.postJSON(ctx, path, payload, nil)
}

// CreateGroup creates a group and invites the given members. Invites that
// fail are collected and returned; a failed invite does not fail creation.
func (c *Client) CreateGroup(ctx context.Context, name string, memberEmails []string, currentUserEmail string) (domain.Group, []string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Group{}, nil, errors.New("group name is required")
	}
	if strings.TrimSpace(currentUserEmail) == "" {
		return domain.Group{}, nil, errors.New("current user email is required")
	}

	var created rawGroup
	if err := c.postJSON(ctx, "/groups/create", map[string]string{"name": name}, &created); err != nil {
		return domain.Group{}, nil, fmt.Errorf("create group: %w", err)
	}
	group := domain.Group{ID: created.ID.String(), Name: created.Name, MissedMessages: created.MissedMessages}

	var failed []string
	for _, email := range memberEmails {
		email = strings.TrimSpace(email)
		if email == "" || strings.EqualFold(email, currentUserEmail) {
			continue
		}
		payload := map[string]string{
			"newUserEmail": email,
			"groupId":      group.ID,
			"adderEmail":   currentUserEmail,
		}
		if err := c.doJSON(ctx, http.MethodPut, "/groups/addUser", payload, nil); err != nil {
			c.logger.Warn("invite failed", "group", group.Name, "email", email, "error", err)
			failed = append(failed, email)
		}
	}

	members, err := c.fetchGroupMembers(ctx, group.ID)
	if err == nil {
		group.MemberNames = members
	}

	return group, failed, nil
}

func (c *Client) fetchGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var members []string
	if err := c.getJSON(ctx, "/groups/getMembers/"+url.PathEscape(groupID), &members); err != nil {
		return nil, err
	}

	return members, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	if c.token == "" {
		return ErrNoToken
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func mapMessage(raw rawMessage, groupID string) domain.Message {
	msg := domain.Message{
		ID:      raw.ID.String(),
		GroupID: groupID,
		Content: raw.Content,
		SentAt:  parseTimestamp(raw.Timestamp),
	}
	if raw.Author != nil {
		msg.Author = domain.Author{
			ID:        raw.Author.ID.String(),
			Name:      raw.Author.Name,
			FirstName: raw.Author.FirstName,
			Email:     raw.Author.Email,
		}
	}
	switch {
	case raw.IsEdited != nil:
		msg.Edited = *raw.IsEdited
	case raw.Edited != nil:
		msg.Edited = *raw.Edited
	}

	return msg
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}

	return time.Now()
}
