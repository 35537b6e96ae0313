// ABOUTME: HTTP client for the backend query API
// ABOUTME: Paginated conversation listing, full-thread loads, live-agent toggles

package backend

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
	"time"

	"github.com/2389/inbox-console/internal/model"
)

const defaultRequestTimeout = 15 * time.Second

// Client talks to the backend query API. All persistence lives behind it;
// the engine holds no local storage.
type Client struct {
	baseURL  string
	clientID string
	token    string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a backend client. Pass nil logger for default.
func NewClient(baseURL, clientID, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		token:    token,
		http:     &http.Client{Timeout: defaultRequestTimeout},
		logger:   logger.With("component", "backend"),
	}
}

// listResponse is the paginated query endpoint's wire shape.
type listResponse struct {
	Data       []*model.ConversationSummary `json:"data"`
	TotalCount int                          `json:"totalCount"`
	HasMore    bool                         `json:"hasMore"`
}

// threadResponse is the full-thread endpoint's wire shape. Messages arrive
// nested under content, mirroring the conversation record's stored form.
type threadResponse struct {
	Content struct {
		Messages []model.MessageRecord `json:"messages"`
	} `json:"content"`
}

// ListConversations fetches one page of conversation summaries matching the
// filter. Pages are 0-based. Failures are returned as *model.TransportError
// so callers can keep the stale list and surface an error flag.
func (c *Client) ListConversations(ctx context.Context, filter model.FilterCriteria, page, limit int) (*model.Page, error) {
	if page < 0 {
		return nil, fmt.Errorf("page must be >= 0, got %d", page)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	q := url.Values{}
	q.Set("clientId", c.clientID)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if filter.SearchQuery != "" {
		q.Set("searchQuery", filter.SearchQuery)
	}
	if filter.Channel != "" {
		q.Set("selectedChannel", string(filter.Channel))
	}
	if filter.SelectedThreadID != "" {
		q.Set("selectedChatId", filter.SelectedThreadID)
	}
	if filter.DateStart != nil {
		q.Set("dateStart", filter.DateStart.UTC().Format(time.RFC3339))
	}
	if filter.DateEnd != nil {
		q.Set("dateEnd", filter.DateEnd.UTC().Format(time.RFC3339))
	}
	if filter.Sort != "" {
		q.Set("sortBy", string(filter.Sort))
	}

	var resp listResponse
	if err := c.getJSON(ctx, "/conversations?"+q.Encode(), &resp); err != nil {
		return nil, &model.TransportError{Op: "list conversations", Err: err}
	}

	c.logger.Debug("page fetched",
		"page", page,
		"items", len(resp.Data),
		"total_count", resp.TotalCount,
		"has_more", resp.HasMore)

	return &model.Page{
		Items:      resp.Data,
		TotalCount: resp.TotalCount,
		HasMore:    resp.HasMore,
	}, nil
}

// GetThread fetches the full message thread for one conversation.
func (c *Client) GetThread(ctx context.Context, conversationID string) ([]model.MessageRecord, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	var resp threadResponse
	path := "/conversations/" + url.PathEscape(conversationID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, &model.TransportError{Op: "load thread", Err: err}
	}

	c.logger.Debug("thread loaded",
		"conversation_id", conversationID,
		"messages", len(resp.Content.Messages))

	return resp.Content.Messages, nil
}

// SetLiveAgent toggles the per-conversation live-agent flag on the backend
// and returns the updated record.
func (c *Client) SetLiveAgent(ctx context.Context, conversationID string, live bool) (*model.ConversationSummary, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	body := map[string]bool{"is_live_agent": live}
	var updated model.ConversationSummary
	path := "/conversations/" + url.PathEscape(conversationID) + "/live-agent"
	if err := c.doJSON(ctx, http.MethodPut, path, body, &updated); err != nil {
		return nil, &model.TransportError{Op: "toggle live agent", Err: err}
	}

	c.logger.Debug("live agent toggled",
		"conversation_id", conversationID,
		"live", live)

	return &updated, nil
}

// AppendMessages persists an appended message array on a conversation record.
// This is the website channel's delivery path: the widget polls the record,
// so persisting is the send.
func (c *Client) AppendMessages(ctx context.Context, conversationID string, msgs []model.MessageRecord) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}

	body := map[string]any{"messages": msgs}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return &model.TransportError{Op: "append messages", Err: err}
	}
	return nil
}

// getJSON performs a GET and decodes a JSON response body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// doJSON performs one JSON request/response round trip.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a little of the body for log context, then discard
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("backend returned error status",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(snippet))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
