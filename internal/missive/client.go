package missive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chirino/portal-service/internal/config"
	"github.com/chirino/portal-service/internal/security"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the Missive API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("missive API error: %d %s", e.Status, e.Body)
}

// Client is an authenticated Missive API client. It holds no mutable
// state; construct one and pass it to the components that need it.
type Client struct {
	baseURL          string
	token            string
	httpClient       *http.Client
	pageLimit        int
	messagePageLimit int
}

// NewClient builds a Client from config.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:          strings.TrimRight(cfg.MissiveBaseURL, "/"),
		token:            cfg.MissiveAPIToken,
		httpClient:       &http.Client{Timeout: defaultTimeout},
		pageLimit:        cfg.MissivePageLimit,
		messagePageLimit: cfg.MessagePageLimit,
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		security.ObserveMissiveRequest(endpoint, 0)
		return fmt.Errorf("missive request failed: %w", err)
	}
	defer resp.Body.Close()
	security.ObserveMissiveRequest(endpoint, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("missive: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("missive: parse response: %w", err)
	}
	return nil
}

// ListSharedLabels fetches the complete shared-label collection by
// walking limit/offset pages until a short page signals the end. Any
// transport failure aborts the whole fetch; a partial taxonomy is never
// returned, since reconciliation must only ever see the full remote set.
func (c *Client) ListSharedLabels(ctx context.Context) ([]SharedLabel, error) {
	var all []SharedLabel
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageLimit))
		params.Set("offset", strconv.Itoa(offset))

		var page sharedLabelsResponse
		if err := c.get(ctx, "/shared_labels", params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.SharedLabels...)
		if len(page.SharedLabels) < c.pageLimit {
			return all, nil
		}
		offset += c.pageLimit
	}
}

// ListConversations fetches the conversations carrying the given shared
// label. Missive caps the page at 50; the portal's per-client volume
// fits in one page, matching the upstream behaviour.
func (c *Client) ListConversations(ctx context.Context, labelID string) ([]Conversation, error) {
	params := url.Values{}
	params.Set("shared_label", labelID)
	params.Set("limit", "50")

	var resp conversationsResponse
	if err := c.get(ctx, "/conversations", params, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetConversation fetches one conversation by id. A conversation that no
// longer exists returns (nil, nil); only transport failures are errors.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var resp conversationsResponse
	err := c.get(ctx, "/conversations/"+url.PathEscape(conversationID), nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(resp.Conversations) == 0 {
		return nil, nil
	}
	return &resp.Conversations[0], nil
}

// ListMessages fetches every message of a conversation. Missive returns
// pages newest-first; when a full page comes back the next request asks
// for messages delivered before the oldest one seen (the until bound),
// until a short page ends the walk. The accumulated slice is returned in
// fetch order, i.e. newest-first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var all []Message
	var until int64
	endpoint := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.messagePageLimit))
		if until > 0 {
			params.Set("until", strconv.FormatInt(until, 10))
		}

		var page messagesResponse
		if err := c.get(ctx, endpoint, params, &page); err != nil {
			return nil, err
		}
		if len(page.Messages) == 0 {
			return all, nil
		}
		all = append(all, page.Messages...)
		if len(page.Messages) < c.messagePageLimit {
			return all, nil
		}
		until = page.Messages[len(page.Messages)-1].DeliveredAt
	}
}
