package transport

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

	"github.com/adamavenir/huddle/internal/types"
	"golang.org/x/time/rate"
)

// APIError represents a non-2xx response from the chat API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("chat api error: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("chat api error: %s (%d)", e.Code, e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("chat api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chat api error (%d)", e.Status)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type apiErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Options configures a Client.
type Options struct {
	Token      string
	HTTPClient *http.Client
	// SendRate limits outgoing writes per second; zero disables limiting.
	SendRate  float64
	SendBurst int
}

// Client talks to the chat API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a chat API client.
func NewClient(baseURL string, opts Options) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	c := &Client{baseURL: normalized, token: opts.Token, httpClient: httpClient}
	if opts.SendRate > 0 {
		burst := opts.SendBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), burst)
	}
	return c, nil
}

// NormalizeBaseURL normalizes a server URL and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("server url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("server url must include scheme (https://)")
	}
	return strings.TrimRight(value, "/"), nil
}

type messagesResponse struct {
	Messages []types.Message `json:"messages"`
}

type votesResponse struct {
	Votes []types.PollVote `json:"votes"`
}

// SendMessage posts a message. The correlation id travels as clientId and is
// echoed back by the server.
func (c *Client) SendMessage(ctx context.Context, req types.SendRequest) (*types.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var msg types.Message
	path := "/conversations/" + url.PathEscape(req.ConversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchMessages returns the conversation history visible to userID.
func (c *Client) FetchMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error) {
	var resp messagesResponse
	query := url.Values{}
	query.Set("userId", userID)
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// UpdateMessage replaces a message's content.
func (c *Client) UpdateMessage(ctx context.Context, messageID string, req types.UpdateRequest) (*types.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var msg types.Message
	if err := c.doJSON(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Vote records a poll vote and returns the poll's vote list.
func (c *Client) Vote(ctx context.Context, req types.VoteRequest) ([]types.PollVote, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var resp votesResponse
	path := "/messages/" + url.PathEscape(req.MessageID) + "/votes"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Votes, nil
}

// PollVotes returns the confirmed votes for a poll message.
func (c *Client) PollVotes(ctx context.Context, messageID string) ([]types.PollVote, error) {
	var resp votesResponse
	path := "/messages/" + url.PathEscape(messageID) + "/votes"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Votes, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limit: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload apiErrorPayload
		if err := json.Unmarshal(respData, &payload); err == nil {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	return json.Unmarshal(respData, respBody)
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	endpoint := base.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}
