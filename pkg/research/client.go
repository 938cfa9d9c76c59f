package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/aletheia/internal/types"
)

// Client implements types.Backend for the research-agent HTTP API.
type Client struct {
	config     *Config
	httpClient *http.Client
}

var _ types.Backend = (*Client)(nil)

// New creates a backend client with the given configuration.
func New(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Location returns the backend base URL, used in error messages shown to the user.
func (c *Client) Location() string {
	return c.config.BaseURL
}

// ListConversations returns the caller's conversations in server order.
func (c *Client) ListConversations(ctx context.Context, token string) ([]types.Conversation, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/conversations", token, nil, &out); err != nil {
		return nil, err
	}
	if out.Conversations == nil {
		return []types.Conversation{}, nil
	}
	return out.Conversations, nil
}

// GetConversation returns the full message history of one conversation.
func (c *Client) GetConversation(ctx context.Context, token string, id types.ConversationID) ([]types.Message, error) {
	var out conversationResponse
	path := "/api/chat/conversations/" + url.PathEscape(string(id))
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]types.Message, len(out.Messages))
	for i, m := range out.Messages {
		msgs[i] = m.Normalize()
	}
	return msgs, nil
}

// SendMessage posts one user message and returns the decoded reply.
func (c *Client) SendMessage(ctx context.Context, token string, req types.SendRequest) (*types.SendResult, error) {
	body := sendRequest{
		Message:      req.Message,
		EnableSearch: req.EnableSearch,
	}
	if !req.ConversationID.IsNew() {
		id := string(req.ConversationID)
		body.ConversationID = &id
	}

	var out sendResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/send", token, body, &out); err != nil {
		return nil, err
	}

	result := &types.SendResult{
		Response:       out.Response,
		Message:        out.Message,
		ThinkingTrace:  out.ThinkingTrace,
		Sources:        out.Sources,
		MessageID:      types.MessageID(out.MessageID),
		ConversationID: types.ConversationID(out.ConversationID),
	}
	if result.ThinkingTrace == nil {
		result.ThinkingTrace = []types.ThinkingStep{}
	}
	if result.Sources == nil {
		result.Sources = []types.Source{}
	}
	return result, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, token string, id types.ConversationID) error {
	var out deleteResponse
	path := "/api/chat/conversations/" + url.PathEscape(string(id))
	return c.do(ctx, http.MethodDelete, path, token, nil, &out)
}

// do issues one JSON request. out may be nil.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
