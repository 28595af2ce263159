package platform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GatewayFactory dials sessions through the platform gateway sidecar,
// which terminates the platform's wire protocol and exposes a plain HTTP
// surface. The sealed session travels as a bearer credential.
type GatewayFactory struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewGatewayFactory(baseURL string) *GatewayFactory {
	return &GatewayFactory{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *GatewayFactory) Dial(ctx context.Context, session []byte) (Client, error) {
	c := &gatewayClient{
		baseURL: f.BaseURL,
		token:   base64.StdEncoding.EncodeToString(session),
		http:    f.HTTPClient,
	}
	return c, nil
}

type gatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *gatewayClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &TransientError{Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &TransientError{Op: path, Err: err}
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Reason: resp.Status}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(resp)}
	default:
		return &TransientError{Op: path, Err: fmt.Errorf("gateway returned %s", resp.Status)}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}

func (c *gatewayClient) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.get(ctx, "/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

func (c *gatewayClient) Dialogs(ctx context.Context, offsetDate time.Time, offsetID int64, limit int) (*DialogPage, error) {
	q := url.Values{}
	if !offsetDate.IsZero() {
		q.Set("offset_date", strconv.FormatInt(offsetDate.Unix(), 10))
	}
	if offsetID != 0 {
		q.Set("offset_id", strconv.FormatInt(offsetID, 10))
	}
	q.Set("limit", strconv.Itoa(limit))

	var page DialogPage
	if err := c.get(ctx, "/dialogs", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *gatewayClient) Members(ctx context.Context, chatID int64, offset, limit int) (*MemberPage, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var page MemberPage
	path := fmt.Sprintf("/chats/%d/members", chatID)
	if err := c.get(ctx, path, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *gatewayClient) Messages(ctx context.Context, chatID int64, cursor int64, limit int, direction string) (*MessagePage, error) {
	q := url.Values{}
	if cursor != 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("direction", direction)

	var page MessagePage
	path := fmt.Sprintf("/chats/%d/messages", chatID)
	if err := c.get(ctx, path, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *gatewayClient) Close() error {
	return nil
}
