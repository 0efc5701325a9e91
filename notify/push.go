package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/transport"
)

const defaultPushTimeout = 10 * time.Second

type pushRequest struct {
	UserID string         `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

// HTTPPushClient posts push messages to a push relay endpoint.
type HTTPPushClient struct {
	Transport core.TransportAdapter
	URL       string
	Token     string
	Timeout   time.Duration
}

func NewHTTPPushClient(adapter core.TransportAdapter, url string, token string) *HTTPPushClient {
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &HTTPPushClient{
		Transport: adapter,
		URL:       strings.TrimSpace(url),
		Token:     strings.TrimSpace(token),
		Timeout:   defaultPushTimeout,
	}
}

func (c *HTTPPushClient) SendToUser(ctx context.Context, userID string, msg core.PushMessage) error {
	if c == nil || c.Transport == nil || c.URL == "" {
		return core.NewNotificationError(nil, UserChannel(userID), "push")
	}
	headers := map[string]string{}
	if c.Token != "" {
		headers["Authorization"] = "Bearer " + c.Token
	}
	req, err := transport.JSONRequest(http.MethodPost, c.URL, pushRequest{
		UserID: strings.TrimSpace(userID),
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   msg.Data,
	}, headers)
	if err != nil {
		return core.NewNotificationError(err, UserChannel(userID), "push")
	}
	req.Timeout = c.Timeout
	res, err := c.Transport.Do(ctx, req)
	if err != nil {
		return err
	}
	return transport.CheckStatus(res, "send push")
}

var _ core.PushClient = (*HTTPPushClient)(nil)
