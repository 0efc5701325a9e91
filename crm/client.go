// Package crm reads records back from the CRM API for events that arrive
// without enough data to apply.
package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/transport"
)

const (
	DefaultBaseURL = "https://services.leadconnectorhq.com"
	DefaultVersion = "2021-07-28"
	defaultTimeout = 15 * time.Second
)

// Client fetches CRM records with the tenant's access token.
type Client struct {
	Transport core.TransportAdapter
	BaseURL   string
	Version   string
	Timeout   time.Duration
	Now       func() time.Time
}

func NewClient(adapter core.TransportAdapter, cfg core.CRMConfig) *Client {
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	client := &Client{
		Transport: adapter,
		BaseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		Version:   strings.TrimSpace(cfg.Version),
		Timeout:   cfg.Timeout,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	if client.BaseURL == "" {
		client.BaseURL = DefaultBaseURL
	}
	if client.Version == "" {
		client.Version = DefaultVersion
	}
	if client.Timeout <= 0 {
		client.Timeout = defaultTimeout
	}
	return client
}

// FetchContact returns the contact object of GET /contacts/{id}.
func (c *Client) FetchContact(ctx context.Context, location core.Location, contactID string) (map[string]any, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, core.NewValidationError("id", "contact id is required")
	}
	if c == nil || c.Transport == nil {
		return nil, core.NewInternalError(nil, "crm: client is not configured")
	}
	if !location.HasCredentials(c.now()) {
		return nil, core.NewValidationError("access_token", "location has no usable access token")
	}

	res, err := c.Transport.Do(ctx, core.TransportRequest{
		Method: http.MethodGet,
		URL:    c.BaseURL + "/contacts/" + url.PathEscape(contactID),
		Headers: map[string]string{
			"Authorization": "Bearer " + location.AccessToken,
			"Version":       c.Version,
			"Accept":        "application/json",
		},
		Timeout: c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Contact map[string]any `json:"contact"`
	}
	if err := transport.DecodeJSON(res, "fetch contact", &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Contact) == 0 {
		return nil, core.NewReferenceNotFoundError("contact", contactID)
	}
	return envelope.Contact, nil
}

func (c *Client) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.ContactEnricher = (*Client)(nil)
