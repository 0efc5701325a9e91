package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookqueue/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second

const defaultRESTResponseBodyLimit int64 = 10 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes transport requests over HTTP. It is shared by the CRM
// client and the push client.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	target := map[string]any{"adapter": KindREST, "method": httpReq.Method, "url": httpReq.URL.Redacted()}

	startedAt := a.now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			target,
		)
	}
	defer httpRes.Body.Close()

	body, err := readLimited(httpRes, limitFor(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes))
	if err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": a.now().Sub(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, transportError(
			"transport: request url is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST},
		)
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: invalid request url",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "url": rawURL},
		)
	}
	if len(req.Query) > 0 {
		query := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				query.Set(key, strings.TrimSpace(value))
			}
		}
		target.RawQuery = query.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "method": method},
		)
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	return httpReq, nil
}

func (a *RESTAdapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// JSONRequest builds a request whose body is payload encoded as JSON.
func JSONRequest(method string, target string, payload any, headers map[string]string) (core.TransportRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportRequest{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: encode json body",
			http.StatusBadRequest,
			map[string]any{"adapter": KindREST, "url": target},
		)
	}
	merged := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, value := range headers {
		merged[key] = value
	}
	return core.TransportRequest{Method: method, URL: target, Headers: merged, Body: body}, nil
}

// DecodeJSON checks the status of res and decodes its body into out. A body
// that does not decode is reported as a transient upstream fault.
func DecodeJSON(res core.TransportResponse, operation string, out any) error {
	if err := CheckStatus(res, operation); err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode "+operation+" response",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "operation": operation, "status_code": res.StatusCode},
		)
	}
	return nil
}

// CheckStatus turns a non-2xx response into a classified error: 429 and 5xx
// are transient, other 4xx are rejected input. A Retry-After header on a
// throttled response is kept in the error metadata.
func CheckStatus(res core.TransportResponse, operation string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	metadata := map[string]any{
		"adapter":     KindREST,
		"operation":   operation,
		"status_code": res.StatusCode,
	}
	message := fmt.Sprintf("transport: %s returned status %d", operation, res.StatusCode)
	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		if delay, ok := RetryAfter(res); ok {
			metadata["retry_after_seconds"] = int(delay / time.Second)
		}
		return transportError(message, goerrors.CategoryRateLimit, res.StatusCode, metadata)
	case res.StatusCode == http.StatusNotFound:
		return transportError(message, goerrors.CategoryNotFound, res.StatusCode, metadata)
	case res.StatusCode == http.StatusUnauthorized:
		return transportError(message, goerrors.CategoryAuth, res.StatusCode, metadata)
	case res.StatusCode >= 500:
		return transportError(message, goerrors.CategoryExternal, res.StatusCode, metadata)
	default:
		return transportError(message, goerrors.CategoryBadInput, res.StatusCode, metadata)
	}
}

// RetryAfter reads a delta-seconds Retry-After header.
func RetryAfter(res core.TransportResponse) (time.Duration, bool) {
	for key, value := range res.Headers {
		if !strings.EqualFold(key, "Retry-After") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	return 0, false
}

func readLimited(res *http.Response, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": res.StatusCode},
		)
	}
	if int64(len(body)) > limit {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"adapter": KindREST, "status_code": res.StatusCode, "response_limit_b": limit},
		)
	}
	return body, nil
}

func setHeaders(dst http.Header, headers map[string]string) {
	for key, value := range headers {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func limitFor(requestLimit int64, adapterLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case adapterLimit > 0:
		return adapterLimit
	default:
		return defaultRESTResponseBodyLimit
	}
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
