package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookqueue/core"
)

func TestRESTAdapter_SendsHeadersQueryAndBody(t *testing.T) {
	var gotAuth, gotQuery, gotBody, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("locationId")
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.DefaultHeaders["Authorization"] = "Bearer default"
	res, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:  http.MethodPost,
		URL:     server.URL + "/push",
		Headers: map[string]string{"Authorization": "Bearer tok"},
		Query:   map[string]string{"locationId": "loc1"},
		Body:    []byte(`{"title":"hi"}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusCreated || string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response %+v", res)
	}
	if gotAuth != "Bearer tok" || gotQuery != "loc1" || gotMethod != http.MethodPost || gotBody != `{"title":"hi"}` {
		t.Fatalf("unexpected request auth=%q query=%q method=%q body=%q", gotAuth, gotQuery, gotMethod, gotBody)
	}
	if res.Headers["Content-Type"] != "application/json" {
		t.Fatalf("expected flattened headers, got %+v", res.Headers)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorTransient {
		t.Fatalf("expected %q text code, got %q", core.ErrorTransient, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_NilClientReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), core.TransportRequest{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ErrorInternal, rich.TextCode)
	}
}

func TestCheckStatus_ClassifiesResponses(t *testing.T) {
	cases := []struct {
		status int
		want   core.ErrorKind
	}{
		{http.StatusOK, ""},
		{http.StatusTooManyRequests, core.KindTransient},
		{http.StatusBadGateway, core.KindTransient},
		{http.StatusNotFound, core.KindReferenceNotFound},
		{http.StatusUnprocessableEntity, core.KindValidation},
	}
	for _, tc := range cases {
		err := CheckStatus(core.TransportResponse{StatusCode: tc.status}, "fetch contact")
		if got := core.KindOf(err); got != tc.want {
			t.Fatalf("status %d: expected %q, got %q (%v)", tc.status, tc.want, got, err)
		}
	}
}

func TestJSONRequestAndDecodeJSON(t *testing.T) {
	req, err := JSONRequest(http.MethodPost, "https://push.local/send", map[string]any{"user_id": "u1"}, map[string]string{"Authorization": "Bearer tok"})
	if err != nil {
		t.Fatalf("json request: %v", err)
	}
	if req.Headers["Content-Type"] != "application/json" || req.Headers["Authorization"] != "Bearer tok" {
		t.Fatalf("unexpected headers %+v", req.Headers)
	}
	if string(req.Body) != `{"user_id":"u1"}` {
		t.Fatalf("unexpected body %s", req.Body)
	}

	var out struct {
		Contact map[string]any `json:"contact"`
	}
	if err := DecodeJSON(core.TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"contact":{"id":"c1"}}`)}, "fetch contact", &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Contact["id"] != "c1" {
		t.Fatalf("unexpected decoded contact %+v", out.Contact)
	}
	err = DecodeJSON(core.TransportResponse{StatusCode: http.StatusOK, Body: []byte(`not json`)}, "fetch contact", &out)
	if core.KindOf(err) != core.KindTransient {
		t.Fatalf("expected transient decode error, got %v", err)
	}
}

func TestCheckStatus_KeepsRetryAfter(t *testing.T) {
	res := core.TransportResponse{StatusCode: http.StatusTooManyRequests, Headers: map[string]string{"Retry-After": "12"}}
	if delay, ok := RetryAfter(res); !ok || delay.Seconds() != 12 {
		t.Fatalf("expected 12s retry after, got %v %v", delay, ok)
	}
	var rich *goerrors.Error
	if !goerrors.As(CheckStatus(res, "send push"), &rich) {
		t.Fatalf("expected go-errors envelope")
	}
	if rich.Metadata["retry_after_seconds"] != 12 {
		t.Fatalf("expected retry_after_seconds metadata, got %+v", rich.Metadata)
	}
	if _, ok := RetryAfter(core.TransportResponse{Headers: map[string]string{"Retry-After": "soon"}}); ok {
		t.Fatalf("expected unparseable retry after to be ignored")
	}
}
