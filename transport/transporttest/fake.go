// Package transporttest provides a scripted transport adapter for tests.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-hookqueue/core"
)

type Script struct {
	Response core.TransportResponse
	Err      error
}

// FakeAdapter replays scripts in order; the last script repeats once the
// list is exhausted.
type FakeAdapter struct {
	mu       sync.Mutex
	kind     string
	scripts  []Script
	requests []core.TransportRequest
}

func NewFakeAdapter(kind string, scripts ...Script) *FakeAdapter {
	return &FakeAdapter{
		kind:    strings.TrimSpace(strings.ToLower(kind)),
		scripts: append([]Script(nil), scripts...),
	}
}

func (a *FakeAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("transporttest: fake adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneRequest(req))
	index := len(a.requests) - 1
	if index < len(a.scripts) {
		script := a.scripts[index]
		return cloneResponse(script.Response), script.Err
	}
	if len(a.scripts) > 0 {
		last := a.scripts[len(a.scripts)-1]
		return cloneResponse(last.Response), last.Err
	}
	return core.TransportResponse{StatusCode: 200, Headers: map[string]string{}}, nil
}

func (a *FakeAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneRequest(item))
	}
	return out
}

func cloneRequest(in core.TransportRequest) core.TransportRequest {
	out := in
	out.Headers = make(map[string]string, len(in.Headers))
	out.Query = make(map[string]string, len(in.Query))
	out.Metadata = make(map[string]any, len(in.Metadata))
	out.Body = append([]byte(nil), in.Body...)
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Query {
		out.Query[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

func cloneResponse(in core.TransportResponse) core.TransportResponse {
	out := in
	out.Headers = make(map[string]string, len(in.Headers))
	out.Body = append([]byte(nil), in.Body...)
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeAdapter)(nil)
