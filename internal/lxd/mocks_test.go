package lxd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// requestCall records one request seen by the mock.
type requestCall struct {
	Method string
	URL    string
	Body   any
}

// mockRequester is a mock implementation of the requester interface.
type mockRequester struct {
	mu sync.Mutex

	// requestFunc decides the response. When nil every request fails.
	requestFunc func(method, url string, body any) (*response, error)

	calls []requestCall
}

func (m *mockRequester) request(_ context.Context, method, url string, body any) (*response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, requestCall{Method: method, URL: url, Body: body})
	fn := m.requestFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("unexpected request: %s %s", method, url)
	}
	return fn(method, url, body)
}

// callsMatching returns the recorded calls with the given method whose
// URL contains substr.
func (m *mockRequester) callsMatching(method, substr string) []requestCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []requestCall
	for _, c := range m.calls {
		if c.Method == method && strings.Contains(c.URL, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockRequester) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mustMetadata marshals v into a response metadata payload.
func mustMetadata(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// syncResponse builds a successful synchronous envelope.
func syncResponse(metadata any) *response {
	return &response{
		Type:       "sync",
		Status:     "Success",
		StatusCode: statusSuccess,
		Metadata:   mustMetadata(metadata),
	}
}

// taskResponse builds the envelope a mutation returns when the daemon
// backgrounds the work.
func taskResponse(id string) *response {
	return &response{
		Type:       "async",
		Status:     "Operation created",
		StatusCode: statusOperationCreated,
		Metadata: mustMetadata(operationMetadata{
			ID:         id,
			Class:      "task",
			Status:     "Running",
			StatusCode: statusRunning,
		}),
	}
}

// operationResponse builds a poll result for an operation in the given
// status, optionally carrying download progress text.
func operationResponse(statusCode int, progress string) *response {
	op := operationMetadata{
		ID:         "op-1",
		Class:      "task",
		StatusCode: statusCode,
	}
	op.Metadata.DownloadProgress = progress
	return syncResponse(op)
}

// instanceStateResponse builds a GET /state result with the given
// status code and optional eth0 IPv4 address.
func instanceStateResponse(statusCode int, status, ipv4 string) *response {
	meta := instanceStateMetadata{
		Status:     status,
		StatusCode: statusCode,
	}
	if ipv4 != "" {
		meta.Network = map[string]instanceNetworkState{
			"eth0": {Addresses: []instanceAddress{
				{Family: "inet6", Address: "fd42::1"},
				{Family: "inet", Address: ipv4},
			}},
		}
	}
	return syncResponse(meta)
}

func notFound(url string) error {
	return fmt.Errorf("%s: %w", url, ErrNotFound)
}
