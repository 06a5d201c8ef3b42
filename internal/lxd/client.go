package lxd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSocketPath is where the snap-packaged LXD daemon listens.
const DefaultSocketPath = "/var/snap/lxd/common/lxd/unix.socket"

// DefaultBaseURL is the API root used to build resource URLs. The
// host part is a placeholder: the connection always goes through the
// unix socket.
const DefaultBaseURL = "http://lxd/1.0"

// ErrNotFound indicates the requested resource does not exist on the
// daemon. Callers treat it as a benign condition: "needs creation",
// "already gone", or, while polling an operation, "finished and
// garbage-collected".
var ErrNotFound = errors.New("not found")

// response is the LXD API response envelope.
type response struct {
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	ErrorCode  int             `json:"error_code"`
	Error      string          `json:"error"`
	Metadata   json.RawMessage `json:"metadata"`
}

// metadataInto unmarshals the envelope's metadata into v. A missing
// metadata field leaves v untouched.
func (r *response) metadataInto(v any) error {
	if len(r.Metadata) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Metadata, v); err != nil {
		return fmt.Errorf("failed to decode response metadata: %w", err)
	}
	return nil
}

// requester is the request transport the driver components consume.
//
// In production it is satisfied by *Client. In tests it is satisfied
// by mock implementations.
type requester interface {
	// request issues an HTTP method with an optional JSON body against
	// url and returns the parsed envelope. A 404 comes back as an
	// error wrapping ErrNotFound; any other failure as a generic
	// error.
	request(ctx context.Context, method, url string, body any) (*response, error)
}

// Client talks to the LXD daemon over its local unix socket.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient returns a client dialing the daemon at socketPath,
// defaulting to DefaultSocketPath when empty.
func NewClient(socketPath string, logger *zap.Logger) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		// One local daemon, keep the pool small.
		MaxIdleConns:    2,
		IdleConnTimeout: 30 * time.Second,
	}

	return &Client{
		http:   &http.Client{Transport: transport},
		logger: logger,
	}
}

func (c *Client) request(ctx context.Context, method, url string, body any) (*response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	requestID := uuid.NewString()
	c.logger.Debug("lxd request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("url", url))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%s %s: failed to decode response: %w", method, url, err)
	}

	c.logger.Debug("lxd response",
		zap.String("request_id", requestID),
		zap.Int("http_status", resp.StatusCode),
		zap.String("type", envelope.Type),
		zap.Int("error_code", envelope.ErrorCode))

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	}
	if envelope.Type == "error" || resp.StatusCode >= 400 {
		if envelope.ErrorCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("%s %s: %s (error code %d)", method, url, envelope.Error, envelope.ErrorCode)
	}

	return &envelope, nil
}

// URL builders for the daemon's resources. The wire shapes are a
// stable contract with the daemon.

func instancesURL(base string) string {
	return base + "/virtual-machines"
}

func instanceURL(base, name string) string {
	return base + "/virtual-machines/" + name
}

func instanceStateURL(base, name string) string {
	return instanceURL(base, name) + "/state"
}

func operationURL(base, id string) string {
	return base + "/operations/" + id
}

func imagesURL(base string) string {
	return base + "/images"
}

func imageURL(base, fingerprint string) string {
	return base + "/images/" + fingerprint
}
