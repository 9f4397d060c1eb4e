// Package caoclient is a thin HTTP client against a running cao-server,
// shared by cmd/cao and cmd/cao-mcp so neither carries orchestration
// logic of its own (spec section 6's external-interfaces boundary: the
// CLI and MCP adapter are HTTP clients, not a second implementation of
// the control plane).
package caoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExitCode classifies a client-side failure into the exit codes spec
// section 6 assigns to CLI front-ends.
type ExitCode int

const (
	ExitOK                ExitCode = 0
	ExitGenericFailure    ExitCode = 1
	ExitInvalidUsage      ExitCode = 2
	ExitServerUnreachable ExitCode = 3
	ExitNotFound          ExitCode = 4
)

// Error wraps a failed request with the exit code its caller should use.
type Error struct {
	Code ExitCode
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 0},
	}
}

// Do issues method/path with an optional JSON body, decoding the response
// body into out (if non-nil). A connection failure maps to
// ExitServerUnreachable, a 404 to ExitNotFound, any other non-2xx to
// ExitGenericFailure — so every CLI command can simply bubble the
// returned error up to main's exit-code switch.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Code: ExitGenericFailure, Msg: fmt.Sprintf("encoding request: %v", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return &Error{Code: ExitInvalidUsage, Msg: fmt.Sprintf("building request: %v", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Code: ExitServerUnreachable, Msg: fmt.Sprintf("cannot reach cao-server at %s: %v", c.BaseURL, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &Error{Code: ExitNotFound, Msg: readErrorMessage(resp)}
	}
	if resp.StatusCode >= 300 {
		return &Error{Code: ExitGenericFailure, Msg: readErrorMessage(resp)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Code: ExitGenericFailure, Msg: fmt.Sprintf("decoding response: %v", err)}
		}
	}
	return nil
}

// DoRaw issues a request with a raw body (used for flow file uploads,
// which are not JSON) and returns the raw response body.
func (c *Client) DoRaw(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, &Error{Code: ExitInvalidUsage, Msg: fmt.Sprintf("building request: %v", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &Error{Code: ExitServerUnreachable, Msg: fmt.Sprintf("cannot reach cao-server at %s: %v", c.BaseURL, err)}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ExitGenericFailure, Msg: fmt.Sprintf("reading response: %v", err)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &Error{Code: ExitNotFound, Msg: string(data)}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{Code: ExitGenericFailure, Msg: string(data)}
	}
	return data, nil
}

func readErrorMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		return fmt.Sprintf("cao-server returned %s", resp.Status)
	}
	return fmt.Sprintf("%s: %s", body.Kind, body.Message)
}

// DefaultTimeout is a 30-second request bound. The client built by New
// sets no timeout and nothing in this module applies DefaultTimeout, so
// requests are not bounded by it.
const DefaultTimeout = 30 * time.Second
