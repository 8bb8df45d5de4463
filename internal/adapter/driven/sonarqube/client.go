// Package sonarqube implements the SonarClient port against the SonarQube Web API.
package sonarqube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SonarClient = (*Client)(nil)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// Client is a SonarQube Web API client bound to one host and one credential.
type Client struct {
	http    *http.Client
	baseURL string
	auth    driven.Auth
	logger  *slog.Logger
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// Tests use it to point the client at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, auth driven.Auth, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		logger:  logger,
	}
}

// errorBody is the error envelope returned by the Web API.
type errorBody struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

// get issues a GET with params encoded by go-querystring and decodes the
// JSON response into out. An empty or undecodable body yields a
// RemoteUnavailableData error.
func (c *Client) get(ctx context.Context, op string, params any, out any) error {
	values, err := query.Values(params)
	if err != nil {
		return &driven.RemoteError{Kind: driven.KindRemoteRejected, Op: op, Err: fmt.Errorf("encode query: %w", err)}
	}

	u := c.baseURL + "/api/" + op
	if encoded := values.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &driven.RemoteError{Kind: driven.KindRemoteRejected, Op: op, Err: err}
	}

	body, err := c.do(req, op)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return &driven.RemoteError{Kind: driven.KindRemoteUnavailableData, Op: op, Message: "empty response body"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &driven.RemoteError{Kind: driven.KindRemoteUnavailableData, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// post issues a form-encoded POST. When out is non-nil the JSON response is
// decoded into it; a write whose response cannot be decoded is rejected
// rather than treated as missing data.
func (c *Client) post(ctx context.Context, op string, params any, out any) error {
	values, err := query.Values(params)
	if err != nil {
		return &driven.RemoteError{Kind: driven.KindRemoteRejected, Op: op, Err: fmt.Errorf("encode form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+op, strings.NewReader(values.Encode()))
	if err != nil {
		return &driven.RemoteError{Kind: driven.KindRemoteRejected, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, op)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &driven.RemoteError{Kind: driven.KindRemoteRejected, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// do sends req with Basic auth and returns the body of a 2xx response.
// Every failure is returned as a classified *driven.RemoteError.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.SetBasicAuth(c.auth.Username, c.auth.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &driven.RemoteError{Kind: driven.KindRemoteUnreachable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &driven.RemoteError{Kind: driven.KindRemoteUnreachable, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("sonarqube request",
		"op", op,
		"method", req.Method,
		"status", resp.StatusCode,
		"cached", resp.Header.Get("X-From-Cache") == "1",
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, classifyStatus(op, resp.StatusCode, body)
}

// classifyStatus maps a non-2xx response onto the error taxonomy.
func classifyStatus(op string, status int, body []byte) *driven.RemoteError {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := driven.KindRemoteRejected
	switch {
	case status >= 500:
		kind = driven.KindRemoteUnreachable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = driven.KindRemotePrivilegeDenied
	case status == http.StatusNotFound:
	case driven.IsPrivilegeMessage(msg):
		kind = driven.KindRemotePrivilegeDenied
	}

	return &driven.RemoteError{Kind: kind, Op: op, StatusCode: status, Message: msg}
}

// errorMessage joins the messages of a Web API error envelope, or returns
// the trimmed raw body when it is not one.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Errors) > 0 {
		msgs := make([]string, 0, len(eb.Errors))
		for _, e := range eb.Errors {
			msgs = append(msgs, e.Msg)
		}
		return strings.Join(msgs, "; ")
	}

	const maxRaw = 200
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return raw
}

// hostOf returns the scheme and host of raw for logging.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
