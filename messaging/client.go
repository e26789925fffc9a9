// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

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

	"github.com/bureau-foundation/reportbot/lib/clock"
	"github.com/bureau-foundation/reportbot/lib/netutil"
	"github.com/bureau-foundation/reportbot/lib/ref"
	"github.com/bureau-foundation/reportbot/lib/secret"
	"github.com/bureau-foundation/reportbot/lib/version"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver (e.g.,
	// "http://localhost:8008").
	HomeserverURL string

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. Set its Timeout to bound each request.
	HTTPClient *http.Client

	// DeviceDisplayName is sent as initial_device_display_name when
	// logging in.
	DeviceDisplayName string

	// Retry controls retries of idempotent requests. Zero fields take
	// the defaults documented on RetryPolicy.
	Retry RetryPolicy

	// Clock is used for backoff waits. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Client is an unauthenticated Matrix client. It is shared by every
// session created from it.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	deviceDisplayName string
	retry             RetryPolicy
	clock             clock.Clock
	logger            *slog.Logger
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// The string form is kept and request URLs are built by
	// concatenation, so escaped room IDs in paths are sent as written.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must use http or https", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:           strings.TrimRight(config.HomeserverURL, "/"),
		httpClient:        httpClient,
		deviceDisplayName: config.DeviceDisplayName,
		retry:             config.Retry.withDefaults(),
		clock:             clk,
		logger:            logger,
	}, nil
}

// HomeserverURL returns the normalized homeserver base URL.
func (c *Client) HomeserverURL() string {
	return c.baseURL
}

// ServerVersions returns the protocol versions the homeserver
// supports. It is unauthenticated and serves as a reachability check.
func (c *Client) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/versions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: server versions failed: %w", err)
	}

	var response ServerVersionsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse versions response: %w", err)
	}
	return &response, nil
}

// Login authenticates with username and password and returns a new
// session on a new device. The password Buffer is read but not
// closed; the caller retains ownership. Login is not retried.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*DirectSession, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	loginRequest := LoginRequest{
		Type:                     "m.login.password",
		Identifier:               UserIdentifier{Type: "m.id.user", User: username},
		Password:                 password.String(),
		InitialDeviceDisplayName: c.deviceDisplayName,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		secret.Zero(body)
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}
	secret.Zero(body)
	if authResponse.AccessToken == "" || authResponse.UserID.IsZero() {
		return nil, fmt.Errorf("messaging: login response missing user_id or access_token")
	}

	c.logger.Info("logged in to matrix",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)

	return c.SessionFromToken(authResponse.UserID, authResponse.DeviceID, authResponse.AccessToken)
}

// SessionFromToken creates a session from a stored access token. The
// token is copied into mmap-backed memory. No request is made; an
// invalid token surfaces on the first call that uses it.
//
// The caller must call Close on the returned session.
func (c *Client) SessionFromToken(userID ref.UserID, deviceID, accessToken string) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      userID,
		deviceID:    deviceID,
	}, nil
}

// doRequest performs one HTTP request and returns the response body.
// Non-2xx responses return a *MatrixError. accessToken may be nil for
// unauthenticated endpoints.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		// Request bodies may carry the password.
		defer secret.Zero(encoded)
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		matrixErr = MatrixError{Message: truncate(string(responseBody), 512)}
	}
	matrixErr.StatusCode = response.StatusCode
	return nil, &matrixErr
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
