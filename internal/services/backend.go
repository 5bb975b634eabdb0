package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/linage/linapush/internal/shared"
)

// RegistrationRequest is the token registration body sent to the backend.
type RegistrationRequest struct {
	FCMToken          string `json:"fcmToken"`
	UserID            string `json:"userId"`
	UserEmail         string `json:"userEmail"`
	IsLinageCustomer  bool   `json:"isLinageCustomer"`
	PlanType          string `json:"planType"`
	CustomerSince     int64  `json:"customerSince"` // unix millis, 0 when unknown
	LastActivity      int64  `json:"lastActivity"`  // unix millis, 0 when unknown
	PreferredLanguage string `json:"preferredLanguage"`
	DeviceType        string `json:"deviceType"`
	AppVersion        string `json:"appVersion"`
	HasActiveService  bool   `json:"hasActiveService"`
	Platform          string `json:"platform"`
	AppPackage        string `json:"appPackage"`
	Timestamp         int64  `json:"timestamp"` // unix millis
}

// RegistrationResponse is the backend's reply.
type RegistrationResponse struct {
	Success  bool     `json:"success"`
	Segments []string `json:"segments"`
}

// Registrar registers push tokens with the backend.
type Registrar interface {
	Register(ctx context.Context, req RegistrationRequest) (*RegistrationResponse, error)
}

// BackendClient calls the token registration endpoint over HTTP.
type BackendClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewBackendClient creates a [BackendClient] for endpoint.
//
// When bearerToken is set, requests are authorized through an [oauth2.StaticTokenSource] layered on client.
// A nil client is replaced with one that times out after 15 seconds.
func NewBackendClient(endpoint, bearerToken string, client *http.Client) *BackendClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if bearerToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearerToken, TokenType: "Bearer"})
		authed := oauth2.NewClient(ctx, src)
		authed.Timeout = client.Timeout
		client = authed
	}
	return &BackendClient{endpoint: endpoint, httpClient: client}
}

// Endpoint returns the registration URL.
func (c *BackendClient) Endpoint() string { return c.endpoint }

// Register posts req and decodes the response.
//
// Transport failures and non-2xx statuses wrap [shared.ErrBackendRequest]; a reply with success=false wraps [shared.ErrBackendRejected].
func (c *BackendClient) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResponse, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: push.backend_url", shared.ErrMissingConfig)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrBackendRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrBackendRequest, resp.StatusCode, truncate(body, 200))
	}

	var out RegistrationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", shared.ErrBackendRequest, err)
	}
	if !out.Success {
		return &out, shared.ErrBackendRejected
	}
	return &out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
