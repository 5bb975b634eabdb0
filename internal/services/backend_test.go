package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linage/linapush/internal/shared"
)

func TestBackendClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Register sends the registration body", func(t *testing.T) {
		var got RegistrationRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST method, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected json content type, got %s", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			json.NewEncoder(w).Encode(RegistrationResponse{Success: true, Segments: []string{"linage_customer"}})
		}))
		defer server.Close()

		client := NewBackendClient(server.URL, "", nil)
		resp, err := client.Register(ctx, RegistrationRequest{FCMToken: "tok", UserID: "u1", Platform: "android", Timestamp: 42})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got.FCMToken != "tok" || got.UserID != "u1" || got.Platform != "android" || got.Timestamp != 42 {
			t.Errorf("unexpected request: %+v", got)
		}
		if len(resp.Segments) != 1 || resp.Segments[0] != "linage_customer" {
			t.Errorf("unexpected segments: %v", resp.Segments)
		}
	})

	t.Run("wire field names", func(t *testing.T) {
		data, err := json.Marshal(RegistrationRequest{})
		if err != nil {
			t.Fatalf("failed to marshal: %v", err)
		}
		var fields map[string]any
		json.Unmarshal(data, &fields)

		for _, name := range []string{
			"fcmToken", "userId", "userEmail", "isLinageCustomer", "planType", "customerSince", "lastActivity",
			"preferredLanguage", "deviceType", "appVersion", "hasActiveService", "platform", "appPackage", "timestamp",
		} {
			if _, ok := fields[name]; !ok {
				t.Errorf("missing field %s in %s", name, data)
			}
		}
		if len(fields) != 14 {
			t.Errorf("expected 14 fields, got %d", len(fields))
		}
	})

	t.Run("bearer token is attached", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			w.Write([]byte(`{"success":true}`))
		}))
		defer server.Close()

		if _, err := NewBackendClient(server.URL, "secret", nil).Register(ctx, RegistrationRequest{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if auth != "Bearer secret" {
			t.Errorf("expected bearer auth header, got %q", auth)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tc := []struct {
			name    string
			status  int
			body    string
			wantErr error
		}{
			{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: shared.ErrBackendRequest},
			{name: "invalid json", status: http.StatusOK, body: "<html>", wantErr: shared.ErrBackendRequest},
			{name: "rejected", status: http.StatusOK, body: `{"success":false}`, wantErr: shared.ErrBackendRejected},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				_, err := NewBackendClient(server.URL, "", nil).Register(ctx, RegistrationRequest{})
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("missing endpoint", func(t *testing.T) {
		_, err := NewBackendClient("", "", nil).Register(ctx, RegistrationRequest{})
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := NewBackendClient(url, "", nil).Register(ctx, RegistrationRequest{})
		if !errors.Is(err, shared.ErrBackendRequest) {
			t.Errorf("expected ErrBackendRequest, got %v", err)
		}
	})
}
