package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/notify"
	"github.com/linage/linapush/internal/push"
	"github.com/linage/linapush/internal/shared"
)

const maxBodyBytes = 64 << 10

// Dispatcher is the notification pipeline. [notify.Dispatcher] implements it.
type Dispatcher interface {
	Handle(ctx context.Context, event models.NotificationEvent) notify.Outcome
	Stats() notify.Stats
}

// TokenManager is the push token lifecycle. [push.Manager] implements it.
type TokenManager interface {
	OnNewToken(ctx context.Context, token string) error
	Status(ctx context.Context) (push.Status, error)
	UpdateUser(ctx context.Context, attrs models.UserAttributes) error
	ClearAll(ctx context.Context) error
}

// ProfileSource supplies the active performance profile. [profile.Controller] implements it.
type ProfileSource interface {
	Current() models.PerformanceProfile
}

// HealthSource reports runtime health. [health.Monitor] implements it.
type HealthSource interface {
	Snapshot() models.HealthSnapshot
}

// GatewayOptions configures a [Gateway]. Only Dispatcher is required.
type GatewayOptions struct {
	Dispatcher   Dispatcher
	Tokens       TokenManager
	Profile      ProfileSource
	Health       HealthSource
	Capabilities models.DeviceCapabilities
	Logger       *log.Logger
	Now          func() time.Time
}

// Gateway exposes the push subsystem over HTTP so a broker bridge or a developer can feed it messages.
type Gateway struct {
	opts GatewayOptions
}

// NewGateway creates a [Gateway].
func NewGateway(opts GatewayOptions) *Gateway {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{opts: opts}
}

// Routes returns the HTTP routes this handler serves.
func (g *Gateway) Routes() []string {
	return []string{
		"POST /v1/messages",
		"POST /v1/token",
		"GET /v1/token",
		"DELETE /v1/token",
		"PUT /v1/user",
		"GET /v1/stats",
		"GET /v1/profile",
		"GET /healthz",
	}
}

// ServeHTTP dispatches on the matched route pattern.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Pattern {
	case "POST /v1/messages":
		g.postMessage(w, r)
	case "POST /v1/token":
		g.postToken(w, r)
	case "GET /v1/token":
		g.getToken(w, r)
	case "DELETE /v1/token":
		g.deleteToken(w, r)
	case "PUT /v1/user":
		g.putUser(w, r)
	case "GET /v1/stats":
		writeJSON(w, http.StatusOK, g.opts.Dispatcher.Stats())
	case "GET /v1/profile":
		g.getProfile(w)
	case "GET /healthz":
		g.healthz(w)
	default:
		writeError(w, http.StatusNotFound, shared.ErrNotFound)
	}
}

type messageResponse struct {
	Type    models.NotificationType `json:"type"`
	Outcome notify.Outcome          `json:"outcome"`
}

func (g *Gateway) postMessage(w http.ResponseWriter, r *http.Request) {
	var data map[string]string
	if err := decode(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event := models.EventFromData(data, g.opts.Now())
	outcome := g.opts.Dispatcher.Handle(r.Context(), event)
	status := http.StatusOK
	if outcome == notify.OutcomeQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, messageResponse{Type: event.Type, Outcome: outcome})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (g *Gateway) postToken(w http.ResponseWriter, r *http.Request) {
	if g.opts.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, shared.ErrServiceUnavailable)
		return
	}
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := g.opts.Tokens.OnNewToken(r.Context(), req.Token); err != nil {
		if errors.Is(err, shared.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		g.opts.Logger.Error("failed to store token", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (g *Gateway) getToken(w http.ResponseWriter, r *http.Request) {
	if g.opts.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, shared.ErrServiceUnavailable)
		return
	}
	st, err := g.opts.Tokens.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// deleteToken is the logout path: subscriptions held by this process are dropped and push state erased.
func (g *Gateway) deleteToken(w http.ResponseWriter, r *http.Request) {
	if g.opts.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, shared.ErrServiceUnavailable)
		return
	}
	if err := g.opts.Tokens.ClearAll(r.Context()); err != nil {
		g.opts.Logger.Error("failed to clear push state", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) putUser(w http.ResponseWriter, r *http.Request) {
	if g.opts.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, shared.ErrServiceUnavailable)
		return
	}
	var attrs models.UserAttributes
	if err := decode(r, &attrs); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := g.opts.Tokens.UpdateUser(r.Context(), attrs); err != nil {
		if errors.Is(err, shared.ErrMissingArgument) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		g.opts.Logger.Error("failed to update user", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	g.getToken(w, r)
}

type profileResponse struct {
	Capabilities models.DeviceCapabilities  `json:"capabilities"`
	Profile      *models.PerformanceProfile `json:"profile,omitempty"`
}

func (g *Gateway) getProfile(w http.ResponseWriter) {
	resp := profileResponse{Capabilities: g.opts.Capabilities}
	if g.opts.Profile != nil {
		p := g.opts.Profile.Current()
		resp.Profile = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status string                 `json:"status"`
	Health *models.HealthSnapshot `json:"health,omitempty"`
}

func (g *Gateway) healthz(w http.ResponseWriter) {
	resp := healthResponse{Status: "ok"}
	if g.opts.Health != nil {
		snap := g.opts.Health.Snapshot()
		resp.Health = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
