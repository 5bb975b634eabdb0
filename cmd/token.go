package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/push"
	"github.com/linage/linapush/internal/server"
	"github.com/linage/linapush/internal/shared"
)

const loginTimeout = 2 * time.Minute

// TokenSet persists a newly issued token and waits for the background registration.
func (r *Runner) TokenSet(ctx context.Context, cmd *cli.Command) error {
	token := cmd.StringArg("token")
	if token == "" {
		return fmt.Errorf("%w: token", shared.ErrMissingArgument)
	}

	manager, err := r.tokenManager(ctx, nil)
	if err != nil {
		return err
	}
	if err := manager.OnNewToken(ctx, token); err != nil {
		return err
	}
	manager.Wait()

	st, err := manager.Status(ctx)
	if err != nil {
		return err
	}
	if st.LastSyncAt.IsZero() {
		return r.writePlain("✓ Token stored; backend registration pending\n")
	}
	return r.writePlain("✓ Token stored and registered at %s\n", st.LastSyncAt.Format(time.RFC3339))
}

// TokenSync registers the stored token, subject to the sync interval.
func (r *Runner) TokenSync(ctx context.Context, cmd *cli.Command) error {
	manager, err := r.tokenManager(ctx, nil)
	if err != nil {
		return err
	}

	outcome := manager.SyncToBackend(ctx, "")
	switch outcome {
	case models.SyncFailed:
		return fmt.Errorf("%w: token sync failed", shared.ErrServiceUnavailable)
	case models.SyncRateLimited:
		return r.writePlain("Sync skipped: last attempt was less than %s ago\n", r.config.Push.SyncInterval.Duration)
	}
	return r.writePlain("✓ Token registered\n")
}

// TokenStatus prints the persisted push state.
func (r *Runner) TokenStatus(ctx context.Context, cmd *cli.Command) error {
	manager, err := r.tokenManager(ctx, nil)
	if err != nil {
		return err
	}
	st, err := manager.Status(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(st, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Push state")
	if !st.HasToken {
		return r.writePlain("No token stored\n")
	}
	r.writePlain("Issued:     %s\n", st.IssuedAt.Format(time.RFC3339))
	if st.LastSyncAt.IsZero() {
		r.writePlain("Last sync:  never\n")
	} else {
		r.writePlain("Last sync:  %s\n", st.LastSyncAt.Format(time.RFC3339))
	}
	if st.UserTopic != "" {
		r.writePlain("User topic: %s\n", st.UserTopic)
	}
	return r.writePlain("Segments:   %s\n", strings.Join(st.Segments, ", "))
}

// TokenClear unsubscribes every tracked topic and erases the push state.
func (r *Runner) TokenClear(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("gateway") {
		return r.clearGateway(ctx)
	}

	manager, err := r.tokenManager(ctx, nil)
	if err != nil {
		return err
	}
	if err := manager.ClearAll(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Push state cleared\n")
}

// clearGateway logs out the serve process, which holds the live broker subscriptions.
func (r *Runner) clearGateway(ctx context.Context) error {
	addr := r.config.Server.Addr()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, "http://"+addr+"/v1/token", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: is `linapush serve` running? %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: gateway returned %s", shared.ErrServiceUnavailable, resp.Status)
	}
	return r.writePlain("✓ Push state cleared on %s\n", addr)
}

// TokenLogin runs the authorization code flow against the configured identity provider
// and stores the issued access token as the backend bearer token.
func (r *Runner) TokenLogin(ctx context.Context, cmd *cli.Command) error {
	oauthCfg := r.config.Push.OAuth
	if !oauthCfg.Configured() {
		return fmt.Errorf("%w: push.oauth client_id, auth_url and token_url", shared.ErrMissingConfig)
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = loginTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	addr := r.config.Server.Addr()
	logger := shared.WithLogger(r.logger, "component", "login")
	handler := server.NewLoginHandler(
		server.NewOAuthConfig(oauthCfg, "http://"+addr+server.CallbackPath),
		shared.GenerateID(),
	)
	router := server.NewBasicRouter()
	router.Use(server.Recover(logger))
	router.Handler(handler)

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	ready := make(chan string, 1)
	errc := make(chan error, 1)
	go func() { errc <- server.Serve(serveCtx, addr, router, logger, ready) }()

	select {
	case <-ready:
	case err := <-errc:
		return err
	}

	r.writePlain("Open this URL to sign in:\n\n  %s\n\n", handler.AuthURL())

	var res server.LoginResult
	select {
	case res = <-handler.Result():
	case <-ctx.Done():
		stop()
		<-errc
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: no callback within %s", shared.ErrTimeout, timeout)
		}
		return ctx.Err()
	}
	stop()
	if err := <-errc; err != nil {
		logger.Warn("login listener shutdown failed", "err", err)
	}

	if res.Err != nil {
		return res.Err
	}
	if err := r.saveBearerToken(res.Token); err != nil {
		return err
	}
	return r.writePlain("✓ Signed in; bearer token saved to %s\n", r.configPath)
}

// saveBearerToken stores token as the backend bearer token and writes the config file back.
func (r *Runner) saveBearerToken(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrAuthFailed)
	}
	r.config.Push.BearerToken = token.AccessToken
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Info("bearer token saved", "path", r.configPath, "expiry", token.Expiry)
	return nil
}

// SegmentsDerive prints the segments derived from the user flags.
func (r *Runner) SegmentsDerive(ctx context.Context, cmd *cli.Command) error {
	attrs, err := userFromFlags(cmd)
	if err != nil {
		return err
	}
	segments := push.DeriveSegments(attrs, r.now()).Sorted()
	if cmd.Bool("json") {
		return r.writeJSON(segments, cmd.Bool("pretty"))
	}
	for _, tag := range segments {
		r.writePlain("%s\t%s\n", tag, push.SegmentTopic(tag))
	}
	return nil
}

// SegmentsSubscribe reconciles topic subscriptions with the given tags.
// Without tags the set is derived from the user flags. --user also moves the user topic.
func (r *Runner) SegmentsSubscribe(ctx context.Context, cmd *cli.Command) error {
	attrs, err := userFromFlags(cmd)
	if err != nil {
		return err
	}

	manager, err := r.tokenManager(ctx, nil)
	if err != nil {
		return err
	}
	manager.SetUser(attrs)

	segments := models.NewSegmentSet(cmd.Args().Slice()...)
	if len(segments) == 0 {
		segments = push.DeriveSegments(attrs, r.now())
	}
	if err := manager.SubscribeToSegments(ctx, segments); err != nil {
		return err
	}
	if attrs.UserID != "" {
		if err := manager.SubscribeUser(ctx, attrs.UserID); err != nil {
			return err
		}
	}
	return r.writePlain("✓ Subscribed to %d segments: %s\n", len(segments), strings.Join(segments.Sorted(), ", "))
}

func userFromFlags(cmd *cli.Command) (models.UserAttributes, error) {
	attrs := models.UserAttributes{
		UserID:            cmd.String("user"),
		Email:             cmd.String("email"),
		IsLinageCustomer:  cmd.Bool("customer"),
		PlanType:          cmd.String("plan"),
		PreferredLanguage: cmd.String("lang"),
		HasActiveService:  cmd.Bool("active-service"),
	}

	var err error
	if attrs.CustomerSince, err = parseDate(cmd.String("customer-since")); err != nil {
		return attrs, fmt.Errorf("%w: customer-since: %v", shared.ErrInvalidArgument, err)
	}
	if attrs.LastActivity, err = parseDate(cmd.String("last-activity")); err != nil {
		return attrs, fmt.Errorf("%w: last-activity: %v", shared.ErrInvalidArgument, err)
	}
	return attrs, nil
}

// parseDate accepts RFC 3339 or a bare date. Empty is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
