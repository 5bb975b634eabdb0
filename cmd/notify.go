package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/linage/linapush/internal/formatter"
	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/notify"
	"github.com/linage/linapush/internal/repositories"
	"github.com/linage/linapush/internal/shared"
)

// NotifySend runs one data message through the dispatch pipeline and flushes any batch it joined.
func (r *Runner) NotifySend(ctx context.Context, cmd *cli.Command) error {
	data := map[string]string{}
	for k, v := range cmd.StringMap("data") {
		data[k] = v
	}
	for key, flag := range map[string]string{
		models.PayloadType:      "type",
		models.PayloadTitle:     "title",
		models.PayloadBody:      "body",
		models.PayloadMessageID: "message-id",
		models.PayloadImageURL:  "image-url",
	} {
		if cmd.IsSet(flag) {
			data[key] = cmd.String(flag)
		}
	}

	dispatcher, err := r.dispatcher(ctx, nil, nil)
	if err != nil {
		return err
	}

	event := models.EventFromData(data, r.now())
	outcome := dispatcher.Handle(ctx, event)
	dispatcher.Close()

	r.writePlain("%s: %s\n", event.Type, outcome)
	return formatter.WriteStats(r.output, dispatcher.Stats(), formatter.Text)
}

// NotifyPrefs lists preferences, or sets one when a type and on|off are given.
func (r *Runner) NotifyPrefs(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(); err != nil {
		return err
	}

	name := cmd.StringArg("type")
	if name != "" {
		t := models.ParseNotificationType(name)
		if string(t) != strings.ToLower(strings.TrimSpace(name)) {
			return fmt.Errorf("%w: unknown notification type %q", shared.ErrInvalidArgument, name)
		}

		if state := cmd.StringArg("state"); state != "" {
			enabled, err := parseSwitch(state)
			if err != nil {
				return err
			}
			if err := r.prefs.SetEnabled(ctx, t, enabled); err != nil {
				return err
			}
		}
	}

	prefs, err := r.prefs.All(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(prefs, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Notification preferences")
	for _, t := range models.AllNotificationTypes {
		state := "on"
		if !prefs[t] {
			state = "off"
		}
		r.writePlain("%-16s %s\n", t, state)
	}
	return nil
}

// NotifyQuietHours shows quiet hours and applies any --enable, --disable, --start or --end given.
func (r *Runner) NotifyQuietHours(ctx context.Context, cmd *cli.Command) error {
	if err := r.openStore(); err != nil {
		return err
	}
	if cmd.Bool("enable") && cmd.Bool("disable") {
		return fmt.Errorf("%w: --enable and --disable are exclusive", shared.ErrInvalidArgument)
	}

	setting, found, err := r.prefs.QuietHours(ctx)
	if err != nil {
		return err
	}
	if !found {
		cfg := r.config.Notifications
		setting = repositories.QuietHoursSetting{Enabled: cfg.QuietHoursEnabled, Start: cfg.QuietHoursStart, End: cfg.QuietHoursEnd}
	}

	changed := false
	switch {
	case cmd.Bool("enable"):
		setting.Enabled, changed = true, true
	case cmd.Bool("disable"):
		setting.Enabled, changed = false, true
	}
	if start := cmd.Int("start"); start >= 0 {
		setting.Start, changed = start, true
	}
	if end := cmd.Int("end"); end >= 0 {
		setting.End, changed = end, true
	}

	if changed {
		if err := r.prefs.SetQuietHours(ctx, setting); err != nil {
			return err
		}
	}

	state := "disabled"
	if setting.Enabled {
		state = "enabled"
	}
	return r.writePlain("Quiet hours %s: %02d:00 to %02d:00\n", state, setting.Start, setting.End)
}

// NotifyStats fetches dispatcher counters from a running gateway.
func (r *Runner) NotifyStats(ctx context.Context, cmd *cli.Command) error {
	url := "http://" + r.config.Server.Addr() + "/v1/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: is `linapush serve` running? %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway returned %s", shared.ErrServiceUnavailable, resp.Status)
	}

	var stats notify.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode stats: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, cmd.Bool("pretty"))
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return formatter.WriteStats(r.output, stats, format)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "enable", "enabled":
		return true, nil
	case "off", "false", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off, got %q", shared.ErrInvalidArgument, s)
}
