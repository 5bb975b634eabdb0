package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/linage/linapush/internal/health"
	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/profile"
	"github.com/linage/linapush/internal/shared"
	"github.com/linage/linapush/internal/ui"
)

const monitorLogPath = "./tmp/linapush-monitor.log"

// healthLoop is the monitor, profile controller and system sampler wired together for one tier.
type healthLoop struct {
	caps       models.DeviceCapabilities
	budget     time.Duration
	controller *profile.Controller
	monitor    *health.Monitor
	wg         sync.WaitGroup
}

// startHealth detects the tier and starts the controller and sampler goroutines.
// The monitor itself is left stopped; callers start it when frames begin.
func (r *Runner) startHealth(ctx context.Context) (*healthLoop, error) {
	caps, err := r.capabilities(ctx)
	if err != nil {
		return nil, err
	}

	resolver := profile.NewResolver(nil)
	budget := time.Duration(resolver.FrameBudgetNanos(caps.Tier))
	h := &healthLoop{
		caps:       caps,
		budget:     budget,
		controller: r.controller(caps.Tier),
		monitor: health.NewMonitor(health.Options{
			Config:      r.config.Health,
			FrameBudget: budget,
			Logger:      shared.WithLogger(r.logger, "component", "health"),
			Now:         r.now,
		}),
	}

	sampler := health.NewSystemSampler(r.config.Health, shared.WithLogger(r.logger, "component", "sampler"))
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		if err := h.controller.Run(ctx, h.monitor.Transitions()); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("profile controller stopped", "err", err)
		}
	}()
	go func() {
		defer h.wg.Done()
		if err := sampler.Run(ctx, h.monitor); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("system sampler stopped", "err", err)
		}
	}()

	r.logger.Info("health loop started", "tier", caps.Tier, "frameBudget", budget)
	return h, nil
}

// wait stops the monitor and blocks until the controller and sampler return. ctx must already be done.
func (h *healthLoop) wait() {
	h.monitor.Stop()
	h.wg.Wait()
}

// Monitor launches the runtime health dashboard.
func (r *Runner) Monitor(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Logging.File
	if path == "" {
		path = monitorLogPath
	}
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	h, err := r.startHealth(ctx)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		h.wait()
	}()

	updates, unsubscribe := h.controller.Subscribe(8)
	defer unsubscribe()

	model := ui.NewModel(ctx, ui.Options{
		Monitor:       h.monitor,
		Profile:       h.controller,
		Updates:       updates,
		Capabilities:  h.caps,
		FrameInterval: h.budget,
		Now:           r.now,
	})
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running dashboard: %w", err)
	}
	return nil
}
