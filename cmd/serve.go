package main

import (
	"context"
	"errors"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/server"
	"github.com/linage/linapush/internal/services"
	"github.com/linage/linapush/internal/shared"
	"github.com/linage/linapush/internal/tasks"
)

// Serve runs the push subsystem until interrupted: health loop, dispatcher, token manager,
// scheduled jobs and the HTTP gateway.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := r.startHealth(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		h.wait()
	}()
	h.monitor.Start(ctx)

	dispatcher, err := r.dispatcher(ctx, nil, h.controller)
	if err != nil {
		return err
	}

	// Inbound push messages arrive on the broker's goroutines.
	var handler services.MessageHandler = func(data map[string]string) {
		dispatcher.Handle(ctx, models.EventFromData(data, r.now()))
	}
	manager, err := r.tokenManager(ctx, handler)
	if err != nil {
		return err
	}
	// Runner closers shut the database after Serve returns.
	defer manager.Wait()

	if listener, ok := r.push.(*services.NATSPushService); ok {
		onToken := func(token string) {
			if err := manager.OnNewToken(ctx, token); err != nil {
				r.logger.Warn("rejected issued token", "err", err)
			}
		}
		if err := listener.Listen(ctx, onToken); err != nil {
			return err
		}
	}

	scheduler := tasks.NewScheduler(shared.WithLogger(r.logger, "component", "tasks"))
	scheduler.Add(tasks.ResyncJob(manager, r.config.Push.ResyncInterval.Duration))
	scheduler.Add(tasks.PruneJob(dispatcher, r.config.Notifications.PruneInterval.Duration))
	scheduler.Add(tasks.SegmentsJob(manager, r.config.Push.ResyncInterval.Duration, r.now))

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx, progress); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("scheduler stopped", "err", err)
		}
		close(progress)
	}()
	go func() {
		defer wg.Done()
		for update := range progress {
			r.logger.Debug("job progress", "phase", update.Phase, "step", update.Step, "message", update.Message)
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	logger := shared.WithLogger(r.logger, "component", "gateway")
	gateway := server.NewGateway(server.GatewayOptions{
		Dispatcher:   dispatcher,
		Tokens:       manager,
		Profile:      h.controller,
		Health:       h.monitor,
		Capabilities: h.caps,
		Logger:       logger,
		Now:          r.now,
	})
	router := server.NewBasicRouter()
	router.Use(server.Logging(logger), server.Recover(logger))
	router.Handler(gateway)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	r.logger.Info("serving", "addr", addr, "tier", h.caps.Tier, "push", r.push.Name())
	return server.Serve(ctx, addr, router, logger, nil)
}
