package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/linage/linapush/internal/device"
	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/notify"
	"github.com/linage/linapush/internal/profile"
	"github.com/linage/linapush/internal/push"
	"github.com/linage/linapush/internal/repositories"
	"github.com/linage/linapush/internal/services"
	"github.com/linage/linapush/internal/shared"
	"github.com/linage/linapush/internal/vault"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// It is the composition root: every component is built here, explicitly, and lives for one command invocation.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
	now        func() time.Time

	db        *sql.DB
	state     *repositories.StateRepository
	prefs     *repositories.PreferencesRepository
	registrar services.Registrar
	push      services.PushService
	probe     func(context.Context) models.DeviceCapabilities
	closers   []func()
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Registrar, Push, DB and Probe replace the real backend, push platform, database and hardware probe.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Now        func() time.Time
	Registrar  services.Registrar
	Push       services.PushService
	DB         *sql.DB
	Probe      func(context.Context) models.DeviceCapabilities
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		now:        opts.Now,
		db:         opts.DB,
		registrar:  opts.Registrar,
		push:       opts.Push,
		probe:      opts.Probe,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, deviceCommand, profileCommand, tokenCommand, segmentsCommand, notifyCommand, monitorCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.configPath = path

	level := config.Logging.Level
	if cmd.Bool("verbose") {
		level = "debug"
	}
	ll, err := shared.ParseLogLevel(level)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, ll)
	return ctx, nil
}

// SetLogger replaces the runner's logger, e.g. to keep log lines off a full-screen UI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Close releases everything opened by the runner, newest first.
func (r *Runner) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (r *Runner) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

// openStore opens the database and its repositories once per runner.
func (r *Runner) openStore() error {
	if r.state != nil {
		return nil
	}
	if r.db == nil {
		db, err := shared.OpenMigrated(r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
		r.onClose(func() { db.Close() })
	}
	r.state = repositories.NewStateRepository(r.db)
	r.prefs = repositories.NewPreferencesRepository(r.db)
	return nil
}

// pushService connects to the configured push platform. Inbound messages go to handler.
func (r *Runner) pushService(ctx context.Context, handler services.MessageHandler) (services.PushService, error) {
	if r.push != nil {
		return r.push, nil
	}

	cfg := r.config.Push
	if cfg.NATSURL == "" {
		r.push = services.NewLocalPushService(shared.WithLogger(r.logger, "component", "push"))
		return r.push, nil
	}

	deviceID, err := r.state.DeviceID(ctx, shared.GenerateID())
	if err != nil {
		return nil, err
	}
	svc, err := services.ConnectNATS(cfg.NATSURL, cfg.SubjectPrefix, deviceID, handler, shared.WithLogger(r.logger, "component", "nats"))
	if err != nil {
		return nil, err
	}
	r.onClose(svc.Close)
	r.push = svc
	return svc, nil
}

// tokenManager builds the push token lifecycle manager over the local store.
func (r *Runner) tokenManager(ctx context.Context, handler services.MessageHandler) (*push.Manager, error) {
	if err := r.openStore(); err != nil {
		return nil, err
	}
	svc, err := r.pushService(ctx, handler)
	if err != nil {
		return nil, err
	}

	cfg := r.config.Push
	registrar := r.registrar
	if registrar == nil {
		registrar = services.NewBackendClient(cfg.BackendURL, cfg.BearerToken, r.httpClient)
	}

	manager, err := push.NewManager(ctx, push.Options{
		Store:        r.state,
		Sealer:       vault.New(r.state, shared.WithLogger(r.logger, "component", "vault")),
		Registrar:    registrar,
		Push:         svc,
		SyncInterval: cfg.SyncInterval.Duration,
		App: push.AppInfo{
			Version:    cfg.AppVersion,
			Package:    cfg.AppPackage,
			Platform:   cfg.Platform,
			DeviceType: cfg.DeviceType,
		},
		Logger: shared.WithLogger(r.logger, "component", "push"),
		Now:    r.now,
	})
	if err != nil {
		return nil, err
	}
	r.onClose(manager.Wait)
	return manager, nil
}

// capabilities classifies the host once.
func (r *Runner) capabilities(ctx context.Context) (models.DeviceCapabilities, error) {
	if r.probe != nil {
		return r.probe(ctx), nil
	}
	detector, err := device.NewDetector(r.config.Device, shared.WithLogger(r.logger, "component", "device"))
	if err != nil {
		return models.DeviceCapabilities{}, err
	}
	return detector.Capabilities(ctx), nil
}

// dispatcher builds the notification pipeline. renderer may be nil for log output.
func (r *Runner) dispatcher(ctx context.Context, renderer notify.Renderer, profiles notify.ProfileSource) (*notify.Dispatcher, error) {
	if err := r.openStore(); err != nil {
		return nil, err
	}
	logger := shared.WithLogger(r.logger, "component", "notify")
	if renderer == nil {
		renderer = notify.NewLogRenderer(logger)
	}
	d, err := notify.NewDispatcher(notify.Options{
		Config:      r.config.Notifications,
		Renderer:    renderer,
		Preferences: r.prefs,
		Profile:     profiles,
		Logger:      logger,
		Now:         r.now,
	})
	if err != nil {
		return nil, err
	}
	r.onClose(d.Close)
	return d, nil
}

// controller builds the profile controller for tier.
func (r *Runner) controller(tier models.Tier) *profile.Controller {
	return profile.NewController(profile.NewResolver(nil), tier, shared.WithLogger(r.logger, "component", "profile"))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
