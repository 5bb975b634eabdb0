// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, markdown or csv",
		Value:   "text",
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// deviceCommand prints the host's capability descriptor.
func deviceCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "device",
		Usage:  "Detect device capabilities and tier",
		Flags:  append(jsonFlags(), formatFlag()),
		Action: r.Device,
	}
}

// profileCommand resolves performance profiles.
func profileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Resolve the performance profile for a tier and health mode",
		Flags: append(jsonFlags(),
			formatFlag(),
			&cli.StringFlag{
				Name:  "tier",
				Usage: "Tier to resolve (low_end, mid_end, high_end, premium); defaults to the detected tier",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Health mode (normal, degraded, critical)",
				Value: "normal",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Print the full tier by mode table",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the table to a file; .md and .csv pick the format",
			},
		),
		Action: r.Profile,
	}
}

// tokenCommand handles push token lifecycle operations.
func tokenCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage the push token",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Persist a newly issued token and register it with the backend",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "token"},
				},
				Action: r.TokenSet,
			},
			{
				Name:   "sync",
				Usage:  "Register the stored token with the backend (rate limited)",
				Action: r.TokenSync,
			},
			{
				Name:   "status",
				Usage:  "Show persisted push state",
				Flags:  jsonFlags(),
				Action: r.TokenStatus,
			},
			{
				Name:   "clear",
				Usage:  "Unsubscribe every topic and erase push state (logout)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "gateway", Usage: "Log out the running serve process instead of local state"},
				},
				Action: r.TokenClear,
			},
			{
				Name:  "login",
				Usage: "Sign in to the identity provider and store the backend bearer token",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: loginTimeout,
					},
				},
				Action: r.TokenLogin,
			},
		},
	}
}

func userFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "user", Usage: "Authenticated user id"},
		&cli.StringFlag{Name: "email", Usage: "User email"},
		&cli.BoolFlag{Name: "customer", Usage: "User is a Linage customer"},
		&cli.StringFlag{Name: "plan", Usage: "Plan type, e.g. fibra"},
		&cli.BoolFlag{Name: "active-service", Usage: "User has an active service"},
		&cli.StringFlag{Name: "customer-since", Usage: "Customer since (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "last-activity", Usage: "Last activity (RFC 3339 or YYYY-MM-DD)"},
		&cli.StringFlag{Name: "lang", Usage: "Preferred language code"},
	}
}

// segmentsCommand handles segment topic operations.
func segmentsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "segments",
		Usage: "Derive and subscribe to audience segment topics",
		Commands: []*cli.Command{
			{
				Name:   "derive",
				Usage:  "Print the segments derived from user attributes",
				Flags:  append(jsonFlags(), userFlags()...),
				Action: r.SegmentsDerive,
			},
			{
				Name:      "subscribe",
				Usage:     "Reconcile topic subscriptions with the given tags, or with derived tags when none are given",
				ArgsUsage: "[TAG...]",
				Flags:     userFlags(),
				Action:    r.SegmentsSubscribe,
			},
		},
	}
}

// notifyCommand handles notification operations.
func notifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "notify",
		Aliases: []string{"n"},
		Usage:   "Notification pipeline operations",
		Commands: []*cli.Command{
			{
				Name:  "send",
				Usage: "Run a data message through the dispatch pipeline",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Notification type; unknown types are treated as general"},
					&cli.StringFlag{Name: "title", Usage: "Title"},
					&cli.StringFlag{Name: "body", Usage: "Body"},
					&cli.StringFlag{Name: "message-id", Usage: "Message id for de-duplication"},
					&cli.StringFlag{Name: "image-url", Usage: "Big picture URL"},
					&cli.StringMapFlag{Name: "data", Aliases: []string{"d"}, Usage: "Extra payload entries (key=value)"},
				},
				Action: r.NotifySend,
			},
			{
				Name:  "prefs",
				Usage: "Show notification preferences, or set one with TYPE on|off",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "type"},
					&cli.StringArg{Name: "state"},
				},
				Flags:  jsonFlags(),
				Action: r.NotifyPrefs,
			},
			{
				Name:  "quiet-hours",
				Usage: "Show or set quiet hours",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "enable", Usage: "Enable quiet hours"},
					&cli.BoolFlag{Name: "disable", Usage: "Disable quiet hours"},
					&cli.IntFlag{Name: "start", Usage: "Start hour (0-23, inclusive)", Value: -1},
					&cli.IntFlag{Name: "end", Usage: "End hour (0-23, exclusive)", Value: -1},
				},
				Action: r.NotifyQuietHours,
			},
			{
				Name:   "stats",
				Usage:  "Fetch dispatcher counters from a running gateway",
				Flags:  append(jsonFlags(), formatFlag()),
				Action: r.NotifyStats,
			},
		},
	}
}

// monitorCommand launches the runtime health dashboard.
func monitorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"dashboard", "ui"},
		Usage:   "Launch the runtime health dashboard",
		Action:  r.Monitor,
	}
}

// serveCommand runs the push subsystem as a long-lived process.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the local push gateway with scheduled jobs and health monitoring",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; defaults to [server] host:port",
			},
		},
		Action: r.Serve,
	}
}
