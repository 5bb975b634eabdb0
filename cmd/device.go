package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/linage/linapush/internal/formatter"
	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/profile"
	"github.com/linage/linapush/internal/shared"
)

// Device prints the host's capability descriptor.
func (r *Runner) Device(ctx context.Context, cmd *cli.Command) error {
	caps, err := r.capabilities(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(caps, cmd.Bool("pretty"))
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return formatter.WriteCapabilities(r.output, caps, format)
}

// Profile resolves the performance profile for --tier and --mode, or prints every combination with --all.
func (r *Runner) Profile(ctx context.Context, cmd *cli.Command) error {
	resolver := profile.NewResolver(nil)

	if cmd.Bool("all") {
		return r.profileTable(resolver, cmd)
	}

	mode, err := models.ParseHealthMode(cmd.String("mode"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	var tier models.Tier
	if name := cmd.String("tier"); name != "" {
		if tier, err = models.ParseTier(name); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
	} else {
		caps, err := r.capabilities(ctx)
		if err != nil {
			return err
		}
		tier = caps.Tier
	}

	p := resolver.Resolve(tier, mode)
	if cmd.Bool("json") {
		return r.writeJSON(p, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Profile: %s / %s", tier, mode))
	r.writePlain("Animation scale:  %.2f\n", p.AnimationScale)
	r.writePlain("Image quality:    %s\n", p.ImageQuality)
	r.writePlain("Max concurrency:  %d\n", p.MaxConcurrentOperations)
	r.writePlain("Target FPS:       %d\n", p.TargetFrameRate)
	return r.writePlain("Cache factor:     %.2f\n", p.CacheSizeFactor)
}

func (r *Runner) profileTable(resolver *profile.Resolver, cmd *cli.Command) error {
	write := func(w io.Writer, format formatter.Format) error {
		return formatter.WriteProfileTable(w, resolver, format)
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteFile(path, write); err != nil {
			return err
		}
		return r.writePlain("✓ Profile table written to %s\n", path)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return write(r.output, format)
}
