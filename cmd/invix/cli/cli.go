// Package cli implements the operational subcommands of the invix binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/invix-erp/invix/internal/app"
)

// ErrUsage indicates an unknown subcommand or bad flags.
var ErrUsage = errors.New(`usage: invix [migrate | archive -tenant ID -year N | ensure-period -tenant ID | jobs stats | jobs archive -tenant ID -year N | jobs sweep]`)

// Run dispatches one subcommand.
func Run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "migrate":
		return withServices(ctx, cfg, logger, func(*app.Services) error {
			// NewServices migrates when PG_MIGRATE is set
			_, err := fmt.Fprintln(out, "schema up to date")
			return err
		})
	case "archive":
		tenantID, year, err := tenantYearFlags("archive", args[1:])
		if err != nil {
			return err
		}
		return withServices(ctx, cfg, logger, func(s *app.Services) error {
			result, err := s.Archive.ArchiveYear(ctx, tenantID, year)
			if err != nil {
				return err
			}
			return writeJSON(out, result)
		})
	case "ensure-period":
		fs := flag.NewFlagSet("ensure-period", flag.ContinueOnError)
		tenantID := fs.String("tenant", "", "tenant id")
		if err := fs.Parse(args[1:]); err != nil || *tenantID == "" {
			return ErrUsage
		}
		return withServices(ctx, cfg, logger, func(s *app.Services) error {
			p, created, err := s.Periods.EnsureDefaultPeriod(ctx, *tenantID)
			if err != nil {
				return err
			}
			return writeJSON(out, map[string]any{"period": p, "created": created})
		})
	case "jobs":
		return runJobs(ctx, cfg, args[1:], out)
	default:
		return ErrUsage
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	if cfg.RedisAddr == "" {
		return errors.New("jobs: REDIS_ADDR is not set")
	}
	jobsCLI := NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	switch args[0] {
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, stats)
	case "archive":
		tenantID, year, err := tenantYearFlags("jobs archive", args[1:])
		if err != nil {
			return err
		}
		info, err := jobsCLI.TriggerArchive(ctx, tenantID, year)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s\n", info.ID)
		return err
	case "sweep":
		info, err := jobsCLI.TriggerSweep(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s\n", info.ID)
		return err
	default:
		return ErrUsage
	}
}

func tenantYearFlags(name string, args []string) (string, int, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id")
	year := fs.Int("year", 0, "calendar year to archive")
	if err := fs.Parse(args); err != nil {
		return "", 0, ErrUsage
	}
	if *tenantID == "" || *year == 0 {
		return "", 0, ErrUsage
	}
	return *tenantID, *year, nil
}

func withServices(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(*app.Services) error) error {
	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()
	return fn(services)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
