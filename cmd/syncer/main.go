package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"calsync/internal/domain"
	"calsync/internal/metrics"
	"calsync/internal/scheduler"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	app := &cli.App{
		Name:  "syncer",
		Usage: "Sync people and events of external calendars into Postgres.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to config file",
				EnvVars: []string{"CALSYNC_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			syncCommand(),
			syncCalendarCommand(),
			linkCommand(),
			runsCommand(),
			calendarsCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("syncer failed", "error", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Sync all active calendars on the configured interval and serve metrics.",
		Action: func(c *cli.Context) error {
			a, err := newApp(c.Context, c.String("config"), true)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              a.cfg.Metrics.Addr,
				Handler:           metricsMux(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				a.logger.Info("serving metrics", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			sched := scheduler.NewScheduler(a.syncService, a.cfg.Sync.Interval, a.cfg.Sync.RunTimeout, a.logger)

			a.logger.Info("starting calendar syncer",
				"interval", a.cfg.Sync.Interval,
				"calendar_pacing", a.cfg.Sync.CalendarPacing,
				"rate_limit", a.cfg.API.RateLimit.Requests,
				"rate_window", a.cfg.API.RateLimit.Window,
			)

			if err := sched.Start(c.Context); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync all active calendars once, then link people to users.",
		Action: func(c *cli.Context) error {
			a, err := newApp(c.Context, c.String("config"), true)
			if err != nil {
				return err
			}
			defer a.Close()

			fleet, err := a.syncService.SyncAllCalendars(c.Context, domain.TriggerManual)
			if fleet != nil {
				printFleet(c.App.Writer, fleet)
			}
			if err != nil {
				return fmt.Errorf("sync all calendars: %w", err)
			}

			if failed := countFailed(fleet); failed > 0 {
				return fmt.Errorf("%d of %d calendars failed", failed, len(fleet.Results))
			}
			return nil
		},
	}
}

func syncCalendarCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-calendar",
		Usage: "Sync one calendar by id or slug.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "calendar id"},
			&cli.StringFlag{Name: "slug", Usage: "calendar slug"},
		},
		Action: func(c *cli.Context) error {
			if c.String("id") == "" && c.String("slug") == "" {
				return fmt.Errorf("one of --id or --slug is required")
			}

			a, err := newApp(c.Context, c.String("config"), true)
			if err != nil {
				return err
			}
			defer a.Close()

			id := c.String("id")
			if id == "" {
				cal, err := a.calendars.GetBySlug(c.Context, c.String("slug"))
				if err != nil {
					return fmt.Errorf("find calendar %q: %w", c.String("slug"), err)
				}
				id = cal.ID
			}

			result := a.syncService.SyncCalendar(c.Context, id, domain.TriggerManual)
			printResult(c.App.Writer, id, result)

			if !result.Success {
				return fmt.Errorf("sync calendar %s: %w", id, result.Err)
			}
			return nil
		},
	}
}

func linkCommand() *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "Link unlinked external people to local users by email.",
		Action: func(c *cli.Context) error {
			a, err := newApp(c.Context, c.String("config"), false)
			if err != nil {
				return err
			}
			defer a.Close()

			linked, err := a.syncService.LinkExternalPeopleToUsers(c.Context)
			if err != nil {
				return fmt.Errorf("link people: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "linked %d people\n", linked)
			return nil
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent sync runs.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of runs to show"},
			&cli.StringFlag{Name: "calendar", Usage: "only runs of this calendar slug"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c.Context, c.String("config"), false)
			if err != nil {
				return err
			}
			defer a.Close()

			calendarID := ""
			if slug := c.String("calendar"); slug != "" {
				cal, err := a.calendars.GetBySlug(c.Context, slug)
				if err != nil {
					return fmt.Errorf("find calendar %q: %w", slug, err)
				}
				calendarID = cal.ID
			}

			runs, err := a.runs.ListRecent(c.Context, calendarID, c.Int("limit"))
			if err != nil {
				return err
			}

			printRuns(c.App.Writer, runs)
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "Manage tracked calendars.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tracked calendars.",
				Action: func(c *cli.Context) error {
					a, err := newApp(c.Context, c.String("config"), false)
					if err != nil {
						return err
					}
					defer a.Close()

					calendars, err := a.calendars.List(c.Context)
					if err != nil {
						return err
					}

					printCalendars(c.App.Writer, calendars)
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "Start tracking a calendar.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "external-id", Required: true, Usage: "calendar api_id on the platform"},
					&cli.StringFlag{Name: "slug", Required: true, Usage: "unique local slug"},
					&cli.StringFlag{Name: "name", Usage: "display name, defaults to the slug"},
				},
				Action: func(c *cli.Context) error {
					a, err := newApp(c.Context, c.String("config"), false)
					if err != nil {
						return err
					}
					defer a.Close()

					name := c.String("name")
					if name == "" {
						name = c.String("slug")
					}

					cal := &domain.Calendar{
						ExternalID: c.String("external-id"),
						Slug:       c.String("slug"),
						Name:       name,
						IsActive:   true,
					}
					if err := a.calendars.Create(c.Context, cal); err != nil {
						return err
					}

					fmt.Fprintf(c.App.Writer, "added calendar %s (%s)\n", cal.Slug, cal.ID)
					return nil
				},
			},
			{
				Name:      "deactivate",
				Usage:     "Stop syncing a calendar without deleting its data.",
				ArgsUsage: "<slug>",
				Action: func(c *cli.Context) error {
					return setCalendarActive(c, false)
				},
			},
			{
				Name:      "activate",
				Usage:     "Resume syncing a calendar.",
				ArgsUsage: "<slug>",
				Action: func(c *cli.Context) error {
					return setCalendarActive(c, true)
				},
			},
		},
	}
}

func setCalendarActive(c *cli.Context, active bool) error {
	slug := c.Args().First()
	if slug == "" {
		return fmt.Errorf("calendar slug is required")
	}

	a, err := newApp(c.Context, c.String("config"), false)
	if err != nil {
		return err
	}
	defer a.Close()

	cal, err := a.calendars.GetBySlug(c.Context, slug)
	if err != nil {
		return fmt.Errorf("find calendar %q: %w", slug, err)
	}
	return a.calendars.SetActive(c.Context, cal.ID, active)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
