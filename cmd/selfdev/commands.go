package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/selfdev-app/selfdev/config"
	"github.com/selfdev-app/selfdev/internal/application/command"
	"github.com/selfdev-app/selfdev/internal/application/engine"
	"github.com/selfdev-app/selfdev/internal/application/query"
	"github.com/selfdev-app/selfdev/internal/infrastructure/persistence/postgres"
	httpapi "github.com/selfdev-app/selfdev/internal/interface/http"
	"github.com/selfdev-app/selfdev/internal/interface/http/handlers"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "selfdev",
		Short: "SelfDev progression service",
		Long: `SelfDev tracks habits, goals and training plans and rewards them with
points, levels and achievements.

Configuration comes from the YAML file named by SELFDEV_CONFIG and from
environment variables, which take precedence.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newProgressCmd(),
		newAwardCmd(),
		newHabitCmd(),
		newLevelsCmd(),
		newAchievementsCmd(),
		newHashKeyCmd(),
	)
	return root
}

// withApp loads configuration, wires the application and runs fn.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}

	a, err := buildApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVE
// ══════════════════════════════════════════════════════════════════════════════

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				return serve(ctx, a, host, port)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Host to listen on (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	return cmd
}

func serve(ctx context.Context, a *app, host string, port int) error {
	cfg := a.cfg

	client, err := a.coachClient(ctx)
	if err != nil {
		return fmt.Errorf("coach client: %w", err)
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes
	if host != "" {
		httpCfg.Host = host
	}
	if port > 0 {
		httpCfg.Port = port
	}
	if len(httpCfg.APIKeyHashes) == 0 {
		a.log.Warn("API key auth disabled, no key hashes configured")
	}

	s := a.stores
	deps := httpapi.Dependencies{
		Points: command.NewPointsHandler(a.engines),
		Habits: command.NewHabitHandler(a.engines, s.habits, a.env),
		Goals:  command.NewGoalHandler(a.engines, s.goals, a.env),
		Plans:  command.NewPlanHandler(a.engines, s.plans, s.exercises, a.env),
		Coach: command.NewCoachHandler(a.engines, client, command.CoachConfig{
			Persona: cfg.Coach.Persona,
			Timeout: cfg.Coach.Timeout,
		}, a.env),
		Progress:    a.progressReader(),
		Collections: query.NewCollectionReader(s.habits, s.goals, s.plans, s.exercises, nil, cfg.App.Location),
		Watcher:     s.watcher,
		Health:      a.health,
		Logger:      a.log,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = a.metrics
	}

	server := httpapi.NewServer(httpCfg, deps)
	errCh := server.StartAsync()

	a.log.Info("selfdev started",
		logger.String("storage", cfg.App.Storage),
		logger.String("coach", client.Name()),
		logger.Bool("redis", cfg.Redis.Enabled),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("selfdev stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCmd() *cobra.Command {
	var down, status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.App.Storage != config.DriverPostgres {
				fmt.Fprintf(out, "storage driver %q migrates on open, nothing to do\n", cfg.App.Storage)
				return nil
			}

			a := &app{cfg: cfg, log: newLogger(cfg), health: handlers.NewHealthChecker(version)}
			defer a.Close()
			conn, err := a.openPostgres(cmd.Context())
			if err != nil {
				return err
			}
			m := postgres.NewMigrator(conn)

			switch {
			case status:
				list, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				tw := newTable(out)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
				for _, mig := range list {
					applied := "-"
					if mig.IsApplied {
						applied = mig.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return tw.Flush()
			case down:
				v, err := m.Rollback(cmd.Context())
				if err != nil {
					return err
				}
				if v == 0 {
					fmt.Fprintln(out, "nothing to roll back")
				} else {
					fmt.Fprintf(out, "rolled back migration %d\n", v)
				}
			default:
				n, err := m.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the latest migration")
	cmd.Flags().BoolVar(&status, "status", false, "List migrations and whether they are applied")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <user>",
		Short: "Show points, level and earned achievements of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := a.progressReader().GetProgress(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User:   %s\n", p.UserID)
				fmt.Fprintf(out, "Points: %d\n", p.TotalPoints)
				fmt.Fprintf(out, "Level:  %d %s\n", p.Level.Level, p.Level.Name)
				if p.Next.Next != nil {
					fmt.Fprintf(out, "Next:   %d %s in %d points (%d%%)\n",
						p.Next.Next.Level, p.Next.Next.Name, p.Next.PointsRemaining, p.Next.ProgressPercent)
				} else {
					fmt.Fprintln(out, "Next:   maximum level reached")
				}
				if len(p.Earned) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				tw := newTable(out)
				fmt.Fprintln(tw, "ACHIEVEMENT\tPOINTS\tEARNED")
				for _, e := range p.Earned {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.PointReward, e.EarnedAt.Format("2006-01-02"))
				}
				return tw.Flush()
			})
		},
	}
}

func newAwardCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "award <user> <points>",
		Short: "Add (or with a negative amount, remove) points",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("points must be an integer: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := command.NewPointsHandler(a.engines).Award(ctx, command.AwardPointsCommand{
					UserID: args[0],
					Amount: amount,
					Reason: reason,
				})
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded with the award")
	return cmd
}

func printResult(w io.Writer, res engine.Result) {
	fmt.Fprintf(w, "%+d points, total %d, level %d %s\n",
		res.PointsDelta, res.Progress.TotalPoints, res.Level.Level, res.Level.Name)
	for _, n := range res.Notifications {
		fmt.Fprintln(w, n.String())
	}
}

func newLevelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "List the level table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			levels := query.NewProgressReader(nil, nil, nil).Levels()
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "LEVEL\tPOINTS\tNAME")
			for _, l := range levels {
				fmt.Fprintf(tw, "%d\t%d\t%s\n", l.Level, l.Points, l.Name)
			}
			return tw.Flush()
		},
	}
}

func newAchievementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "achievements <user>",
		Short: "List all achievements and which ones the user has earned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				list, err := a.progressReader().ListAchievements(ctx, args[0])
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tPOINTS\tEARNED")
				for _, dto := range list {
					earned := "-"
					if dto.EarnedAt != nil {
						earned = dto.EarnedAt.Format("2006-01-02")
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", dto.ID, dto.Name, dto.PointReward, earned)
				}
				return tw.Flush()
			})
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

func newHabitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "habit",
		Short: "Manage a user's habits",
	}

	add := &cobra.Command{
		Use:   "add <user> <name>",
		Short: "Create a habit",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := command.NewHabitHandler(a.engines, a.stores.habits, a.env).Create(ctx, command.CreateHabitCommand{
					UserID: args[0],
					Name:   strings.Join(args[1:], " "),
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "created %s (%s)\n", res.Habit.Name, res.Habit.ID)
				printResult(out, res.Progress)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <user>",
		Short: "List habits with their streaks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				s := a.stores
				habits, err := query.NewCollectionReader(s.habits, s.goals, s.plans, s.exercises, nil, a.cfg.App.Location).
					ListHabits(ctx, args[0])
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tSTREAK\tTODAY")
				for _, h := range habits {
					today := "no"
					if h.CompletedToday {
						today = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", h.ID, h.Name, h.Streak, today)
				}
				return tw.Flush()
			})
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <user> <habit-id>",
		Short: "Mark a habit done for today, or undo it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := command.NewHabitHandler(a.engines, a.stores.habits, a.env).Toggle(ctx, command.ToggleHabitCommand{
					UserID:  args[0],
					HabitID: args[1],
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s streak %d\n", res.Habit.Name, res.Habit.Streak)
				printResult(out, res.Progress)
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, toggle)
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash of an API key for HTTP_API_KEY_HASHES",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return errors.New("key must not be empty")
			}
			hash, err := handlers.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
