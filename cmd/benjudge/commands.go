package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/benjudge/internal/config"
	"github.com/felixgeelhaar/benjudge/internal/daemon"
	mcpserver "github.com/felixgeelhaar/benjudge/internal/mcp"
	"github.com/felixgeelhaar/benjudge/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "benjudge",
		Short: "Operator tool for the BenJudge algorithmic-practice judge",
		Long: `benjudge manages the BenJudge store, inspects progression and
serves the judge to editor agents over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newMigrateCmd(),
		newRankingCmd(),
		newConfigCmd(),
		newEventsCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, version, err := daemon.OpenStore(cmd.Context(), cfg.Storage, slog.Default())
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, cfg.Storage.Driver)
			return nil
		},
	}
}

func newRankingCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Print the ranking by score, XP and level",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, _, err := daemon.OpenStore(cmd.Context(), cfg.Storage, slog.Default())
			if err != nil {
				return err
			}
			defer store.Close()

			users, err := store.Ranking(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-4s %-36s %10s %8s %6s\n", "#", "USUARIO", "PONTUACAO", "XP", "NIVEL")
			for i, u := range users {
				fmt.Fprintf(out, "%-4d %-36s %10d %8d %6d\n", i+1, u.ID, u.Score, u.XP, u.Level())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", daemon.DefaultRankingLimit, "number of users to show")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (secrets omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path, _ := config.Path()
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newEventsCmd() *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Inspect submission events",
	}

	events.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Consume submission events and print them as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Queue.URL == "" {
				return fmt.Errorf("%s is not set", config.EnvRabbitMQURL)
			}

			conn, err := queue.NewConnection(cfg.Queue.URL, cfg.Queue.MessageTTL)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			consumer := queue.NewConsumer(conn, func(_ context.Context, ev *queue.SubmissionEvent) error {
				return enc.Encode(ev)
			}, queue.ConsumerConfig{Workers: 1})
			if err := consumer.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			consumer.Stop()
			return nil
		},
	})
	return events
}

func newMCPCmd() *cobra.Command {
	var (
		userID   string
		httpAddr string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the judge as MCP tools over stdio or HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := daemon.NewRuntime(ctx, cfg, prometheus.NewRegistry(), slog.Default())
			if err != nil {
				return err
			}
			defer rt.Close()

			if userID == "" {
				u, err := rt.Store.CreateUser(ctx)
				if err != nil {
					return err
				}
				userID = u.ID
				// stdout carries the MCP protocol
				fmt.Fprintf(cmd.ErrOrStderr(), "created user %s; pass --user %s to keep progress\n", userID, userID)
			} else if _, err := rt.Store.GetUser(ctx, userID); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}

			srv := mcpserver.NewServer(mcpserver.Config{
				Judge:   rt.Judge,
				Catalog: rt.Catalog,
				Users:   rt.Store,
				UserID:  userID,
				Version: Version,
			})
			if httpAddr != "" {
				slog.Info("serving MCP over HTTP", "addr", httpAddr, "user_id", userID)
				return srv.ServeHTTP(ctx, httpAddr)
			}
			return srv.ServeStdio(ctx)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID reviews are recorded against (created when empty)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on this address instead of stdio")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "benjudge %s\n", Version)
		},
	}
}
