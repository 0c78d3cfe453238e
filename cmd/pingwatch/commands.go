package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/pingwatch/internal/app"
	"github.com/samvad-hq/pingwatch/internal/config"
	"github.com/samvad-hq/pingwatch/internal/logger"
	"github.com/samvad-hq/pingwatch/pkg/httpclient"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pingwatch",
		Short: "pingwatch - timeout-enforcing HTTP probes",
		Long: `pingwatch probes HTTP endpoints with strict connect and read timeouts
and publishes up/down transitions to SQS, SNS, Pub/Sub or webhooks.

Settings come from the environment (and configs/.env); targets and
publishers are declared in YAML or JSON files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newRunCommand(),
		newOnceCommand(),
		newGetCommand(),
	)
	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Probe all enabled targets on the configured interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProber(cmd.Context(), func(ctx context.Context, p *app.Prober) error {
				return p.Run(ctx)
			})
		},
	}
}

func newOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Probe all enabled targets a single time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProber(cmd.Context(), func(ctx context.Context, p *app.Prober) error {
				return p.RunOnce(ctx)
			})
		},
	}
}

func withProber(parent context.Context, fn func(context.Context, *app.Prober) error) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	log.InfoObj("pingwatch starting", "config", cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prober, err := app.NewProber(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize prober", "error", err)
		return err
	}
	return fn(ctx, prober)
}

type getOptions struct {
	accept           string
	connectTimeoutMs int64
	readTimeoutMs    int64
	strategy         string
}

// newGetCommand issues one GET and prints the body. Unset flags fall back to
// the configured defaults.
func newGetCommand() *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get BASE_URL [PATH]",
		Short: "Send a single GET with the configured timeouts",
		Example: `  pingwatch get http://localhost:8080 /ping --accept text/plain
  pingwatch get http://localhost:8080 /slow --read-timeout-ms 2000 --strategy whole_response`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			flags := cmd.Flags()
			if !flags.Changed("connect-timeout-ms") {
				opts.connectTimeoutMs = cfg.DefaultConnectTimeoutMs
			}
			if !flags.Changed("read-timeout-ms") {
				opts.readTimeoutMs = cfg.DefaultReadTimeoutMs
			}
			strategy := cfg.DefaultStrategy
			if flags.Changed("strategy") {
				if strategy, err = httpclient.ParseStrategy(opts.strategy); err != nil {
					return err
				}
			}

			client, err := httpclient.New(httpclient.ConfigFromMillis(args[0], opts.connectTimeoutMs, opts.readTimeoutMs, strategy))
			if err != nil {
				return err
			}

			path := ""
			if len(args) > 1 {
				path = args[1]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			body, err := client.Get(ctx, path, opts.accept)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.accept, "accept", "*/*", "Accept header value")
	cmd.Flags().Int64Var(&opts.connectTimeoutMs, "connect-timeout-ms", 0, "connect timeout in milliseconds, 0 disables it")
	cmd.Flags().Int64Var(&opts.readTimeoutMs, "read-timeout-ms", 0, "read timeout in milliseconds, 0 disables it")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "read timeout strategy: idle_read or whole_response")
	return cmd
}
