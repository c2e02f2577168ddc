package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devraulu/sitecrawl/pkg/config"
	"github.com/devraulu/sitecrawl/pkg/logger"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawl",
		Short: "Crawl a website and download its pages as markdown",
		Long: `sitecrawl discovers every page of a website reachable from a root URL,
up to a maximum depth, and downloads each page through a reader proxy
(https://r.jina.ai/ by default) into responses/response<N>.md.

Both phases checkpoint their progress; running the same command again
resumes where the previous run stopped.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file (default: ./sitecrawl.toml or $XDG_CONFIG_HOME/sitecrawl/config.toml)")
	cmd.PersistentFlags().StringP("url", "u", "", "Root URL to crawl")
	cmd.PersistentFlags().IntP("depth", "d", 0, "Maximum crawl depth")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewDownloadCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration file, applies the command line
// overrides and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, found, err := config.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't load config: %w", err)
	}

	if flags.Changed("url") {
		cfg.Target.RootURL, _ = flags.GetString("url")
	}
	if flags.Changed("depth") {
		cfg.Target.MaxDepth, _ = flags.GetInt("depth")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger.InitLogger(cfg)
	if found != "" {
		slog.Debug("loaded config", slog.String("path", found))
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT, SIGQUIT or SIGTERM. The running
// phase stops before its next URL and flushes its checkpoint.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := context.WithCancel(parent)

	appSignal := make(chan os.Signal, 1)
	signal.Notify(appSignal, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-appSignal:
			slog.Info("received system signal", slog.String("signal", s.String()))
			stop()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(appSignal)
		stop()
	}
}
