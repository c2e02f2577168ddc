package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/devraulu/sitecrawl/pkg/pipeline"
)

type phaseFunc func(p *pipeline.Pipeline, ctx context.Context) (*pipeline.Result, error)

func NewRunCmd() *cobra.Command {
	return newPhaseCmd("run", "Crawl the site, then download every discovered page",
		`Run starts a new crawl from the root URL, or resumes the saved one, and
then downloads the proxy link of every visited page.

Examples:
  sitecrawl run --url https://example.com/ --depth 2
  sitecrawl run -c sitecrawl.toml`,
		(*pipeline.Pipeline).Run)
}

func NewCrawlCmd() *cobra.Command {
	return newPhaseCmd("crawl", "Only discover pages",
		`Crawl runs the discovery phase alone and saves the crawl checkpoint.`,
		(*pipeline.Pipeline).Crawl)
}

func NewDownloadCmd() *cobra.Command {
	return newPhaseCmd("download", "Only download discovered pages",
		`Download fetches the proxy link of every page in the crawl checkpoint,
or in the link listing when no checkpoint exists.`,
		(*pipeline.Pipeline).Download)
}

func newPhaseCmd(use, short, long string, phase phaseFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhase(cmd, phase)
		},
	}
}

func runPhase(cmd *cobra.Command, phase phaseFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := pipeline.Open(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	res, err := phase(p, ctx)
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}

	if errors.Is(err, context.Canceled) {
		slog.Info("interrupted, progress saved")
		return nil
	}
	return err
}

func printResult(w io.Writer, res *pipeline.Result) {
	if res.ConfigMismatch {
		fmt.Fprintln(w, "previous checkpoint was for other settings, started over")
	}
	fmt.Fprintf(w, "visited:     %d\n", res.Visited)
	fmt.Fprintf(w, "transformed: %d\n", res.Transformed)
	fmt.Fprintf(w, "processed:   %d (pending %d)\n", res.Processed, res.Pending)
	fmt.Fprintf(w, "downloaded:  %d\n", res.Downloaded)
	if res.Crawl.PagesErrored > 0 || res.Download.Errored > 0 {
		fmt.Fprintf(w, "failed:      %d crawl, %d download\n", res.Crawl.PagesErrored, res.Download.Errored)
	}
}
