package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devraulu/sitecrawl/pkg/pipeline"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show saved progress",
		Long:  `Status reads the checkpoints for the configured site and prints their counts. It makes no network requests.`,
		Args:  cobra.NoArgs,
		RunE:  runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := pipeline.Open(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	st, err := p.Status(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "domain:      %s\n", st.Domain)
	switch {
	case st.Mismatch != nil:
		fmt.Fprintf(w, "crawl:       checkpoint for other settings (%v)\n", st.Mismatch)
	case !st.HasCrawl:
		fmt.Fprintln(w, "crawl:       not started")
	default:
		fmt.Fprintf(w, "visited:     %d\n", st.Visited)
		fmt.Fprintf(w, "transformed: %d\n", st.Transformed)
		fmt.Fprintf(w, "processed:   %d (pending %d)\n", st.Processed, st.Pending)
		fmt.Fprintf(w, "files:       %d\n", st.Files)
	}
	fmt.Fprintf(w, "downloaded:  %d\n", st.Downloaded)
	return nil
}
