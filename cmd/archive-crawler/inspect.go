package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Sternrassler/archive-crawler/pkg/pagination"
	"github.com/Sternrassler/archive-crawler/pkg/record"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the record schema sent to the language model and the CSV columns",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, record.JSONSchema())
			fmt.Fprintln(w)
			for _, f := range record.Fields {
				fmt.Fprintf(w, "%-6s %s\n", f.Name, f.Description)
			}
		},
	}
}

// newInspectCmd fetches one page and prints what the language model would
// receive, without calling it. Useful when tuning the selector.
func newInspectCmd(opts *crawlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <page>",
		Short: "Fetch one archive page and print its rendered content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := strconv.Atoi(args[0])
			if err != nil || page < 0 {
				return fmt.Errorf("invalid page number %q", args[0])
			}

			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg, cmd.ErrOrStderr())

			fetcher, err := newFetcher(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			url := pagination.Config{
				BaseURLPrefix: cfg.Archive.BaseURLPrefix,
				PageSuffix:    cfg.Archive.PageSuffix,
			}.PageURL(page)
			p, err := fetcher.Fetch(ctx, url)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "URL:      %s\n", p.URL)
			fmt.Fprintf(w, "Status:   %d\n", p.StatusCode)
			fmt.Fprintf(w, "Title:    %s\n", p.Title)
			fmt.Fprintf(w, "Selector: %s (%d matches)\n", fetcher.Selector(), p.Matches)
			fmt.Fprintf(w, "Duration: %s\n\n", p.Duration)
			fmt.Fprintln(w, p.Content)
			return nil
		},
	}
}
