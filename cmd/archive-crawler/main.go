// Command archive-crawler walks a numbered news archive, extracts
// Title/Time/Link records from every listing page with a language model and
// writes them to a CSV file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// .env is optional; real environment variables win.
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &crawlOptions{}

	rootCmd := &cobra.Command{
		Use:   "archive-crawler",
		Short: "Crawl a paginated news archive into CSV",
		Long: "archive-crawler requests <prefix><N><suffix> for N = 1, 2, ... until the archive " +
			"answers 404 or too many pages in a row fail, extracts Title/Time/Link records " +
			"from each page with an OpenAI-compatible language model and writes them to CSV.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts)
		},
	}

	opts.register(rootCmd)

	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "archive-crawler %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
