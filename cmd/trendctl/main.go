package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"trendscribe/internal/util"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "trendctl",
	Short: "Inspect trend keywords, prompts and project events",
	Long: `trendctl runs the keyword selector and prompt builder outside the server.

Commands:
  categories        List the fallback keyword catalog
  keywords          Select keywords for a category and location
  related           List topics related to a category
  prompt            Render a generation prompt from flags
  token <user>      Mint a user access token
  events tail       Follow project events from the Redis stream`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.InitLogger(logLevel, "trendctl")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to TRENDSCRIBE_CONFIG or config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(categoriesCmd, keywordsCmd, relatedCmd, promptCmd, tokenCmd, eventsCmd)
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
