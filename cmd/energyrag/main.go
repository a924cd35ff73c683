// Package main provides the energyrag CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"energyrag/internal/logger"
	"energyrag/internal/service"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "energyrag",
	Short: "Answer energy-efficiency questions from your own documents",
	Long: `energyrag indexes a directory of energy-efficiency documents into a vector
index and answers questions with an LLM, citing only the indexed sources.

Configuration is read from --config, ./config.yaml or
~/.config/energyrag/config.yaml. API keys may be placed in a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", service.UserMessage(err))
		logger.Debug("%v", err)
		stop()
		os.Exit(1)
	}
}
