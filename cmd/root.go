/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/log"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "unilib",
	Short: "University library platform",
	Long: `unilib runs the university library API, its background worker and
the administrative tasks around them (migrations, roster imports).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		log.Init(log.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON})
	},
}

// Execute adds all child commands to the root command and runs it until an
// interrupt or SIGTERM cancels its context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
