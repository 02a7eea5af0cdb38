/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/mail"
	"github.com/unilib/apiserver/internal/server"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/internal/worker"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued mail and runs the scheduled roster sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		deps, err := server.Connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		// Queued mail is delivered over SMTP here; the queue sender is only
		// for the API process.
		smtp := mail.NewDirectSender(cfg.Mail)
		importer := services.NewImportService(store.NewUserRepository(deps.DB), deps.Mailer, deps.HR)

		w := worker.New(worker.Config{
			MailChannel:  cfg.MQ.MailChannel,
			SyncSchedule: cfg.HR.SyncSchedule,
		}, deps.MQ, smtp, importer)
		return w.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
