/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/server"
	"github.com/unilib/apiserver/internal/services"
	"github.com/unilib/apiserver/internal/sheet"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage library accounts",
}

var usersImportCmd = &cobra.Command{
	Use:   "import <file.xlsx|file.csv>",
	Short: "Create or update accounts from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		records, err := sheet.Parse(filepath.Base(args[0]), f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		return runImport(cmd, func(importer *services.ImportService) (types.ImportResult, error) {
			return importer.Import(cmd.Context(), records)
		})
	},
}

var usersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import the roster from the HR source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, func(importer *services.ImportService) (types.ImportResult, error) {
			return importer.Sync(cmd.Context())
		})
	},
}

func runImport(cmd *cobra.Command, run func(*services.ImportService) (types.ImportResult, error)) error {
	cfg := config.LoadConfig()

	deps, err := server.Connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	importer := services.NewImportService(store.NewUserRepository(deps.DB), deps.Mailer, deps.HR)
	result, err := run(importer)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersImportCmd)
	usersCmd.AddCommand(usersSyncCmd)
}
