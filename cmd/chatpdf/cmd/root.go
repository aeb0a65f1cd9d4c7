// Package cmd provides the CLI commands for the chatpdf backend.
package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-chatpdf-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

// envFile is loaded before any command runs. A missing file is not an error.
var envFile = ".env"

// NewRootCmd creates the root command for the chatpdf CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatpdf",
		Short: "Chat with PDF documents",
		Long: `chatpdf runs the PDF chat backend: an HTTP API that ingests uploaded
PDFs into a vector index and answers questions about them.

Configuration is read from the environment and an optional .env file.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: bootstrap,
	}
	cmd.SetVersionTemplate("chatpdf version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newCheckEnvCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func bootstrap(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	sysutil.ConfigureLogger(os.Stderr, os.Getenv("LOG_LEVEL"), sysutil.IsTruthy(os.Getenv("LOG_PRETTY")), "chatpdf")
	return nil
}
