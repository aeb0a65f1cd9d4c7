package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-chatpdf-backend/internal/app"
	"github.com/tbourn/go-chatpdf-backend/internal/config"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file-key>",
		Short: "Ingest a stored PDF into the vector index",
		Long: `Download the PDF stored under file-key, chunk and embed it, and upsert
the vectors into the document's namespace. The first record is printed as
JSON without its embedding values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = log.Logger.WithContext(ctx)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a, err := app.New(ctx, cfg, app.Options{}, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rec, err := a.Ingest(ctx, args[0])
			if err != nil {
				return fmt.Errorf("ingest %s: %w", args[0], err)
			}

			out := ingestResult{Key: args[0]}
			if rec != nil {
				out.ID = rec.ID
				out.Page = rec.Metadata.PageNumber
				out.Text = rec.Metadata.Text
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

type ingestResult struct {
	Key  string `json:"file_key"`
	ID   string `json:"id,omitempty"`
	Page int    `json:"page,omitempty"`
	Text string `json:"text,omitempty"`
}
