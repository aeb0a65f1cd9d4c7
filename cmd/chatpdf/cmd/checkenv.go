package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-chatpdf-backend/internal/config"
	"github.com/tbourn/go-chatpdf-backend/internal/sysutil"
)

func newCheckEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-env",
		Short: "Report which credentials are configured",
		Long: `Print every required and optional environment variable with its value
masked. Exits non-zero when a required variable is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			missing := reportEnv(cmd.OutOrStdout(), "required", config.RequiredEnv)
			reportEnv(cmd.OutOrStdout(), "optional", config.OptionalEnv)
			if len(missing) > 0 {
				return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

// reportEnv writes one line per variable and returns the unset ones.
func reportEnv(w io.Writer, group string, names []string) (missing []string) {
	fmt.Fprintf(w, "%s:\n", group)
	for _, name := range names {
		v := sysutil.Mask(os.Getenv(name))
		if v == "" {
			missing = append(missing, name)
			v = "(not set)"
		}
		fmt.Fprintf(w, "  %-32s %s\n", name, v)
	}
	return missing
}
