package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PauloHFS/guidebot/internal/config"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/tracing"
)

// version is set at build time with -ldflags "-X .../internal/cmd.version=...".
var version = "dev"

var (
	appConfig       *config.Config
	shutdownTracing tracing.ShutdownFunc
)

var errUsage = errors.New("usage")

var rootCmd = &cobra.Command{
	Use:   "guidebot",
	Short: "Answers customer questions from the Ghost help center",
	Long: `guidebot mirrors the Ghost help center into local JSON files, embeds every
post into a vector index and answers questions grounded in the closest posts.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, _ []string) error {
	// The server logs to stdout; CLI commands keep stdout for their output.
	if cmd.Name() == "serve" {
		logging.Init()
	} else {
		logging.InitWithWriter(cmd.ErrOrStderr())
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	appConfig = cfg

	shutdown, err := tracing.Setup(cmd.Context(), cfg.OTelExporter, "guidebot", version)
	if err != nil {
		return err
	}
	shutdownTracing = shutdown
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)

	if shutdownTracing != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := shutdownTracing(sctx); serr != nil {
			logging.Get().Warn("failed to flush traces", "error", serr)
		}
		cancel()
	}

	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "error: %v\n", err)
		return 1
	}
	return 0
}
