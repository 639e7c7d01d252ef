package cmd

import (
	"context"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the digitlotto command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "digitlotto",
		Short:         "Digit lottery settlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging()
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newRoundCmd(),
		newBetCmd(),
		newBetsCmd(),
		newCommissionCmd(),
		newPayoutsCmd(),
		newPaymentsCmd(),
	)
	addClientFlags(rootCmd)

	return rootCmd
}

// Execute runs the command tree under ctx
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the round scheduler, payment listener and API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Run(cmd.Context())
		},
	}
}

// setupLogging reads the environment directly so client commands work
// without the full service configuration
func setupLogging() {
	level, err := log.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if os.Getenv("ENVIRONMENT") == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
