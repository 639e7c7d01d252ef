package cmd

import (
	"fmt"
	"strconv"

	"digitlotto/config"
	"digitlotto/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return database.MigrateUp(config.Get().GetDatabaseURL())
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1 step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					parsed, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid steps value %q", args[0])
					}
					steps = parsed
				}
				return database.MigrateDown(config.Get().GetDatabaseURL(), steps)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				status, err := database.MigrateStatus(config.Get().GetDatabaseURL())
				if err != nil {
					return err
				}
				switch {
				case !status.Applied:
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				case status.Dirty:
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", status.Version)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", status.Version)
				}
				return nil
			},
		},
	)

	return migrateCmd
}
