package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"digitlotto/api"
	"digitlotto/domain/currency"
	"digitlotto/domain/entities"
	"digitlotto/infrastructure"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var clientFlags struct {
	natsServers string
	timeout     time.Duration
}

func addClientFlags(rootCmd *cobra.Command) {
	defaultServers := os.Getenv("NATS_SERVERS")
	if defaultServers == "" {
		defaultServers = "nats://nats:4222"
	}
	rootCmd.PersistentFlags().StringVar(&clientFlags.natsServers, "nats", defaultServers, "NATS servers of a running settlement service")
	rootCmd.PersistentFlags().DurationVar(&clientFlags.timeout, "timeout", 30*time.Second, "request timeout")
}

// withClient connects to NATS, runs fn against the API and prints its result as JSON
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *api.Client) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientFlags.timeout)
	defer cancel()

	natsClient := infrastructure.NewNATSClient(clientFlags.natsServers)
	if err := natsClient.Connect(ctx); err != nil {
		return err
	}
	defer natsClient.Close()

	result, err := fn(ctx, api.NewClient(natsClient))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func parseRoundNumber(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid round number %q", arg)
	}
	return n, nil
}

// parseStake parses "<digit>:<amount>" with amount in whole coins
func parseStake(arg string) (entities.BetItem, error) {
	digitPart, amountPart, ok := strings.Cut(arg, ":")
	if !ok {
		return entities.BetItem{}, fmt.Errorf("stake %q must be <digit>:<amount>", arg)
	}
	digit, err := strconv.Atoi(digitPart)
	if err != nil {
		return entities.BetItem{}, fmt.Errorf("invalid digit in %q", arg)
	}
	amount, err := currency.ToSmallestUnit(amountPart)
	if err != nil {
		return entities.BetItem{}, err
	}
	return entities.BetItem{Digit: digit, Amount: amount}, nil
}

func roundNumberCmd(use, short string, call func(ctx context.Context, client *api.Client, n int64) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <round-number>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseRoundNumber(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
				return call(ctx, client, n)
			})
		},
	}
}

func newRoundCmd() *cobra.Command {
	roundCmd := &cobra.Command{
		Use:   "round",
		Short: "Inspect and control rounds",
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent rounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
				return client.GetRoundHistory(ctx, limit)
			})
		},
	}
	historyCmd.Flags().Int("limit", 20, "number of rounds")

	roundCmd.AddCommand(
		&cobra.Command{
			Use:   "current",
			Short: "Show the open round",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
					return client.GetCurrentRound(ctx)
				})
			},
		},
		historyCmd,
		roundNumberCmd("close", "Close an open round", func(ctx context.Context, client *api.Client, n int64) (any, error) {
			return client.CloseRound(ctx, n)
		}),
		roundNumberCmd("draw", "Draw the winning digit of a closed round", func(ctx context.Context, client *api.Client, n int64) (any, error) {
			return client.DrawWinner(ctx, n)
		}),
		roundNumberCmd("payouts", "Assign and dispatch payouts of a drawn round", func(ctx context.Context, client *api.Client, n int64) (any, error) {
			return client.ProcessPayouts(ctx, n)
		}),
	)
	return roundCmd
}

func newBetCmd() *cobra.Command {
	betCmd := &cobra.Command{
		Use:   "bet",
		Short: "Place bets",
	}
	betCmd.AddCommand(&cobra.Command{
		Use:   "place <user> <digit>:<amount>...",
		Short: "Place a bet for a user; payment is requested from the user's wallet",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]entities.BetItem, 0, len(args)-1)
			for _, arg := range args[1:] {
				item, err := parseStake(arg)
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
				return client.PlaceBet(ctx, args[0], items)
			})
		},
	})
	return betCmd
}

func newBetsCmd() *cobra.Command {
	betsCmd := &cobra.Command{
		Use:   "bets <user>",
		Short: "Show a user's most recent bets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
				return client.GetUserBets(ctx, args[0], limit)
			})
		},
	}
	betsCmd.Flags().Int("limit", 20, "number of bets")
	return betsCmd
}

func newCommissionCmd() *cobra.Command {
	commissionCmd := &cobra.Command{
		Use:   "commission",
		Short: "Inspect and withdraw the house commission",
	}
	commissionCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show accumulated and withdrawn commission",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
					return client.GetCommission(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "withdraw [amount]",
			Short: "Send commission to the operator identity; all of it when no amount is given",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var amount *decimal.Decimal
				if len(args) == 1 {
					parsed, err := currency.ToSmallestUnit(args[0])
					if err != nil {
						return err
					}
					amount = &parsed
				}
				return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
					return client.WithdrawCommission(ctx, amount)
				})
			},
		},
	)
	return commissionCmd
}

func newPayoutsCmd() *cobra.Command {
	payoutsCmd := &cobra.Command{
		Use:   "payouts",
		Short: "Manage payouts",
	}
	payoutsCmd.AddCommand(roundNumberCmd("reprocess", "Retry the failed payouts of a round", func(ctx context.Context, client *api.Client, n int64) (any, error) {
		return client.ReprocessPayouts(ctx, n)
	}))
	return payoutsCmd
}

func newPaymentsCmd() *cobra.Command {
	paymentsCmd := &cobra.Command{
		Use:   "payments",
		Short: "Inspect the payment audit log",
	}
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the latest value movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withClient(cmd, func(ctx context.Context, client *api.Client) (any, error) {
				return client.GetPaymentLog(ctx, limit)
			})
		},
	}
	logCmd.Flags().Int("limit", 50, "number of entries")
	paymentsCmd.AddCommand(logCmd)
	return paymentsCmd
}
