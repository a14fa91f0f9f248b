package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the vaultctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate structured-yield vaults on EVM networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.networkName, "network", "n", "", "network to operate on")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./config.yaml)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputText, "output format: text or json")

	root.AddCommand(
		newCreateVaultCommand(a),
		newCreateVaultsCommand(a),
		newCancelVaultCommand(a),
		newCancelVaultsCommand(a),
		newSubscribeVaultCommand(a),
		newWithdrawVaultCommand(a, withdrawSubscriber),
		newWithdrawVaultCommand(a, withdrawLp),
		newWithdrawVaultsCommand(a, withdrawSubscriber),
		newWithdrawVaultsCommand(a, withdrawLp),
		newWithdrawAllCommand(a, withdrawSubscriber),
		newWithdrawAllCommand(a, withdrawLp),
		newAdjustYieldCommand(a),
		newApproveVaultCommand(a),
		newListVaultsCommand(a),
		newShowVaultCommand(a),
		newShowConfigCommand(a),
		newWatchPriceCommand(a),
		newHistoryCommand(a),
		newEncryptWalletCommand(),
	)
	return root
}

// withApp loads configuration before fn and releases resources after it.
func withApp(a *app, fn func(ctx context.Context, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		defer a.close()
		if err := a.load(cmd); err != nil {
			return err
		}
		return fn(cmd.Context(), cmd)
	}
}

// Execute runs the command tree until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func unixTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0)
}
