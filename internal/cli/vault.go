package cli

import (
	"context"
	"fmt"
	"strings"

	"vaultctl/internal/hedge"
	"vaultctl/internal/report"
	"vaultctl/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type withdrawRole struct {
	prefix     string
	checkOwner bool
	who        string
}

var (
	withdrawSubscriber = withdrawRole{prefix: "", checkOwner: false, who: "subscriber"}
	withdrawLp         = withdrawRole{prefix: "lp", checkOwner: true, who: "liquidity provider"}
)

func (r withdrawRole) name(base string) string {
	if r.prefix == "" {
		return base
	}
	return r.prefix + strings.ToUpper(base[:1]) + base[1:]
}

func newCreateVaultCommand(a *app) *cobra.Command {
	var (
		opts      vault.CreateOptions
		signer    string
		hedgeWith string
	)
	cmd := &cobra.Command{
		Use:   "createVault",
		Short: "Create a vault",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		if signer != "" {
			addr, err := parseAddress("--signer", signer)
			if err != nil {
				return err
			}
			opts.Signer = addr
		}
		if hedgeWith != "" {
			if !hedge.ValidProvider(hedgeWith) {
				return fmt.Errorf("%w: %w %q (supported: %v)", vault.ErrValidation, hedge.ErrUnknownHedge, hedgeWith, hedge.Providers())
			}
			opts.Hedge = true
		}

		m, err := a.manager(ctx, hedgeWith)
		if err != nil {
			return err
		}
		addr, err := m.CreateVault(ctx, opts)
		if err != nil {
			return err
		}
		return a.render(cmd.OutOrStdout(), map[string]string{"vault": addr.Hex()}, func() error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Vault created: %s (expires %s)\n", addr.Hex(), unixTime(opts.Expiry).UTC().Format("2006-01-02 15:04:05 MST"))
			return err
		})
	})

	f := cmd.Flags()
	f.StringVarP(&opts.TradingPair, "tradingPair", "t", "", "trading pair, e.g. WETH-USDC")
	f.BoolVar(&opts.IsBuyLow, "isBuyLow", false, "create a Buy Low vault (default Sell High)")
	f.StringVarP(&opts.LinkedPrice, "linkedPrice", "p", "", "linked price in quote units")
	f.StringVarP(&opts.Quantity, "quantity", "q", "", "quantity in base units")
	f.Uint64VarP(&opts.Expiry, "expiry", "e", 0, "expiry as a unix timestamp in seconds")
	f.StringVarP(&opts.YieldPercentage, "yieldPercentage", "y", "", "yield percentage, e.g. 3.5")
	f.BoolVar(&opts.UseCollateralPool, "useCollateralPool", false, "fund the vault from the collateral pool")
	f.BoolVar(&opts.UseNativeToken, "useNativeToken", false, "deposit the native token instead of its wrapped form")
	f.Uint64Var(&opts.VaultSeriesVersion, "vaultSeriesVersion", 0, "vault series version")
	f.StringVar(&signer, "signer", "", "signer address allowed to approve the vault")
	f.StringVar(&hedgeWith, "hedge", "", "hedge the vault on this exchange (deribit)")
	for _, name := range []string{"tradingPair", "linkedPrice", "quantity", "expiry", "yieldPercentage"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newCancelVaultCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "cancelVault",
		Short: "Cancel a vault you own before it is subscribed",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		v, err := parseAddress("--vault", addr)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.CancelVault(ctx, v)
	})
	cmd.Flags().StringVarP(&addr, "vault", "v", "", "vault address")
	_ = cmd.MarkFlagRequired("vault")
	return cmd
}

func newCancelVaultsCommand(a *app) *cobra.Command {
	var (
		addrs  []string
		bypass bool
	)
	cmd := &cobra.Command{
		Use:   "cancelVaults",
		Short: "Cancel several vaults in batched transactions",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		vaults, err := parseAddresses("--vaults", addrs)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.CancelMultipleVaults(ctx, vaults, bypass)
	})
	cmd.Flags().StringSliceVar(&addrs, "vaults", nil, "comma separated vault addresses")
	cmd.Flags().BoolVar(&bypass, "bypassCheck", false, "skip eligibility checks")
	_ = cmd.MarkFlagRequired("vaults")
	return cmd
}

func newSubscribeVaultCommand(a *app) *cobra.Command {
	var addr, amount string
	cmd := &cobra.Command{
		Use:   "subscribeVault",
		Short: "Subscribe to a vault",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		v, err := parseAddress("--vault", addr)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.SubscribeVault(ctx, v, amount)
	})
	cmd.Flags().StringVarP(&addr, "vault", "v", "", "vault address")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "subscription amount in deposit token units")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawVaultCommand(a *app, role withdrawRole) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   role.name("withdrawVault"),
		Short: "Withdraw from an expired vault as " + role.who,
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		v, err := parseAddress("--vault", addr)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.WithdrawVault(ctx, v, role.checkOwner)
	})
	cmd.Flags().StringVarP(&addr, "vault", "v", "", "vault address")
	_ = cmd.MarkFlagRequired("vault")
	return cmd
}

func newWithdrawVaultsCommand(a *app, role withdrawRole) *cobra.Command {
	var (
		addrs  []string
		bypass bool
	)
	cmd := &cobra.Command{
		Use:   role.name("withdrawVaults"),
		Short: "Withdraw from several vaults in batched transactions as " + role.who,
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		vaults, err := parseAddresses("--vaults", addrs)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.WithdrawMultipleVaults(ctx, vaults, role.checkOwner, bypass)
	})
	cmd.Flags().StringSliceVar(&addrs, "vaults", nil, "comma separated vault addresses")
	cmd.Flags().BoolVar(&bypass, "bypassCheck", false, "skip eligibility checks")
	_ = cmd.MarkFlagRequired("vaults")
	return cmd
}

func newWithdrawAllCommand(a *app, role withdrawRole) *cobra.Command {
	alias := "subscriberWithdrawAllVaults"
	if role.checkOwner {
		alias = "lpWithdrawAllVaults"
	}
	cmd := &cobra.Command{
		Use:     role.name("withdrawAll"),
		Aliases: []string{alias},
		Short:   "Withdraw from every vault of the account as " + role.who,
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.WithdrawAllVaults(ctx, role.checkOwner)
	})
	return cmd
}

func newAdjustYieldCommand(a *app) *cobra.Command {
	var addr, pct string
	cmd := &cobra.Command{
		Use:   "adjustYield",
		Short: "Change the yield of a vault you own",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		v, err := parseAddress("--vault", addr)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.AdjustVaultYield(ctx, v, pct)
	})
	cmd.Flags().StringVarP(&addr, "vault", "v", "", "vault address")
	cmd.Flags().StringVarP(&pct, "yieldPercentage", "y", "", "new yield percentage")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("yieldPercentage")
	return cmd
}

func newApproveVaultCommand(a *app) *cobra.Command {
	var (
		addr    string
		approve bool
	)
	cmd := &cobra.Command{
		Use:   "approveVault",
		Short: "Approve or reject a collateral pool vault",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		v, err := parseAddress("--vault", addr)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		return m.ApproveVault(ctx, v, approve)
	})
	cmd.Flags().StringVarP(&addr, "vault", "v", "", "vault address")
	cmd.Flags().BoolVar(&approve, "approve", true, "approve (true) or reject (false)")
	_ = cmd.MarkFlagRequired("vault")
	return cmd
}

func newListVaultsCommand(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:     "listVaults",
		Aliases: []string{"listAllVaults"},
		Short:   "List the vaults created or subscribed by an address",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		var addr common.Address
		if owner != "" {
			var err error
			if addr, err = parseAddress("--address", owner); err != nil {
				return err
			}
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		vaults, err := m.ListVaults(ctx, addr)
		if err != nil {
			return err
		}
		return a.render(cmd.OutOrStdout(), vaults, func() error {
			return report.RenderAddresses(cmd.OutOrStdout(), fmt.Sprintf("Vaults (%d):", len(vaults)), vaults)
		})
	})
	cmd.Flags().StringVarP(&owner, "address", "a", "", "owner address (default: the configured account)")
	return cmd
}

func newShowVaultCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "showVault",
		Short: "Show the state of a vault",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		v, err := parseAddress("--vault", addr)
		if err != nil {
			return err
		}
		m, err := a.manager(ctx, "")
		if err != nil {
			return err
		}
		info, err := m.ShowVault(ctx, v)
		if err != nil {
			return err
		}
		return a.render(cmd.OutOrStdout(), info, func() error {
			return report.RenderVault(cmd.OutOrStdout(), *info)
		})
	})
	cmd.Flags().StringVarP(&addr, "vault", "v", "", "vault address")
	_ = cmd.MarkFlagRequired("vault")
	return cmd
}

func newShowConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "showConfig",
		Short: "Print the network configuration with secrets removed",
	}
	cmd.RunE = withApp(a, func(_ context.Context, cmd *cobra.Command) error {
		cfg := vault.NewManager(nil, a.network, nil, a.logger).ShowConfig()
		return report.RenderJSON(cmd.OutOrStdout(), cfg)
	})
	return cmd
}
