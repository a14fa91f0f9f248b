// Package cli wires configuration, the ledger and the orchestrator into the
// vaultctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"vaultctl/config"
	"vaultctl/internal/hedge"
	"vaultctl/internal/journal"
	"vaultctl/internal/ledger/evm"
	"vaultctl/internal/oracle"
	"vaultctl/internal/report"
	"vaultctl/internal/vault"
	"vaultctl/logger"
	"vaultctl/pkg/deribit"
	"vaultctl/pkg/hermes"
	"vaultctl/pkg/storage/postgres"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath  string
	networkName string
	output      string

	cfg     *config.Config
	network *config.NetworkConfig
	logger  *zap.Logger

	pg      *postgres.PostgresClient
	closers []func()

	now func() time.Time
}

func (a *app) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// load reads the configuration and selects the network.
func (a *app) load(cmd *cobra.Command) error {
	if a.output != outputText && a.output != outputJSON {
		return fmt.Errorf("invalid output %q (want %s or %s)", a.output, outputText, outputJSON)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg, a.logger = cfg, log
	a.closers = append(a.closers, func() { _ = log.Sync() })

	if a.networkName == "" {
		return fmt.Errorf("--network is required (configured: %s)", strings.Join(cfg.NetworkNames(), ", "))
	}
	network, err := cfg.Network(a.networkName)
	if err != nil {
		return err
	}
	a.network = network
	a.logger = a.logger.With(zap.String("network", network.Name))
	a.logger.Debug("running command", zap.String("command", cmd.Name()))
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// postgres opens the journal database once per invocation.
func (a *app) postgres() (*postgres.PostgresClient, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	if !a.cfg.Postgres.Enabled {
		return nil, errors.New("postgres is not enabled")
	}
	pg, err := postgres.InitializeAndMigrate(a.cfg.Postgres, a.cfg.Log.Environment, true)
	if err != nil {
		return nil, err
	}
	a.pg = pg
	a.closers = append(a.closers, func() { _ = pg.Close() })
	return pg, nil
}

// manager connects to the network and builds the orchestrator. hedgeWith
// names the hedge venue, or is empty.
func (a *app) manager(ctx context.Context, hedgeWith string) (*vault.Manager, error) {
	if err := a.network.Validate(); err != nil {
		return nil, err
	}
	passphrase, err := a.network.ResolvePassphrase()
	if err != nil {
		return nil, err
	}
	key, err := evm.LoadKey(a.network.JSONWallet, passphrase, a.network.Account)
	if err != nil {
		return nil, err
	}

	client, err := evm.Dial(ctx, evm.Options{
		RPCNode:        a.network.RPCNode,
		ChainID:        a.network.ChainID,
		Factory:        a.network.Factory,
		Router:         a.network.Router,
		PythPriceFeed:  a.network.PythPriceFeed,
		CollateralPool: a.network.CollateralPool,
		BatchManager:   a.network.BatchManager,
		CallTimeout:    a.cfg.Ledger.CallTimeout,
		ReceiptTimeout: a.cfg.Ledger.ReceiptTimeout,
	}, key, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	opts := []vault.Option{
		vault.WithApprovalRetry(a.cfg.Ledger.ApprovalRetryDelay, a.cfg.Ledger.ApprovalAttempts),
	}

	if a.cfg.Postgres.Enabled {
		pg, err := a.postgres()
		if err != nil {
			a.logger.Warn("journal disabled", zap.Error(err))
		} else {
			j := journal.New(pg, a.network.Name, client.Account())
			a.logger.Debug("journal enabled", zap.String("run_id", j.RunID().String()))
			opts = append(opts, vault.WithJournal(j))
		}
	}

	if hedgeWith != "" {
		if h := a.hedger(hedgeWith); h != nil {
			opts = append(opts, vault.WithHedger(h))
		}
	}

	hermesClient := hermes.NewRESTClient(a.cfg.Hermes.BaseURL, a.cfg.Hermes.Timeout)
	return vault.NewManager(client, a.network, oracle.New(hermesClient), a.logger, opts...), nil
}

func (a *app) hedger(name string) vault.Hedger {
	switch strings.ToLower(name) {
	case hedge.ProviderDeribit:
		if !a.cfg.Deribit.Enabled() {
			a.logger.Warn("deribit config not found")
			return nil
		}
		d := a.cfg.Deribit
		client := deribit.NewRESTClient(deribit.BaseURL(d.UseTestAPI), d.ClientID, d.ClientSecret, d.Timeout)
		return hedge.NewDeribit(client, a.logger)
	}
	return nil
}

// render writes v as JSON, or calls text for the text form.
func (a *app) render(w io.Writer, v interface{}, text func() error) error {
	if a.output == outputJSON {
		return report.RenderJSON(w, v)
	}
	return text()
}

func parseAddress(flag, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", flag, s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(flag string, list []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		addr, err := parseAddress(flag, s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no vaults given", flag)
	}
	return out, nil
}
