package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // plan locations on hosts without zoneinfo

	"vaultctl/config"
	"vaultctl/internal/plan"
	"vaultctl/internal/pricewatch"
	"vaultctl/internal/report"
	"vaultctl/internal/vault"
	"vaultctl/pkg/hermes"
	"vaultctl/pkg/storage/postgres"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchPriceCommand(a *app) *cobra.Command {
	var (
		pairs []string
		depth int
	)
	cmd := &cobra.Command{
		Use:   "watchPrice",
		Short: "Stream live oracle prices for the network's trading pairs",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		idx := pricewatch.IndexPairs(a.network.TradingPairs)
		if len(pairs) > 0 {
			for id, symbol := range idx {
				if !containsFold(pairs, symbol) {
					delete(idx, id)
				}
			}
		}
		if len(idx) == 0 {
			return errors.New("no pyth feeds to watch")
		}

		store := pricewatch.NewStore(depth)
		quotes := make(chan pricewatch.Quote, 256)

		out := cmd.OutOrStdout()
		handler := pricewatch.MakeMessageHandler(a.logger, quotes, idx, func(q pricewatch.Quote) {
			price, err := q.Value()
			if err != nil {
				a.logger.Warn("bad price", zap.String("symbol", q.Symbol), zap.Error(err))
				return
			}
			fmt.Fprintf(out, "%s %s %s\n", time.Unix(q.PublishTime, 0).UTC().Format(time.TimeOnly), q.Symbol, price.String())
		})

		client := hermes.NewWSClient(a.cfg.Hermes.StreamURL, idx.FeedIDs(), a.logger)
		client.SetMessageHandler(handler)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connect price stream: %w", err)
		}

		drained := store.StartWorker(quotes)
		err := client.Listen(ctx)
		close(quotes)
		<-drained
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if renderErr := renderLatest(out, store); renderErr != nil && err == nil {
			err = renderErr
		}
		return err
	})
	cmd.Flags().StringSliceVar(&pairs, "pair", nil, "only watch these pairs")
	cmd.Flags().IntVar(&depth, "depth", 100, "quotes kept per feed")
	return cmd
}

func renderLatest(w io.Writer, store *pricewatch.Store) error {
	latest := store.LatestAll()
	rows := make([][]string, 0, len(latest))
	for _, q := range latest {
		price, err := q.Value()
		if err != nil {
			continue
		}
		rows = append(rows, []string{q.Symbol, price.String(), strconv.Itoa(len(store.History(q.FeedID)))})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return report.RenderTable(w, []string{"PAIR", "LAST", "UPDATES"}, rows)
}

func newHistoryCommand(a *app) *cobra.Command {
	var (
		vaultAddr string
		runID     string
		limit     int
		prune     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled vault writes",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		pg, err := a.postgres()
		if err != nil {
			return err
		}

		if prune > 0 {
			n, err := pg.DeleteOlderThan(ctx, a.clock().Add(-prune))
			if err != nil {
				return err
			}
			a.logger.Info("pruned journal", zap.Int64("deleted", n))
		}

		var records []postgres.TxRecord
		switch {
		case runID != "":
			id, err := uuid.Parse(runID)
			if err != nil {
				return fmt.Errorf("--run: %w", err)
			}
			records, err = pg.ListByRun(ctx, id)
			if err != nil {
				return err
			}
		case vaultAddr != "":
			v, err := parseAddress("--vault", vaultAddr)
			if err != nil {
				return err
			}
			if records, err = pg.ListByVault(ctx, v.Hex(), limit); err != nil {
				return err
			}
		default:
			if records, err = pg.ListRecent(ctx, a.network.Name, limit); err != nil {
				return err
			}
		}

		return a.render(cmd.OutOrStdout(), records, func() error {
			return report.RenderTable(cmd.OutOrStdout(), historyHeader, historyRows(records))
		})
	})
	cmd.Flags().StringVar(&vaultAddr, "vault", "", "only writes touching this vault")
	cmd.Flags().StringVar(&runID, "run", "", "only writes of this run id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete records older than this first, e.g. 720h")
	return cmd
}

var historyHeader = []string{"TIME", "OP", "VAULTS", "TX", "STATUS"}

func historyRows(records []postgres.TxRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		status := "failed: " + r.Error
		switch {
		case r.Succeeded():
			status = "ok"
		case r.Error == "" && r.Status != nil:
			status = "reverted"
		}
		tx := r.TxHash
		if tx == "" {
			tx = "-"
		}
		rows = append(rows, []string{
			r.RecordedAt.UTC().Format(time.DateTime),
			r.Op,
			strings.Join(r.Vaults, ","),
			tx,
			status,
		})
	}
	return rows
}

func newCreateVaultsCommand(a *app) *cobra.Command {
	var (
		file     string
		dryRun   bool
		daily    bool
		timezone string
	)
	cmd := &cobra.Command{
		Use:   "createVaults",
		Short: "Create the vaults a CSV plan schedules for today",
	}
	cmd.RunE = withApp(a, func(ctx context.Context, cmd *cobra.Command) error {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return fmt.Errorf("--timezone: %w", err)
		}
		r := &planRunner{app: a, file: file, loc: loc, dryRun: dryRun, out: cmd.OutOrStdout()}
		if !daily {
			return r.run(ctx)
		}

		d := &plan.Daily{Loc: loc, Now: a.clock, Logger: a.logger}
		err = d.Run(ctx, func(ctx context.Context) {
			if err := r.run(ctx); err != nil {
				a.logger.Error("plan run failed", zap.Error(err))
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV plan")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the due rows without creating vaults")
	cmd.Flags().BoolVar(&daily, "daily", false, "keep running and execute the plan every day at midnight")
	cmd.Flags().StringVar(&timezone, "timezone", "Asia/Taipei", "location of the plan's dates")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// planRunner executes the due rows of a plan file. The file is re-read on
// every run.
type planRunner struct {
	app     *app
	file    string
	loc     *time.Location
	dryRun  bool
	out     io.Writer
	manager *vault.Manager
}

func (r *planRunner) run(ctx context.Context) error {
	a := r.app
	f, err := os.Open(r.file)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := plan.Parse(f, r.loc, a.planValidator())
	if err != nil {
		return fmt.Errorf("invalid plan %s: %w", r.file, err)
	}
	due := a.dueRows(rows)
	a.logger.Info("plan loaded", zap.Int("rows", len(rows)), zap.Int("due", len(due)))

	if r.dryRun || len(due) == 0 {
		return report.RenderTable(r.out, planHeader, planRows(due, nil))
	}

	if r.manager == nil {
		if r.manager, err = a.manager(ctx, ""); err != nil {
			return err
		}
	}
	results := make([]string, len(due))
	var errs []error
	for i, row := range due {
		addr, err := r.manager.CreateVault(ctx, row.CreateOptions())
		if err != nil {
			a.logger.Error("planned vault failed", zap.Int("line", row.Line), zap.Error(err))
			errs = append(errs, fmt.Errorf("line %d: %w", row.Line, err))
			results[i] = "failed"
			continue
		}
		results[i] = addr.Hex()
	}
	if err := report.RenderTable(r.out, append(planHeader, "VAULT"), planRows(due, results)); err != nil {
		return err
	}
	return errors.Join(errs...)
}

var planHeader = []string{"LINE", "PAIR", "DIRECTION", "PRICE", "YIELD", "QUANTITY", "EXPIRY"}

func planRows(rows []plan.Row, results []string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			strconv.Itoa(r.Line),
			r.TradingPair,
			report.Direction(r.IsBuyLow),
			r.LinkedPrice,
			r.YieldPercentage + "%",
			r.Quantity,
			r.Expiry().Format("2006-01-02 15:04 MST"),
		}
		if results != nil {
			out[i] = append(out[i], results[i])
		}
	}
	return out
}

// planValidator accepts both the config key and the display name of a network.
func (a *app) planValidator() plan.Validator {
	var names []string
	for key, n := range a.cfg.Networks {
		names = append(names, key)
		if n.Name != "" {
			names = append(names, n.Name)
		}
	}
	return plan.Validator{
		Networks: names,
		Pairs: func(network string) []string {
			n, ok := a.lookupNetwork(network)
			if !ok {
				return nil
			}
			symbols := make([]string, len(n.TradingPairs))
			for i, p := range n.TradingPairs {
				symbols[i] = p.Symbol
			}
			return symbols
		},
	}
}

func (a *app) lookupNetwork(name string) (*config.NetworkConfig, bool) {
	if n, err := a.cfg.Network(name); err == nil {
		return n, true
	}
	for _, n := range a.cfg.Networks {
		if strings.EqualFold(n.Name, name) {
			n := n
			return &n, true
		}
	}
	return nil, false
}

// dueRows keeps rows scheduled for today on the selected network.
func (a *app) dueRows(rows []plan.Row) []plan.Row {
	now := a.clock()
	var due []plan.Row
	for _, r := range rows {
		if !r.DueOn(now) {
			continue
		}
		if !strings.EqualFold(r.Network, a.networkName) && !strings.EqualFold(r.Network, a.network.Name) {
			continue
		}
		due = append(due, r)
	}
	return due
}

// Scrypt cost of new keystores.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

func newEncryptWalletCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "encryptWallet",
		Short: "Encrypt a private key into a JSON keystore",
		Long:  "Reads the private key, the passphrase and its confirmation from stdin, one per line.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewScanner(cmd.InOrStdin())
			prompt := func(label string) (string, error) {
				fmt.Fprint(cmd.ErrOrStderr(), label)
				if !in.Scan() {
					if err := in.Err(); err != nil {
						return "", err
					}
					return "", fmt.Errorf("%s: no input", strings.TrimSuffix(label, ": "))
				}
				return strings.TrimSpace(in.Text()), nil
			}

			hexKey, err := prompt("Private key: ")
			if err != nil {
				return err
			}
			passphrase, err := prompt("Passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := prompt("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return errors.New("passphrases do not match")
			}

			path, err := writeKeystore(dir, hexKey, passphrase)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wallet written to %s\n", path)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "keystore", "output directory")
	return cmd
}

// writeKeystore encrypts hexKey and stores it as <dir>/<address>.json.
func writeKeystore(dir, hexKey, passphrase string) (string, error) {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(pk.PublicKey),
		PrivateKey: pk,
	}
	keyJSON, err := keystore.EncryptKey(key, passphrase, scryptN, scryptP)
	if err != nil {
		return "", fmt.Errorf("encrypt key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, key.Address.Hex()+".json")
	if err := os.WriteFile(path, keyJSON, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
