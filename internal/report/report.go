// Package report renders vault state for operators.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is the display form of one vault. Amounts are already scaled to
// human units.
type Vault struct {
	Address     common.Address `json:"address"`
	TradingPair string         `json:"tradingPair"`
	BaseToken   common.Address `json:"baseTokenAddress"`
	QuoteToken  common.Address `json:"quoteTokenAddress"`
	LinkedPrice string         `json:"linkedPrice"`
	Yield       string         `json:"yieldValue"` // percent
	CreatedAt   time.Time      `json:"creationDate"`
	Expiry      time.Time      `json:"expiry"`
	Direction   string         `json:"direction"`
	Quantity    string         `json:"quantity"`
	Remaining   string         `json:"remainingQuantity"`
	State       string         `json:"state"`
}

// Direction names the vault side.
func Direction(isBuyLow bool) string {
	if isBuyLow {
		return "Buy Low"
	}
	return "Sell High"
}

// RenderVault writes v as aligned label/value lines.
func RenderVault(w io.Writer, v Vault) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	rows := [][2]string{
		{"Vault:", v.Address.Hex()},
		{"Trading pair:", v.TradingPair},
		{"Base token address:", v.BaseToken.Hex()},
		{"Quote token address:", v.QuoteToken.Hex()},
		{"Linked Price:", v.LinkedPrice},
		{"Yield:", v.Yield + "%"},
		{"Creation Date:", formatTime(v.CreatedAt)},
		{"Expiry:", formatTime(v.Expiry)},
		{"Direction:", v.Direction},
		{"Quantity:", v.Quantity},
		{"Remaining Quantity:", v.Remaining},
		{"State:", v.State},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// RenderAddresses writes a heading followed by one address per line.
func RenderAddresses(w io.Writer, heading string, addrs []common.Address) error {
	if _, err := fmt.Fprintln(w, heading); err != nil {
		return err
	}
	if len(addrs) == 0 {
		_, err := fmt.Fprintln(w, "  (none)")
		return err
	}
	for _, a := range addrs {
		if _, err := fmt.Fprintf(w, "  %s\n", a.Hex()); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON writes v as indented JSON.
func RenderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC1123)
}

// RenderTable writes rows under a header as tab-aligned columns.
func RenderTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range append([][]string{header}, rows...) {
		if _, err := fmt.Fprintln(tw, strings.Join(r, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
