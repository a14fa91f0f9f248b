// Package plan reads vault creation plans from CSV files.
//
// A plan row is: creation date, network, trading pair, linked price, yield
// percentage (with a trailing %), expire date, direction, quantity. The first
// row is a header. Dates are YYYY-MM-DD or YYYY/MM/DD in the plan's location.
package plan

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"vaultctl/internal/report"
	"vaultctl/internal/vault"

	"github.com/shopspring/decimal"
)

// ExpiryHour is the local hour at which planned vaults expire.
const ExpiryHour = 16

var dateLayouts = []string{"2006-01-02", "2006/01/02"}

// Row is one planned vault.
type Row struct {
	Line            int
	CreationDate    time.Time
	Network         string
	TradingPair     string
	LinkedPrice     string
	YieldPercentage string
	ExpireDate      time.Time
	IsBuyLow        bool
	Quantity        string
}

// Expiry is 16:00 local time on the expire date.
func (r Row) Expiry() time.Time {
	y, m, d := r.ExpireDate.Date()
	return time.Date(y, m, d, ExpiryHour, 0, 0, 0, r.ExpireDate.Location())
}

// DueOn reports whether the row is scheduled for the day of now, in the
// row's location.
func (r Row) DueOn(now time.Time) bool {
	now = now.In(r.CreationDate.Location())
	return r.CreationDate.Format(time.DateOnly) == now.Format(time.DateOnly)
}

// CreateOptions converts the row into orchestrator input.
func (r Row) CreateOptions() vault.CreateOptions {
	return vault.CreateOptions{
		TradingPair:     r.TradingPair,
		IsBuyLow:        r.IsBuyLow,
		LinkedPrice:     r.LinkedPrice,
		Quantity:        r.Quantity,
		YieldPercentage: r.YieldPercentage,
		Expiry:          uint64(r.Expiry().Unix()),
	}
}

// Validator checks network and pair names against the configuration.
type Validator struct {
	Networks []string
	// Pairs returns the pair symbols of a network.
	Pairs func(network string) []string
}

// Parse reads every row of a plan. All row errors are returned joined, with
// their 1-based line numbers.
func Parse(r io.Reader, loc *time.Location, v Validator) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 8

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if len(records) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}

	var (
		rows []Row
		errs []error
	)
	for i, rec := range records {
		if i == 0 {
			continue // header
		}
		row, rowErrs := parseRow(i+1, rec, loc, v)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errors.Join(errs...)
}

func parseRow(line int, rec []string, loc *time.Location, v Validator) (Row, []error) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("line %d: "+format, append([]interface{}{line}, args...)...))
	}

	row := Row{Line: line, Network: rec[1], TradingPair: rec[2], LinkedPrice: rec[3], Quantity: rec[7]}

	created, err := parseDate(rec[0], loc)
	if err != nil {
		fail("creation date is invalid")
	}
	expires, err2 := parseDate(rec[5], loc)
	if err2 != nil {
		fail("expire date is invalid")
	}
	if err == nil && err2 == nil && !created.Before(expires) {
		fail("creation date %s should be before expire date %s", rec[0], rec[5])
	}
	row.CreationDate, row.ExpireDate = created, expires

	if !contains(v.Networks, row.Network) {
		fail("network %s is invalid", row.Network)
	} else if v.Pairs != nil && !contains(v.Pairs(row.Network), row.TradingPair) {
		fail("trading pair %s is invalid", row.TradingPair)
	}

	if _, err := decimal.NewFromString(row.LinkedPrice); err != nil {
		fail("linked price is invalid")
	}

	if !strings.HasSuffix(rec[4], "%") {
		fail("yield percentage must end with '%%'")
	} else {
		row.YieldPercentage = strings.TrimSuffix(rec[4], "%")
		if _, err := decimal.NewFromString(row.YieldPercentage); err != nil {
			fail("yield percentage is invalid")
		}
	}

	switch rec[6] {
	case report.Direction(true):
		row.IsBuyLow = true
	case report.Direction(false):
	default:
		fail("direction %s is invalid", rec[6])
	}

	if _, err := decimal.NewFromString(row.Quantity); err != nil {
		fail("quantity is invalid")
	}
	return row, errs
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
