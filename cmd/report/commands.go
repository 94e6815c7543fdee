package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"mf-portfolio-go/internal/app"
	"mf-portfolio-go/internal/apperrors"
	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"
	"mf-portfolio-go/internal/gains"
	"mf-portfolio-go/internal/holdings"
	"mf-portfolio-go/internal/mfapi"
	"mf-portfolio-go/internal/returns"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

var (
	reportCommands = []subcommands.Command{&holdingsCmd{}, &gainsCmd{}, &returnsCmd{}}
	ledgerCommands = []subcommands.Command{&txCmd{}, &addCmd{}, &removeCmd{}}
	sourceCommands = []subcommands.Command{&searchCmd{}, &navCmd{}, &refreshCmd{}, &cacheCmd{}}
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns core errors into messages a user can act on.
func describe(err error) string {
	var verr *apperrors.ValidationError
	var oerr *apperrors.OversellError
	switch {
	case errors.As(err, &verr):
		fields := slices.Sorted(maps.Keys(verr.Fields))
		var b strings.Builder
		b.WriteString("the transaction was rejected:")
		for _, field := range fields {
			fmt.Fprintf(&b, "\n  %s: %s", field, verr.Fields[field])
		}
		return b.String()
	case errors.As(err, &oerr):
		return fmt.Sprintf("scheme %s is oversold on %s by %s units; fix the ledger before reporting",
			oerr.SchemeCode, oerr.Date, oerr.Shortfall())
	case errors.Is(err, apperrors.ErrSchemeNotFound):
		return err.Error() + " (check the scheme code with the search command)"
	case errors.Is(err, apperrors.ErrSourceUnavailable):
		return err.Error() + " (no cached data either; try again later)"
	default:
		return err.Error()
	}
}

// parseNAVs reads "code=nav" pairs.
func parseNAVs(pairs []string) (map[string]decimal.Decimal, error) {
	navs := make(map[string]decimal.Decimal, len(pairs))
	for _, p := range pairs {
		code, value, ok := strings.Cut(p, "=")
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid NAV %q, want code=nav", p)
		}
		nav, err := decimal.NewFromString(value)
		if err != nil || !nav.IsPositive() {
			return nil, fmt.Errorf("invalid NAV %q, want a positive number", p)
		}
		navs[code] = nav
	}
	return navs, nil
}

// currentNAVs returns the NAVs to value holdings with: the -nav overrides
// when offline, otherwise the source's latest NAVs with overrides applied
// on top. Fetch failures are reported as warnings.
func currentNAVs(ctx context.Context, a *app.App, overrides []string, offline bool) (map[string]decimal.Decimal, []string, []string, error) {
	manual, err := parseNAVs(overrides)
	if err != nil {
		return nil, nil, nil, err
	}
	if offline {
		return manual, nil, nil, nil
	}

	var warnings []string
	navs, stale, err := a.Service.CurrentNAVs(ctx)
	if err != nil {
		warnings = append(warnings, describe(err))
	}
	if navs == nil {
		navs = make(map[string]decimal.Decimal, len(manual))
	}
	for code, nav := range manual {
		navs[code] = nav
	}
	return navs, stale, warnings, nil
}

type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

type holdingsCmd struct {
	navs    multiFlag
	offline bool
}

type holdingsReport struct {
	Holdings   []holdings.Holding `json:"holdings"`
	Summary    holdings.Summary   `json:"summary"`
	StaleNAVs  []string           `json:"stale_navs,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	ValuedWith string             `json:"valued_with"`
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "current holdings and portfolio summary" }
func (*holdingsCmd) Usage() string {
	return `holdings [-offline] [-nav <code>=<nav>]...

  Values the open lots of every scheme at its latest NAV.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.navs, "nav", "Override the NAV of a scheme, as code=nav. Repeatable.")
	f.BoolVar(&c.offline, "offline", false, "Do not contact the NAV source; use -nav values only.")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(a *app.App) error {
		navs, stale, warnings, err := currentNAVs(ctx, a, c.navs, c.offline)
		if err != nil {
			return err
		}
		hs, summary, err := a.Service.Holdings(navs)
		if err != nil {
			return err
		}
		source := "source"
		if c.offline {
			source = "manual"
		}
		return printJSON(holdingsReport{Holdings: hs, Summary: summary, StaleNAVs: stale, Warnings: warnings, ValuedWith: source})
	})
}

type gainsCmd struct {
	class  string
	scheme string
}

type gainsReport struct {
	AssetClass string        `json:"asset_class"`
	Events     []gains.Event `json:"events"`
	Summary    gains.Report  `json:"summary"`
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "realized capital gains by FIFO lot matching" }
func (*gainsCmd) Usage() string {
	return `gains [-class equity|debt] [-scheme <code>]

  Lists every realized gain event, classified as STCG or LTCG, with totals.
`
}

func (c *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.class, "class", "equity", "Asset class for the holding period threshold: equity or debt.")
	f.StringVar(&c.scheme, "scheme", "", "Only report this scheme code.")
}

func (c *gainsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	class, err := gains.ParseAssetClass(c.class)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, args, func(a *app.App) error {
		events, report, err := a.Service.CapitalGains(class, c.scheme)
		if err != nil {
			return err
		}
		if events == nil {
			events = []gains.Event{}
		}
		return printJSON(gainsReport{AssetClass: class.String(), Events: events, Summary: report})
	})
}

type returnsCmd struct {
	navs    multiFlag
	offline bool
	asOf    string
}

type returnsReport struct {
	AsOf         date.Date        `json:"as_of"`
	Invested     decimal.Decimal  `json:"invested"`
	CurrentValue decimal.Decimal  `json:"current_value"`
	Absolute     decimal.Decimal  `json:"absolute_return_percent"`
	XIRR         *decimal.Decimal `json:"xirr_percent,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

func (*returnsCmd) Name() string     { return "returns" }
func (*returnsCmd) Synopsis() string { return "absolute return and XIRR of the portfolio" }
func (*returnsCmd) Usage() string {
	return `returns [-offline] [-nav <code>=<nav>]... [-d <date>]

  Computes the absolute return of the open holdings and the XIRR of all
  cash flows, with the holdings valued on the given date.
`
}

func (c *returnsCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.navs, "nav", "Override the NAV of a scheme, as code=nav. Repeatable.")
	f.BoolVar(&c.offline, "offline", false, "Do not contact the NAV source; use -nav values only.")
	f.StringVar(&c.asOf, "d", "", "Valuation date (YYYY-MM-DD). Defaults to today.")
}

func (c *returnsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	asOf := date.Today()
	if c.asOf != "" {
		d, err := date.Parse(c.asOf)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error parsing date:", err)
			return subcommands.ExitUsageError
		}
		asOf = d
	}
	return run(ctx, args, func(a *app.App) error {
		navs, _, warnings, err := currentNAVs(ctx, a, c.navs, c.offline)
		if err != nil {
			return err
		}
		_, summary, err := a.Service.Holdings(navs)
		if err != nil {
			return err
		}
		r := returnsReport{
			AsOf:         asOf,
			Invested:     summary.Invested,
			CurrentValue: summary.CurrentValue,
			Absolute:     returns.Absolute(summary.Invested, summary.CurrentValue),
			Warnings:     warnings,
		}
		rate, err := a.Service.XIRR(navs, asOf)
		if err != nil {
			r.Warnings = append(r.Warnings, "XIRR: "+err.Error())
		} else {
			pct := decimal.NewFromFloat(rate * 100).Round(2)
			r.XIRR = &pct
		}
		return printJSON(r)
	})
}

type txCmd struct {
	scheme string
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list the transactions in the ledger" }
func (*txCmd) Usage() string {
	return `tx [-scheme <code>]

  Lists transactions in date order.
`
}

func (c *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.scheme, "scheme", "", "Only list this scheme code.")
}

func (c *txCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(a *app.App) error {
		txs := a.Service.Transactions(c.scheme)
		if txs == nil {
			txs = []fund.Transaction{}
		}
		return printJSON(txs)
	})
}

type addCmd struct {
	date   string
	scheme string
	name   string
	side   string
	units  string
	nav    string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record a BUY or SELL transaction" }
func (*addCmd) Usage() string {
	return `add -scheme <code> -type BUY|SELL -units <units> [-nav <nav>] [-name <name>] [-d <date>]

  Records a transaction. Without -nav the NAV published on the date (or the
  nearest earlier day) is used; without -name the source's scheme name is.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Transaction date (YYYY-MM-DD). Defaults to today.")
	f.StringVar(&c.scheme, "scheme", "", "Scheme code.")
	f.StringVar(&c.name, "name", "", "Scheme name.")
	f.StringVar(&c.side, "type", "BUY", "BUY or SELL.")
	f.StringVar(&c.units, "units", "", "Number of units.")
	f.StringVar(&c.nav, "nav", "", "NAV per unit.")
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	in := fund.Input{Date: c.date, SchemeCode: c.scheme, SchemeName: c.name, Side: c.side}
	if in.Date == "" {
		in.Date = date.Today().String()
	}
	var err error
	if in.Units, err = optionalDecimal(c.units); err != nil {
		fmt.Fprintln(os.Stderr, "Error parsing units:", err)
		return subcommands.ExitUsageError
	}
	if in.Price, err = optionalDecimal(c.nav); err != nil {
		fmt.Fprintln(os.Stderr, "Error parsing nav:", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, args, func(a *app.App) error {
		tx, err := a.Service.AddTransaction(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(tx)
	})
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type removeCmd struct {
	id string
}

func (*removeCmd) Name() string     { return "remove" }
func (*removeCmd) Synopsis() string { return "delete a transaction by ID" }
func (*removeCmd) Usage() string {
	return `remove -id <transaction id>
`
}

func (c *removeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "ID of the transaction to delete, as listed by tx.")
}

func (c *removeCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required.")
		return subcommands.ExitUsageError
	}
	return run(ctx, args, func(a *app.App) error {
		if err := a.Service.RemoveTransaction(ctx, c.id); err != nil {
			return err
		}
		return printJSON(map[string]string{"removed": c.id})
	})
}

type searchCmd struct{}

type searchReport struct {
	Schemes []fund.SchemeRef `json:"schemes"`
	mfapi.Meta
}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "find schemes by name" }
func (*searchCmd) Usage() string {
	return `search <query>

  Case-insensitive substring search over every published scheme name.
`
}

func (*searchCmd) SetFlags(*flag.FlagSet) {}

func (*searchCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: a search query is required.")
		return subcommands.ExitUsageError
	}
	query := strings.Join(f.Args(), " ")
	return run(ctx, args, func(a *app.App) error {
		refs, meta, err := a.Source.Search(ctx, query)
		if err != nil {
			return err
		}
		if refs == nil {
			refs = []fund.SchemeRef{}
		}
		return printJSON(searchReport{Schemes: refs, Meta: meta})
	})
}

type navCmd struct {
	scheme string
	date   string
	days   int
}

func (*navCmd) Name() string     { return "nav" }
func (*navCmd) Synopsis() string { return "NAV of a scheme on a date, or its recent history" }
func (*navCmd) Usage() string {
	return `nav -scheme <code> [-d <date> | -days <n>]
`
}

func (c *navCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.scheme, "scheme", "", "Scheme code.")
	f.StringVar(&c.date, "d", "", "NAV on this date or the nearest earlier day (YYYY-MM-DD).")
	f.IntVar(&c.days, "days", 0, "Print the NAV history of the last n days.")
}

func (c *navCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.scheme == "" {
		fmt.Fprintln(os.Stderr, "Error: -scheme is required.")
		return subcommands.ExitUsageError
	}
	var on date.Date
	if c.date != "" {
		d, err := date.Parse(c.date)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error parsing date:", err)
			return subcommands.ExitUsageError
		}
		on = d
	}
	return run(ctx, args, func(a *app.App) error {
		switch {
		case c.days > 0:
			history, err := a.Source.History(ctx, c.scheme, date.Today().Add(-c.days))
			if err != nil {
				return err
			}
			return printJSON(history)
		case !on.IsZero():
			q, err := a.Source.NAVOn(ctx, c.scheme, on)
			if err != nil {
				return err
			}
			return printJSON(q)
		default:
			q, err := a.Source.LatestNAV(ctx, c.scheme)
			if err != nil {
				return err
			}
			return printJSON(q)
		}
	})
}

type refreshCmd struct{}

type refreshReport struct {
	Schemes   int               `json:"schemes"`
	Refreshed int               `json:"refreshed"`
	Stale     []string          `json:"stale,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "re-fetch the NAVs of every held scheme" }
func (*refreshCmd) Usage() string {
	return `refresh

  Bypasses fresh cache entries and fetches the NAV history of every held scheme.
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(a *app.App) error {
		res, err := a.Service.RefreshNAVs(ctx)
		if err != nil {
			return err
		}
		out := refreshReport{Schemes: res.Schemes, Refreshed: res.Refreshed, Stale: res.Stale}
		if len(res.Failed) > 0 {
			out.Failed = make(map[string]string, len(res.Failed))
			for code, ferr := range res.Failed {
				out.Failed[code] = describe(ferr)
			}
		}
		return printJSON(out)
	})
}

type cacheCmd struct {
	clear  bool
	scheme string
}

func (*cacheCmd) Name() string     { return "cache" }
func (*cacheCmd) Synopsis() string { return "show or clear the NAV cache" }
func (*cacheCmd) Usage() string {
	return `cache [-clear [-scheme <code>]]

  Prints the number and size of cached responses. With -clear, removes one
  scheme's entry or everything.
`
}

func (c *cacheCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.clear, "clear", false, "Remove cached responses.")
	f.StringVar(&c.scheme, "scheme", "", "With -clear, only remove this scheme's entry.")
}

func (c *cacheCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(a *app.App) error {
		if c.clear {
			var err error
			if c.scheme != "" {
				err = a.Source.Invalidate(c.scheme)
			} else {
				err = a.Cache.InvalidateAll()
			}
			if err != nil {
				return err
			}
		}
		stats, err := a.Cache.Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	})
}
