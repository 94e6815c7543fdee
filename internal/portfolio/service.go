// Package portfolio ties the ledger, the gains engine and the NAV source
// together behind the operations a front end needs.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"mf-portfolio-go/internal/date"
	"mf-portfolio-go/internal/fund"
	"mf-portfolio-go/internal/gains"
	"mf-portfolio-go/internal/holdings"
	"mf-portfolio-go/internal/ledger"
	"mf-portfolio-go/internal/mfapi"
	"mf-portfolio-go/internal/returns"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures a Service.
type Options struct {
	Policy        gains.Policy
	LTCGExemption decimal.Decimal
	// Concurrency bounds parallel NAV requests.
	Concurrency int
}

// Service is the portfolio facade.
type Service struct {
	ledger      *ledger.Ledger
	source      mfapi.Source
	policy      gains.Policy
	exemption   decimal.Decimal
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	// writeMu makes the oversell check and the ledger change one step.
	writeMu sync.Mutex
}

// NewService creates a service over l. source may be nil, in which case
// NAV lookups fail and transactions must carry their own NAV and name.
func NewService(l *ledger.Ledger, source mfapi.Source, opts Options, logger *zap.Logger) *Service {
	if opts.Policy == (gains.Policy{}) {
		opts.Policy = gains.DefaultPolicy
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &Service{
		ledger:      l,
		source:      source,
		policy:      opts.Policy,
		exemption:   opts.LTCGExemption,
		concurrency: opts.Concurrency,
		logger:      logger.Named("portfolio"),
		now:         time.Now,
	}
}

var errNoSource = errors.New("no NAV source configured")

// AddTransaction validates in and records it. A zero NAV is filled in with
// the scheme's NAV on the transaction date and an empty name with the
// scheme's name, both from the NAV source. A SELL that would exceed the
// units held at its date is rejected with an apperrors.OversellError.
func (s *Service) AddTransaction(ctx context.Context, in fund.Input) (fund.Transaction, error) {
	if in.Price.IsZero() || in.SchemeName == "" {
		s.complete(ctx, &in)
	}

	tx, err := fund.Parse(in)
	if err != nil {
		return fund.Transaction{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !tx.IsBuy() {
		pending := tx
		pending.Seq = math.MaxInt64 // after everything already recorded on the same day
		if _, err := gains.Match(append(s.ledger.All(), pending)); err != nil {
			return fund.Transaction{}, err
		}
	}

	return s.ledger.Append(ctx, tx)
}

// complete fills a missing NAV or scheme name from the NAV source. Lookup
// failures leave the input unchanged so that validation reports the field.
func (s *Service) complete(ctx context.Context, in *fund.Input) {
	if s.source == nil {
		return
	}
	on, err := date.Parse(in.Date)
	if err != nil || in.SchemeCode == "" {
		return
	}

	q, err := s.source.NAVOn(ctx, in.SchemeCode, on)
	if err != nil {
		s.logger.Warn("Could not look up NAV for transaction",
			zap.String("scheme_code", in.SchemeCode), zap.String("date", in.Date), zap.Error(err))
		return
	}
	if in.Price.IsZero() {
		in.Price = q.NAV
		s.logger.Info("Using published NAV for transaction",
			zap.String("scheme_code", in.SchemeCode), zap.Stringer("nav_date", q.Date), zap.String("nav", q.NAV.String()))
	}
	if in.SchemeName == "" {
		in.SchemeName = q.Name
	}
}

// Transactions lists the ledger, or one scheme's part of it when schemeCode is set.
func (s *Service) Transactions(schemeCode string) []fund.Transaction {
	if schemeCode == "" {
		return s.ledger.All()
	}
	return s.ledger.ByScheme(schemeCode)
}

// RemoveTransaction deletes a transaction unless doing so would leave a
// later SELL without enough units.
func (s *Service) RemoveTransaction(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.ledger.Get(id)
	if err != nil {
		return err
	}
	if tx.IsBuy() {
		rest := slices.DeleteFunc(s.ledger.All(), func(t fund.Transaction) bool { return t.ID == id })
		if _, err := gains.Match(rest); err != nil {
			return fmt.Errorf("cannot remove transaction %s: %w", id, err)
		}
	}
	return s.ledger.Remove(ctx, id)
}

// Holdings values the open lots at navs.
func (s *Service) Holdings(navs map[string]decimal.Decimal) ([]holdings.Holding, holdings.Summary, error) {
	res, err := gains.Match(s.ledger.All())
	if err != nil {
		return nil, holdings.Summary{}, err
	}
	hs := holdings.Build(res.OpenLots, res.Names, navs)
	return hs, holdings.Summarize(hs), nil
}

// CapitalGains returns the realized gains, classified for class, of the
// whole ledger or of one scheme, together with their totals.
func (s *Service) CapitalGains(class gains.AssetClass, schemeCode string) ([]gains.Event, gains.Report, error) {
	events, err := gains.ComputeGains(s.ledger.All(), class, s.policy)
	if err != nil {
		return nil, gains.Report{}, err
	}
	events = gains.Filter(events, schemeCode)
	return events, gains.Summarize(events, s.exemption), nil
}

// HeldSchemes returns the codes of schemes with open units, sorted.
func (s *Service) HeldSchemes() ([]string, error) {
	res, err := gains.Match(s.ledger.All())
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(res.OpenLots))
	for code := range res.OpenLots {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes, nil
}

// CurrentNAVs returns the latest NAV of every held scheme and the codes
// whose NAV came from an expired cache entry. Schemes whose NAV could not
// be fetched are missing from the map and reported in the error; the map
// is still usable.
func (s *Service) CurrentNAVs(ctx context.Context) (map[string]decimal.Decimal, []string, error) {
	if s.source == nil {
		return nil, nil, errNoSource
	}
	codes, err := s.HeldSchemes()
	if err != nil {
		return nil, nil, err
	}

	quotes, err := s.source.LatestNAVs(ctx, codes, s.concurrency)
	navs := make(map[string]decimal.Decimal, len(quotes))
	var stale []string
	for code, q := range quotes {
		navs[code] = q.NAV
		if q.Stale {
			stale = append(stale, code)
		}
	}
	slices.Sort(stale)

	if len(stale) > 0 {
		s.logger.Warn("Using cached NAVs, source unavailable", zap.Strings("schemes", stale))
	}
	if err != nil {
		s.logger.Warn("Some NAVs could not be fetched", zap.Int("fetched", len(navs)), zap.Int("held", len(codes)), zap.Error(err))
	}
	return navs, stale, err
}

// RefreshResult reports one NAV refresh.
type RefreshResult struct {
	Schemes   int
	Refreshed int
	Stale     []string
	Failed    map[string]error
}

// RefreshNAVs re-fetches the NAV history of every held scheme, bypassing
// fresh cache entries.
func (s *Service) RefreshNAVs(ctx context.Context) (RefreshResult, error) {
	if s.source == nil {
		return RefreshResult{}, errNoSource
	}
	codes, err := s.HeldSchemes()
	if err != nil {
		return RefreshResult{}, err
	}

	res := RefreshResult{Schemes: len(codes), Failed: make(map[string]error)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, code := range codes {
		g.Go(func() error {
			scheme, err := s.source.RefreshScheme(gctx, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed[code] = err
			case scheme.Stale:
				res.Stale = append(res.Stale, code)
			default:
				res.Refreshed++
			}
			// Only cancellation stops the other fetches.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	slices.Sort(res.Stale)
	return res, nil
}

// XIRR returns the annualised return of the ledger's cash flows: BUYs paid
// out, SELLs received, and the holdings valued at navs received on asOf.
func (s *Service) XIRR(navs map[string]decimal.Decimal, asOf date.Date) (float64, error) {
	txs := s.ledger.All()
	flows := make([]returns.CashFlow, 0, len(txs)+1)
	for _, tx := range txs {
		amount := tx.Amount
		if tx.IsBuy() {
			amount = amount.Neg()
		}
		flows = append(flows, returns.CashFlow{Date: tx.Date, Amount: amount})
	}

	hs, summary, err := s.Holdings(navs)
	if err != nil {
		return 0, err
	}
	if len(hs) > 0 {
		if asOf.IsZero() {
			asOf = date.Of(s.now())
		}
		flows = append(flows, returns.CashFlow{Date: asOf, Amount: summary.CurrentValue})
	}
	return returns.XIRR(flows, 0.1)
}
