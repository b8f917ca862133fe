// Command finboard-report prints dashboard aggregations from a remote
// finboard API as text tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finboard/internal/analytics"
	"finboard/internal/cli"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/remote"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentReport)

	var (
		baseURL = flag.String("url", os.Getenv("REMOTE_API_URL"), "finboard API base URL")
		filter  = flag.String("filter", string(core.FilterAllTime), "date filter (all, last7days, last30days, last3months, last6months, lastyear or a year)")
		all     = flag.Bool("all", false, "fetch every transaction instead of the capped list")
		rings   = flag.String("rings", "", "comma separated ring categories")
		timeout = flag.Duration("timeout", 30*time.Second, "request timeout")
	)
	flag.Parse()

	if *baseURL == "" {
		logger.Error("No API URL: set -url or REMOTE_API_URL")
		os.Exit(2)
	}
	f, err := core.ParseDateFilter(*filter)
	if err != nil {
		logger.Error("Invalid filter", applog.FieldError, err, applog.FieldFilter, *filter)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	in, err := fetchInputs(ctx, remote.NewClient(*baseURL, *timeout), core.TransactionQuery{Filter: f, All: *all})
	if err != nil {
		logger.Error("Failed to fetch report data", applog.FieldError, err, "url", *baseURL)
		os.Exit(1)
	}
	in.RingCategories = splitCategories(*rings)
	logger.Debug("Report data fetched", applog.FieldRows, len(in.Transactions), applog.FieldFilter, f.String())

	if err := writeReport(os.Stdout, analytics.Compute(in)); err != nil {
		logger.Error("Failed to write report", applog.FieldError, err)
		os.Exit(1)
	}
}

// source is the subset of the remote client the report reads from.
type source interface {
	ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error)
	ListBudgets(ctx context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error)
}

func fetchInputs(ctx context.Context, src source, q core.TransactionQuery) (analytics.Inputs, error) {
	in := analytics.Inputs{Filter: q.Filter, Scheme: analytics.SchemeLight}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := src.ListTransactions(gctx, q)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		in.Transactions = txs
		return nil
	})
	g.Go(func() error {
		limits, err := src.ListBudgets(gctx, q.Filter)
		if err != nil {
			return fmt.Errorf("list budgets: %w", err)
		}
		in.Limits = limits
		return nil
	})
	if err := g.Wait(); err != nil {
		return analytics.Inputs{}, err
	}
	return in, nil
}

func splitCategories(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		// NormalizeCategory maps blanks to "Other", so skip them first.
		if strings.TrimSpace(part) == "" {
			continue
		}
		if c := core.NormalizeCategory(part); !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	if len(out) > analytics.DefaultRingCount {
		out = out[:analytics.DefaultRingCount]
	}
	return out
}

// writeReport prints one table per aggregation. Empty sections are skipped.
func writeReport(out io.Writer, d analytics.Dashboard) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Filter: %s\tGranularity: %s\t\n", d.Filter, d.Granularity)
	if d.InvalidDates > 0 {
		fmt.Fprintf(w, "Skipped %d transactions with invalid dates\t\n", d.InvalidDates)
	}

	totals := func(title string, rows []analytics.CategoryTotal) {
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\t\t\n", title)
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t\n", r.Category, r.Total.StringFixed(2))
		}
	}
	trend := func(title string, rows []analytics.TrendPoint) {
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\t\t\n", title)
		for _, p := range rows {
			fmt.Fprintf(w, "%s\t%s\t\n", p.Period, p.Value.StringFixed(2))
		}
	}

	totals("Expenses by category", d.ExpensePie)
	totals("Income by category", d.IncomePie)

	if len(d.CashFlow) > 0 {
		fmt.Fprintf(w, "\nCash flow\tIncome\tExpense\tNet\t\n")
		for _, p := range d.CashFlow {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", p.Period,
				p.Income.StringFixed(2), p.Expense.StringFixed(2), p.Net().StringFixed(2))
		}
	}
	trend("Net worth", d.NetWorth)

	if len(d.Funnel) > 0 {
		fmt.Fprintf(w, "\nFunnel\t\t\n")
		for _, s := range d.Funnel {
			fmt.Fprintf(w, "%s\t%s\t\n", s.Label, s.Value.StringFixed(2))
		}
	}
	if len(d.Rings) > 0 {
		fmt.Fprintf(w, "\nBudget rings\tSpent\tLimit\tProgress\t\n")
		for _, r := range d.Rings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t\n", r.Category,
				r.Spent.StringFixed(2), r.Limit.StringFixed(2), r.Value*100)
		}
	}
	if len(d.NeedsWants) > 0 {
		fmt.Fprintf(w, "\nNeeds and wants\t\t\n")
		for _, t := range d.NeedsWants {
			fmt.Fprintf(w, "%s\t%s\t\n", t.Tier, t.Total.StringFixed(2))
		}
	}
	return w.Flush()
}
