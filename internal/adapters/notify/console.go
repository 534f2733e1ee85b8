package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// compact mode shows at most this many candidates on the summary line
const compactShown = 3

// Console implements ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole writes to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter writes to w; used in tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCandidates prints a cycle's candidates in the configured mode.
func (c *Console) NotifyCandidates(_ context.Context, cycleID string, candidates []domain.Candidate) error {
	if len(candidates) == 0 {
		fmt.Fprintf(c.out, "[%s] no liquidation candidates\n", time.Now().Format("15:04:05"))
		return nil
	}
	if c.table {
		c.printTable(cycleID, candidates)
	} else {
		c.printCompact(candidates)
	}
	return nil
}

func (c *Console) printCompact(cands []domain.Candidate) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d candidates", time.Now().Format("15:04:05"), len(cands))
	for i, cand := range cands {
		if i >= compactShown {
			fmt.Fprintf(&sb, " | +%d more", len(cands)-compactShown)
			break
		}
		fmt.Fprintf(&sb, " | %s hf=%s cover=%s",
			shortAddr(cand.Borrower), formatHealthFactor(cand.HealthFactor), amount(cand.DebtToCover))
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printTable(cycleID string, cands []domain.Candidate) {
	fmt.Fprintf(c.out, "\nCycle %s: %d liquidation candidates\n", cycleID, len(cands))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Borrower", "Debt", "Collateral", "HF", "Debt to cover", "Min out", "Bonus")
	for i, cand := range cands {
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortAddr(cand.Borrower),
			shortAddr(cand.DebtAsset),
			shortAddr(cand.CollateralAsset),
			formatHealthFactor(cand.HealthFactor),
			amount(cand.DebtToCover),
			amount(cand.MinAmountOut),
			formatBonus(cand.BonusBps),
		)
	}
	table.Render()
}

// PrintHistory prints recent cycles and the attempt totals for the window.
func (c *Console) PrintHistory(cycles []domain.CycleSummary, succeeded, failed int) {
	if len(cycles) == 0 {
		fmt.Fprintln(c.out, "no cycles recorded")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Started", "Duration", "Watchlist", "Candidates", "OK", "Failed", "Error")
	for _, s := range cycles {
		table.Append(
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Duration.Round(time.Millisecond).String(),
			fmt.Sprintf("%d", s.Watchlist),
			fmt.Sprintf("%d", s.Candidates),
			fmt.Sprintf("%d", s.Succeeded),
			fmt.Sprintf("%d", s.Failed),
			truncate(s.Err, 40),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "attempts: %d succeeded, %d failed\n", succeeded, failed)
}

// formatHealthFactor renders a WAD-scaled health factor with 4 decimals.
func formatHealthFactor(hf *domain.Amount) string {
	if hf == nil {
		return "-"
	}
	return decimal.NewFromBigInt(hf.ToBig(), -18).StringFixed(4)
}

func formatBonus(bps uint64) string {
	if bps == 0 {
		return "-"
	}
	// 10500 -> +5.00%
	return "+" + decimal.NewFromInt(int64(bps)-10_000).Div(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func amount(a *domain.Amount) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + ".." + h[len(h)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
