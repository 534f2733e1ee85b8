package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/liqbot/internal/adapters/notify"
	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandidate(borrower string, hf string) domain.Candidate {
	return domain.Candidate{
		Borrower:        common.HexToAddress(borrower),
		DebtAsset:       common.HexToAddress("0x3c499c542cef5e3811e1192ce70d8cc03d5c3359"),
		CollateralAsset: common.HexToAddress("0x7ceb23fd6bc0add59e62ac25578270cff1b9f619"),
		DebtToCover:     uint256.NewInt(1_000_000_000),
		MinAmountOut:    uint256.NewInt(1_046_850_000),
		HealthFactor:    uint256.MustFromDecimal(hf),
		BonusBps:        10500,
	}
}

func TestConsole_NotifyCandidates_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	err := n.NotifyCandidates(context.Background(), "c1", []domain.Candidate{
		makeCandidate("0xa11ce", "950000000000000000"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "1 candidates")
	assert.Contains(t, out, "hf=0.9500")
	assert.Contains(t, out, "cover=1000000000")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestConsole_NotifyCandidates_CompactCapsShown(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	cands := []domain.Candidate{
		makeCandidate("0x01", "900000000000000000"),
		makeCandidate("0x02", "910000000000000000"),
		makeCandidate("0x03", "920000000000000000"),
		makeCandidate("0x04", "930000000000000000"),
		makeCandidate("0x05", "940000000000000000"),
	}
	require.NoError(t, n.NotifyCandidates(context.Background(), "c1", cands))

	out := buf.String()
	assert.Contains(t, out, "+2 more")
	assert.NotContains(t, out, "hf=0.9300")
}

func TestConsole_NotifyCandidates_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.NotifyCandidates(context.Background(), "cycle-42", []domain.Candidate{
		makeCandidate("0xa11ce", "987654321000000000"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "cycle-42")
	assert.Contains(t, out, "0.9877")
	assert.Contains(t, out, "1046850000")
	assert.Contains(t, out, "+5.00%")
}

func TestConsole_NotifyCandidates_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyCandidates(context.Background(), "c1", nil))
	assert.Contains(t, buf.String(), "no liquidation candidates")
}

func TestConsole_PrintHistory(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintHistory([]domain.CycleSummary{
		{ID: "c2", StartedAt: time.Now(), Duration: 1200 * time.Millisecond, Watchlist: 40, Candidates: 2, Succeeded: 1, Failed: 1},
		{ID: "c1", StartedAt: time.Now().Add(-time.Minute), Watchlist: 39, Err: strings.Repeat("x", 80)},
	}, 3, 4)

	out := buf.String()
	assert.Contains(t, out, "1.2s")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "attempts: 3 succeeded, 4 failed")
}

func TestConsole_PrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, false).PrintHistory(nil, 0, 0)
	assert.Contains(t, buf.String(), "no cycles recorded")
}
