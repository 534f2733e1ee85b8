package watchlist_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/watchlist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc  = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
)

func TestAave_AddRemove(t *testing.T) {
	wl := watchlist.NewAave()
	key := domain.WatchKey{Borrower: alice, Market: usdc}

	require.NoError(t, wl.Add(key))
	assert.True(t, wl.Contains(key))
	assert.Equal(t, 1, wl.Len())

	err := wl.Add(key)
	assert.ErrorIs(t, err, watchlist.ErrAlreadyPresent, "duplicate delivery is reported, not hidden")
	assert.Equal(t, 1, wl.Len())

	require.NoError(t, wl.Remove(key))
	assert.False(t, wl.Contains(key))

	err = wl.Remove(key)
	assert.ErrorIs(t, err, watchlist.ErrNotFound)
}

func TestAave_SnapshotIsIndependent(t *testing.T) {
	wl := watchlist.NewAave()
	require.NoError(t, wl.Add(domain.WatchKey{Borrower: alice, Market: usdc}))
	require.NoError(t, wl.Add(domain.WatchKey{Borrower: bob, Market: usdc}))

	snap := wl.Snapshot()
	require.Len(t, snap, 2)

	require.NoError(t, wl.Remove(domain.WatchKey{Borrower: alice, Market: usdc}))
	snap[0] = domain.WatchKey{}

	assert.Len(t, snap, 2, "later mutation must not reach an earlier snapshot")
	assert.Equal(t, 1, wl.Len())
	assert.True(t, wl.Contains(domain.WatchKey{Borrower: bob, Market: usdc}))
}

func TestMorpho_TracksMarketIDs(t *testing.T) {
	wl := watchlist.NewMorpho()
	key := domain.MorphoKey{
		Borrower: alice,
		MarketID: common.HexToHash("0x1cfe584af3db05c7f39d60e458a87a8b2f6b5d8c6125631984ec489f1d13553b"),
	}

	require.NoError(t, wl.Add(key))
	assert.ErrorIs(t, wl.Add(key), watchlist.ErrAlreadyPresent)
	assert.Equal(t, []domain.MorphoKey{key}, wl.Snapshot())
}

// Each writer lane walks its own key sequence: Add(i) then Remove(i-1).
// Every state that ever exists therefore holds, per lane, either {i} or
// {i-1, i}. A snapshot assembled key by key while the writer moves on can
// observe zero keys or two non-adjacent keys for a lane; a consistent one cannot.
func TestSnapshot_NeverTornUnderConcurrentMutation(t *testing.T) {
	const (
		lanes   = 4
		steps   = 2000
		readers = 4
		stride  = 1_000_000
	)

	wl := watchlist.New[int]()
	for l := 0; l < lanes; l++ {
		require.NoError(t, wl.Add(l*stride))
	}

	var writers sync.WaitGroup
	for l := 0; l < lanes; l++ {
		writers.Add(1)
		go func(lane int) {
			defer writers.Done()
			base := lane * stride
			for i := 1; i <= steps; i++ {
				if err := wl.Add(base + i); err != nil {
					t.Errorf("add: %v", err)
					return
				}
				if err := wl.Remove(base + i - 1); err != nil {
					t.Errorf("remove: %v", err)
					return
				}
			}
		}(l)
	}

	done := make(chan struct{})
	var readersWG sync.WaitGroup
	for r := 0; r < readers; r++ {
		readersWG.Add(1)
		go func() {
			defer readersWG.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				assertConsistent(t, wl.Snapshot(), lanes, stride)
			}
		}()
	}

	writers.Wait()
	close(done)
	readersWG.Wait()

	final := wl.Snapshot()
	sort.Ints(final)
	want := make([]int, 0, lanes)
	for l := 0; l < lanes; l++ {
		want = append(want, l*stride+steps)
	}
	assert.Equal(t, want, final)
}

func assertConsistent(t *testing.T, snap []int, lanes, stride int) {
	t.Helper()

	perLane := make([][]int, lanes)
	for _, k := range snap {
		perLane[k/stride] = append(perLane[k/stride], k%stride)
	}
	for lane, keys := range perLane {
		sort.Ints(keys)
		switch len(keys) {
		case 1:
		case 2:
			if keys[1]-keys[0] != 1 {
				t.Errorf("lane %d: non-adjacent keys %v", lane, keys)
			}
		default:
			t.Errorf("lane %d: impossible state %v", lane, keys)
		}
	}
}
