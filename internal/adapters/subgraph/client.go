// Package subgraph lists open borrow positions from a GraphQL indexer.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize = 1000
	defaultMaxPages = 200
	requestsPerSec  = 5
)

const borrowsQuery = `query OpenBorrows($first: Int!, $lastId: String!) {
  borrows(first: $first, where: { id_gt: $lastId }, orderBy: id, orderDirection: asc) {
    id
    asset { id }
    account { id }
  }
}`

const borrowsByAssetQuery = `query OpenBorrows($first: Int!, $lastId: String!, $assets: [String!]!) {
  borrows(first: $first, where: { id_gt: $lastId, asset_in: $assets }, orderBy: id, orderDirection: asc) {
    id
    asset { id }
    account { id }
  }
}`

// ErrTruncated is returned when MaxPages full pages were read and the
// indexer may still hold more rows.
var ErrTruncated = errors.New("subgraph: page limit reached")

// Config locates the indexer. A non-empty Assets restricts the listing to
// borrows of those reserves.
type Config struct {
	URL      string
	APIKey   string
	Assets   []common.Address
	PageSize int
	MaxPages int
	Timeout  time.Duration
}

// Client implements ports.PositionIndexer.
// Requests are made once: a failed bootstrap is reported, not retried.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient returns an indexer client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(requestsPerSec, 1),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type borrowsResponse struct {
	Data struct {
		Borrows []struct {
			ID    string `json:"id"`
			Asset struct {
				ID string `json:"id"`
			} `json:"asset"`
			Account struct {
				ID string `json:"id"`
			} `json:"account"`
		} `json:"borrows"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

// OpenBorrows pages through every borrow and returns distinct
// (borrower, asset) positions. Rows with unparsable addresses are skipped.
// A listing still full after MaxPages pages fails with ErrTruncated rather
// than returning a partial watchlist.
func (c *Client) OpenBorrows(ctx context.Context) ([]domain.WatchKey, error) {
	seen := make(map[domain.WatchKey]struct{})
	keys := make([]domain.WatchKey, 0)
	lastID := ""
	skipped := 0
	complete := false

	query, assets := borrowsQuery, c.assetIDs()
	if len(assets) > 0 {
		query = borrowsByAssetQuery
	}

	for page := 0; page < c.cfg.MaxPages; page++ {
		vars := map[string]any{"first": c.cfg.PageSize, "lastId": lastID}
		if len(assets) > 0 {
			vars["assets"] = assets
		}
		var resp borrowsResponse
		err := c.post(ctx, gqlRequest{Query: query, Variables: vars}, &resp)
		if err != nil {
			return nil, fmt.Errorf("subgraph.OpenBorrows: page %d: %w", page, err)
		}
		if len(resp.Errors) > 0 {
			msgs := make([]string, 0, len(resp.Errors))
			for _, e := range resp.Errors {
				msgs = append(msgs, e.Message)
			}
			return nil, fmt.Errorf("subgraph.OpenBorrows: graphql: %s", strings.Join(msgs, "; "))
		}

		for _, b := range resp.Data.Borrows {
			if !common.IsHexAddress(b.Account.ID) || !common.IsHexAddress(b.Asset.ID) {
				skipped++
				continue
			}
			key := domain.WatchKey{
				Borrower: common.HexToAddress(b.Account.ID),
				Market:   common.HexToAddress(b.Asset.ID),
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		n := len(resp.Data.Borrows)
		if n < c.cfg.PageSize {
			complete = true
			break
		}
		lastID = resp.Data.Borrows[n-1].ID
	}
	if !complete {
		slog.Warn("subgraph: page limit reached", "pages", c.cfg.MaxPages, "positions", len(keys), "last_id", lastID)
		return nil, fmt.Errorf("subgraph.OpenBorrows: %w after %d pages", ErrTruncated, c.cfg.MaxPages)
	}

	slog.Info("subgraph: open borrows fetched", "positions", len(keys), "skipped", skipped)
	return keys, nil
}

// assetIDs renders the asset filter the way the indexer stores ids.
func (c *Client) assetIDs() []string {
	out := make([]string, 0, len(c.cfg.Assets))
	for _, a := range c.cfg.Assets {
		out = append(out, strings.ToLower(a.Hex()))
	}
	return out
}

func (c *Client) post(ctx context.Context, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
