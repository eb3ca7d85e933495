package owners

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/common"
	"github.com/goran-ethernal/HolderLedger/internal/logger"
	"github.com/goran-ethernal/HolderLedger/pkg/config"
	pkgrpc "github.com/goran-ethernal/HolderLedger/pkg/rpc"
)

const (
	opOwnersPage = "getOwnersForContract"

	maxErrorBody = 512
)

// Directory is the owner listing of a contract as reported by the provider.
type Directory struct {
	// Owners maps lower case wallet to its token IDs in ascending order
	Owners map[string][]uint64

	// Burned holds the token IDs listed under a burn address, ascending
	Burned []uint64

	// Pages is the number of pages fetched
	Pages int

	// Truncated is set when the page ceiling was hit before the listing ended
	Truncated bool

	// Anomalies counts entries that were skipped as malformed
	Anomalies int
}

// TokenCount returns the number of live tokens in the directory.
func (d *Directory) TokenCount() int {
	total := 0
	for _, ids := range d.Owners {
		total += len(ids)
	}
	return total
}

type ownersPage struct {
	Owners  []ownerEntry `json:"owners"`
	PageKey string       `json:"pageKey"`
}

type ownerEntry struct {
	OwnerAddress  string         `json:"ownerAddress"`
	TokenBalances []tokenBalance `json:"tokenBalances"`
}

type tokenBalance struct {
	TokenID string      `json:"tokenId"`
	Balance json.Number `json:"balance"`
}

// Fetcher lists the owners of a contract through a paginated NFT API
// compatible with Alchemy getOwnersForContract.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxPages   int
	exec       pkgrpc.CallExecutor
	log        *logger.Logger
}

// NewFetcher creates an owner directory fetcher.
func NewFetcher(cfg config.ProviderConfig, exec pkgrpc.CallExecutor, log *logger.Logger) *Fetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second}, //nolint:mnd
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxPages:   maxPages,
		exec:       exec,
		log:        log,
	}
}

// ListOwners fetches every page of the owner listing of contract.
// A page that still fails after retries aborts the whole listing.
func (f *Fetcher) ListOwners(ctx context.Context, contract string) (*Directory, error) {
	dir := &Directory{Owners: make(map[string][]uint64)}
	seen := make(map[uint64]string)
	pageKey := ""

	for {
		if dir.Pages >= f.maxPages {
			dir.Truncated = true
			f.log.Warnw("owner listing hit the page ceiling, returning partial result",
				"contract", contract,
				"pages", dir.Pages,
			)
			break
		}

		page, err := pkgrpc.Call(ctx, f.exec, opOwnersPage, pkgrpc.ExecOptions{}, func(ctx context.Context) (*ownersPage, error) {
			return f.fetchPage(ctx, contract, pageKey)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch owners page %d of %s: %w", dir.Pages+1, contract, err)
		}

		dir.Pages++
		f.collect(dir, seen, contract, page.Owners)

		if page.PageKey == "" {
			break
		}
		pageKey = page.PageKey
	}

	for wallet := range dir.Owners {
		slices.Sort(dir.Owners[wallet])
	}
	slices.Sort(dir.Burned)

	f.log.Debugw("owner listing fetched",
		"contract", contract,
		"pages", dir.Pages,
		"owners", len(dir.Owners),
		"burned", len(dir.Burned),
	)

	return dir, nil
}

// collect folds one page into the directory. seen tracks token ownership across pages.
func (f *Fetcher) collect(dir *Directory, seen map[uint64]string, contract string, owners []ownerEntry) {
	for _, entry := range owners {
		wallet, ok := common.NormalizeAddress(entry.OwnerAddress)
		if !ok {
			dir.Anomalies++
			f.log.Warnw("skipping owner with malformed address",
				"anomaly", "owner_address",
				"contract", contract,
				"owner", entry.OwnerAddress,
			)
			continue
		}

		burn := common.IsBurnAddress(wallet)

		for _, balance := range entry.TokenBalances {
			tokenID, err := common.ParseTokenID(balance.TokenID)
			if err != nil {
				dir.Anomalies++
				f.log.Warnw("skipping malformed token id",
					"anomaly", "token_id",
					"contract", contract,
					"owner", wallet,
					"tokenId", balance.TokenID,
					"error", err,
				)
				continue
			}

			if balance.Balance.String() == "0" {
				continue
			}

			if prev, dup := seen[tokenID]; dup {
				dir.Anomalies++
				f.log.Warnw("token listed under more than one owner, keeping the first",
					"anomaly", "duplicate_token",
					"contract", contract,
					"tokenId", tokenID,
					"first", prev,
					"second", wallet,
				)
				continue
			}
			seen[tokenID] = wallet

			if burn {
				dir.Burned = append(dir.Burned, tokenID)
				continue
			}

			dir.Owners[wallet] = append(dir.Owners[wallet], tokenID)
		}
	}
}

// fetchPage performs a single page request.
func (f *Fetcher) fetchPage(ctx context.Context, contract, pageKey string) (*ownersPage, error) {
	query := url.Values{}
	query.Set("contractAddress", contract)
	query.Set("withTokenBalances", "true")
	if pageKey != "" {
		query.Set("pageKey", pageKey)
	}

	endpoint := f.baseURL
	if f.apiKey != "" {
		endpoint += "/" + url.PathEscape(f.apiKey)
	}
	endpoint += "/getOwnersForContract?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page ownersPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &page, nil
}
