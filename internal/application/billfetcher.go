package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

// Result sources reported to API clients.
const (
	SourcePortal = "portal"
	SourceBridge = "bridge"
)

// cacheSize bounds how many supplies keep a cached result.
const cacheSize = 256

// TokenSource provides portal tokens. SessionManager implements it.
type TokenSource interface {
	AcquireToken(ctx context.Context) (model.Token, error)
	Invalidate(value string)
}

// FetchConfig holds pagination and result-shaping limits.
type FetchConfig struct {
	PageSize    int
	PageCap     int
	ResultLimit int
	CacheTTL    time.Duration
}

// BillResult is one search outcome. Bills is never nil.
type BillResult struct {
	SupplyID      string
	Bills         []model.Bill
	PendingFailed bool // The pending sub-request failed and was treated as empty.
	PaidTruncated bool // A paid page failed; Bills holds the pages gathered before it.
	PagesFetched  int
	Source        string
}

// BillFetcher lists a supply's bills, most recent first, and keeps the latest
// result per supply so documents can be resolved by bill id.
type BillFetcher struct {
	collect func(ctx context.Context, supplyID string) (*BillResult, error)
	cfg     FetchConfig
	cache   *expirable.LRU[string, []model.Bill]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBillFetcher creates a BillFetcher that queries the portal directly.
// A nil logger falls back to slog.Default().
func NewBillFetcher(portal driven.PortalClient, tokens TokenSource, cfg FetchConfig, logger *slog.Logger, m *metrics.Metrics) *BillFetcher {
	f := newBillFetcher(cfg, logger, m)
	pf := &portalFetch{portal: portal, tokens: tokens, cfg: cfg, logger: f.logger}
	f.collect = pf.collect
	return f
}

// NewBridgeBillFetcher creates a BillFetcher backed by a remote bridge.
func NewBridgeBillFetcher(bridge driven.BridgeClient, cfg FetchConfig, logger *slog.Logger, m *metrics.Metrics) *BillFetcher {
	f := newBillFetcher(cfg, logger, m)
	f.collect = func(ctx context.Context, supplyID string) (*BillResult, error) {
		bills, err := bridge.ListBills(ctx, supplyID)
		if err != nil {
			return nil, fmt.Errorf("bridge list bills: %w", err)
		}
		return &BillResult{Bills: bills, Source: SourceBridge}, nil
	}
	return f
}

func newBillFetcher(cfg FetchConfig, logger *slog.Logger, m *metrics.Metrics) *BillFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillFetcher{
		cfg:     cfg,
		cache:   expirable.NewLRU[string, []model.Bill](cacheSize, nil, cfg.CacheTTL),
		logger:  logger,
		metrics: m,
	}
}

// Fetch returns the ResultLimit most recent bills for supplyID, most recent
// first. Zero bills is a result, not an error.
func (f *BillFetcher) Fetch(ctx context.Context, supplyID string) (*BillResult, error) {
	if err := ValidateSupplyID(supplyID); err != nil {
		return nil, err
	}

	result, err := f.collect(ctx, supplyID)
	if err != nil {
		return nil, err
	}
	result.SupplyID = supplyID
	result.Bills = selectRecent(result.Bills, f.cfg.ResultLimit)
	f.cache.Add(supplyID, result.Bills)

	f.logger.Info("bills fetched",
		"supply_id", supplyID,
		"count", len(result.Bills),
		"pages", result.PagesFetched,
		"pending_failed", result.PendingFailed,
		"paid_truncated", result.PaidTruncated,
	)
	return result, nil
}

// FindBill resolves a bill by id from the latest cached search. The supply is
// fetched only when no search for it is cached.
func (f *BillFetcher) FindBill(ctx context.Context, supplyID, billID string) (model.Bill, error) {
	if err := ValidateSupplyID(supplyID); err != nil {
		return model.Bill{}, err
	}

	// A cached search is authoritative until it expires, so unknown ids do not
	// trigger a full refetch.
	if bills, ok := f.cache.Get(supplyID); ok {
		f.metrics.CacheLookup(true)
		if bill, found := findBill(bills, billID); found {
			return bill, nil
		}
		return model.Bill{}, fmt.Errorf("bill %s for supply %s: %w", billID, supplyID, model.ErrBillNotFound)
	}
	f.metrics.CacheLookup(false)

	result, err := f.Fetch(ctx, supplyID)
	if err != nil {
		return model.Bill{}, err
	}
	if bill, found := findBill(result.Bills, billID); found {
		return bill, nil
	}
	return model.Bill{}, fmt.Errorf("bill %s for supply %s: %w", billID, supplyID, model.ErrBillNotFound)
}

func findBill(bills []model.Bill, billID string) (model.Bill, bool) {
	for _, b := range bills {
		if b.BillID == billID {
			return b, true
		}
	}
	return model.Bill{}, false
}

// selectRecent sorts ascending by issue date (missing dates first), keeps the
// last limit entries and reverses them. The result is never nil.
func selectRecent(bills []model.Bill, limit int) []model.Bill {
	sorted := slices.Clone(bills)
	slices.SortStableFunc(sorted, func(a, b model.Bill) int {
		return a.IssueDate.Compare(b.IssueDate)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	slices.Reverse(sorted)
	if sorted == nil {
		sorted = []model.Bill{}
	}
	return sorted
}

// ValidateSupplyID checks that supplyID is a non-empty run of digits.
func ValidateSupplyID(supplyID string) error {
	if supplyID == "" || len(supplyID) > 15 {
		return fmt.Errorf("%q: %w", supplyID, model.ErrInvalidSupplyID)
	}
	for _, r := range supplyID {
		if r < '0' || r > '9' {
			return fmt.Errorf("%q: %w", supplyID, model.ErrInvalidSupplyID)
		}
	}
	return nil
}

// portalFetch gathers pending and paid pages straight from the portal.
type portalFetch struct {
	portal driven.PortalClient
	tokens TokenSource
	cfg    FetchConfig
	logger *slog.Logger
}

// collect runs one gather, and a second with a fresh login if the portal
// rejected the first token.
func (p *portalFetch) collect(ctx context.Context, supplyID string) (*BillResult, error) {
	for retried := false; ; retried = true {
		tok, err := p.tokens.AcquireToken(ctx)
		if err != nil {
			return nil, err
		}

		result, err := p.gather(ctx, tok.Value, supplyID)
		if errors.Is(err, model.ErrTokenExpired) && !retried {
			p.logger.Info("portal rejected token, logging in again", "supply_id", supplyID)
			p.tokens.Invalidate(tok.Value)
			continue
		}
		return result, err
	}
}

func (p *portalFetch) gather(ctx context.Context, token, supplyID string) (*BillResult, error) {
	result := &BillResult{Source: SourcePortal}

	pending, err := p.portal.ListDebtBills(ctx, token, supplyID, 1, p.cfg.PageSize)
	switch {
	case errors.Is(err, model.ErrTokenExpired), errors.Is(err, model.ErrInvalidSupplyID):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		p.logger.Warn("pending bills unavailable, continuing without them", "supply_id", supplyID, "error", err)
		result.PendingFailed = true
	default:
		result.Bills = append(result.Bills, pending...)
	}

	for page := 1; page <= p.cfg.PageCap; page++ {
		bills, err := p.portal.ListPaidBills(ctx, token, supplyID, page, p.cfg.PageSize)
		if errors.Is(err, model.ErrTokenExpired) || errors.Is(err, model.ErrInvalidSupplyID) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			p.logger.Warn("paid bills page failed, keeping earlier pages", "supply_id", supplyID, "page", page, "error", err)
			result.PaidTruncated = true
			break
		}

		result.PagesFetched++
		result.Bills = append(result.Bills, bills...)
		if len(bills) < p.cfg.PageSize {
			break
		}
	}

	return result, nil
}
