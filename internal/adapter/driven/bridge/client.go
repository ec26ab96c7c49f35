// Package bridge implements the BridgeClient port against a remote bridge
// serving the /api/recibos and /api/pdf endpoints.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/recibos/internal/adapter/driven/docformat"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/sedapal"
	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.BridgeClient = (*Client)(nil)

const (
	pingTimeout     = 5 * time.Second
	listTimeout     = 60 * time.Second
	documentTimeout = 60 * time.Second

	maxDocumentBytes = 20 << 20
)

// Client implements the driven.BridgeClient port.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a bridge client whose transport honours the bridge's
// cache headers (httpcache in-memory store).
func NewClient(baseURL string, logger *slog.Logger, m *metrics.Metrics) *Client {
	httpClient := &http.Client{Transport: httpcache.NewMemoryCacheTransport()}
	return NewClientWithHTTPClient(httpClient, baseURL, logger, m)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		metrics:    m,
	}
}

// listResponse covers both bridge generations: {ok, items, source} and the
// legacy {success, recibos, message, fuente}.
type listResponse struct {
	OK      *bool            `json:"ok"`
	Items   []map[string]any `json:"items"`
	Source  string           `json:"source"`
	Success *bool            `json:"success"`
	Recibos []map[string]any `json:"recibos"`
	Message string           `json:"message"`
	Fuente  string           `json:"fuente"`
}

// Ping checks that the bridge answers /api/test with a success flag.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := c.get(ctx, "bridge_test", "/api/test", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var status struct {
		OK      bool `json:"ok"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding bridge status: %v: %w", err, model.ErrNetwork)
	}
	if !status.OK && !status.Success {
		return fmt.Errorf("bridge reports not ready: %w", model.ErrNetwork)
	}
	return nil
}

// ListBills returns the bridge's bills for supplyID, normalized to model.Bill.
func (c *Client) ListBills(ctx context.Context, supplyID string) ([]model.Bill, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	resp, err := c.get(ctx, "bridge_list", "/api/recibos/"+url.PathEscape(supplyID), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var envelope listResponse
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding bridge list: %v: %w", err, model.ErrUnknownResponseFormat)
	}

	var items []map[string]any
	switch {
	case envelope.OK != nil && *envelope.OK:
		items = envelope.Items
	case envelope.Success != nil && *envelope.Success:
		items = envelope.Recibos
	case envelope.OK != nil || envelope.Success != nil:
		msg := envelope.Message
		if msg == "" {
			msg = "bridge reported failure"
		}
		return nil, fmt.Errorf("%s: %w", msg, model.ErrNetwork)
	default:
		return nil, fmt.Errorf("bridge list without ok/success flag: %w", model.ErrUnknownResponseFormat)
	}

	bills := make([]model.Bill, 0, len(items))
	for _, item := range items {
		status, source := classify(item)
		if source == "" {
			c.logger.Warn("bridge item has no source tag, its document cannot be requested",
				"supply_id", supplyID, "recibo", item["recibo"])
		}
		bill, err := sedapal.BillFromItem(item, supplyID, status, source)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	c.logger.Debug("bridge list", "supply_id", supplyID, "count", len(bills), "source", firstNonEmpty(envelope.Source, envelope.Fuente))
	return bills, nil
}

// FetchBillDocument downloads the bill PDF from /api/pdf/{supply}/{bill}.
func (c *Client) FetchBillDocument(ctx context.Context, bill model.Bill) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	resp, err := c.get(ctx, "bridge_document", "/api/pdf/"+url.PathEscape(bill.SupplyID)+"/"+url.PathEscape(bill.BillID), model.ErrBillNotFound)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("reading bridge document: %v: %w", err, model.ErrNetwork)
	}
	content, err := docformat.Decode(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, fmt.Errorf("bill %s: %w", bill.BillID, err)
	}
	return content, nil
}

// get issues a GET and checks the status. A 404 becomes notFound when it is
// set and a plain status error otherwise.
func (c *Client) get(ctx context.Context, endpoint, path string, notFound error) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json, application/pdf, */*")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(endpoint, "network_error", time.Since(start))
		return nil, fmt.Errorf("%s request: %w: %w", endpoint, model.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && notFound != nil:
		_ = resp.Body.Close()
		c.metrics.ObserveUpstream(endpoint, "not_found", time.Since(start))
		return nil, fmt.Errorf("%s: %w", endpoint, notFound)
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		c.metrics.ObserveUpstream(endpoint, "status_error", time.Since(start))
		return nil, fmt.Errorf("%s: unexpected status %d: %w", endpoint, resp.StatusCode, model.ErrNetwork)
	}

	c.metrics.ObserveUpstream(endpoint, "ok", time.Since(start))
	return resp, nil
}

// classify derives status and source page from a bridge item. The structured
// source_page field wins, then es_deuda, then the free-text estado fields.
// An item with none of them is left untagged.
func classify(item map[string]any) (model.BillStatus, model.SourcePage) {
	if s, ok := item["source_page"].(string); ok {
		switch model.SourcePage(strings.ToUpper(s)) {
		case model.SourceDebt:
			return model.BillStatusPending, model.SourceDebt
		case model.SourcePaid:
			return model.BillStatusPaid, model.SourcePaid
		}
	}
	if debt, ok := item["es_deuda"].(bool); ok {
		if debt {
			return model.BillStatusPending, model.SourceDebt
		}
		return model.BillStatusPaid, model.SourcePaid
	}
	for _, key := range []string{"estado_pago", "estado", "est_rec"} {
		s, _ := item[key].(string)
		s = strings.ToLower(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "deuda") || strings.Contains(s, "pend") || strings.Contains(s, "impag") {
			return model.BillStatusPending, model.SourceDebt
		}
		return model.BillStatusPaid, model.SourcePaid
	}
	return "", ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
