// Package sedapal implements the PortalClient port against the SEDAPAL
// Oficina Comercial Virtual REST API.
package sedapal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/recibos/internal/adapter/driven/docformat"
	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.PortalClient = (*Client)(nil)

const (
	debtListPath = "/recibos/lista-recibos-deudas-nis"
	paidListPath = "/recibos/lista-recibos-pagados-nis"
	documentPath = "/recibos/recibo-pdf"

	portalOrigin  = "https://webapp16.sedapal.com.pe"
	portalReferer = "https://webapp16.sedapal.com.pe/socv/"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	listAccept     = "application/json, text/plain, */*"
	documentAccept = "application/pdf, application/json, */*"

	listTimeout     = 15 * time.Second
	documentTimeout = 30 * time.Second

	// maxDocumentBytes bounds a document response; real bills are well under 1 MiB.
	maxDocumentBytes = 20 << 20
)

// Client implements the driven.PortalClient port.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a portal client rooted at baseURL
// (e.g. "https://webapp16.sedapal.com.pe/OficinaComercialVirtual/api").
func NewClient(baseURL string, logger *slog.Logger, m *metrics.Metrics) *Client {
	return NewClientWithHTTPClient(&http.Client{}, baseURL, logger, m)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
		metrics:    m,
	}
}

// listRequest is the body of both listing endpoints.
type listRequest struct {
	NisRad   json.Number `json:"nis_rad"`
	PageNum  int         `json:"page_num"`
	PageSize int         `json:"page_size"`
}

// listResponse is the portal envelope; bRESP is null or absent on failure.
type listResponse struct {
	CodeResp string           `json:"cRESP"`
	Message  string           `json:"mRESP"`
	Items    []map[string]any `json:"bRESP"`
}

// ListDebtBills returns one page of pending bills.
func (c *Client) ListDebtBills(ctx context.Context, token, supplyID string, page, pageSize int) ([]model.Bill, error) {
	return c.list(ctx, "debt_list", debtListPath, token, supplyID, page, pageSize, model.BillStatusPending, model.SourceDebt)
}

// ListPaidBills returns one page of paid bills.
func (c *Client) ListPaidBills(ctx context.Context, token, supplyID string, page, pageSize int) ([]model.Bill, error) {
	return c.list(ctx, "paid_list", paidListPath, token, supplyID, page, pageSize, model.BillStatusPaid, model.SourcePaid)
}

func (c *Client) list(
	ctx context.Context,
	endpoint, path, token, supplyID string,
	page, pageSize int,
	status model.BillStatus,
	source model.SourcePage,
) ([]model.Bill, error) {
	nis, err := nisRad(supplyID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	body, err := json.Marshal(listRequest{NisRad: nis, PageNum: page, PageSize: pageSize})
	if err != nil {
		return nil, fmt.Errorf("marshaling list request: %w", err)
	}

	resp, err := c.post(ctx, endpoint, path, token, listAccept, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var envelope listResponse
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding %s response (page %d): %v: %w", endpoint, page, err, model.ErrNetwork)
	}

	if envelope.Items == nil {
		c.logger.Debug("portal list without items", "endpoint", endpoint, "supply_id", supplyID, "page", page, "code", envelope.CodeResp)
		return []model.Bill{}, nil
	}

	bills := make([]model.Bill, 0, len(envelope.Items))
	for _, item := range envelope.Items {
		bills = append(bills, parseBill(item, supplyID, nis, status, source))
	}
	return bills, nil
}

// FetchBillDocument requests the PDF for bill and decodes the response.
func (c *Client) FetchBillDocument(ctx context.Context, token string, bill model.Bill) ([]byte, error) {
	payload, err := documentPayload(bill)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling document request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	resp, err := c.post(ctx, "document", documentPath, token, documentAccept, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("reading document response: %v: %w", err, model.ErrNetwork)
	}

	content, err := docformat.Decode(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, fmt.Errorf("bill %s: %w", bill.BillID, err)
	}
	return content, nil
}

// post sends an authenticated JSON request. The caller must close the
// returned body. 401/403 map to model.ErrTokenExpired and any other
// non-200 status or transport failure to model.ErrNetwork.
func (c *Client) post(ctx context.Context, endpoint, path, token, accept string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("X-Auth-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("Origin", portalOrigin)
	req.Header.Set("Referer", portalReferer)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(endpoint, "network_error", time.Since(start))
		return nil, fmt.Errorf("%s request: %w: %w", endpoint, model.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_ = resp.Body.Close()
		c.metrics.ObserveUpstream(endpoint, "rejected", time.Since(start))
		return nil, fmt.Errorf("%s: status %d: %w", endpoint, resp.StatusCode, model.ErrTokenExpired)
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		c.metrics.ObserveUpstream(endpoint, "status_error", time.Since(start))
		return nil, fmt.Errorf("%s: unexpected status %d: %w", endpoint, resp.StatusCode, model.ErrNetwork)
	}

	c.metrics.ObserveUpstream(endpoint, "ok", time.Since(start))
	return resp, nil
}
