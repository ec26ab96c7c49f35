package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

// PlaceholderPrefix names synthesized documents so they can never be mistaken for bills.
const PlaceholderPrefix = "PROVISIONAL"

// PlaceholderHeading is the first line of every placeholder document.
const PlaceholderHeading = "DOCUMENTO NO OFICIAL"

// DocumentSource fetches the official PDF bytes for a bill.
type DocumentSource interface {
	FetchDocument(ctx context.Context, bill model.Bill) ([]byte, error)
}

// PortalDocumentSource fetches documents from the portal with the session
// token, logging in again once if the token is rejected.
type PortalDocumentSource struct {
	portal driven.PortalClient
	tokens TokenSource
}

// NewPortalDocumentSource creates a PortalDocumentSource.
func NewPortalDocumentSource(portal driven.PortalClient, tokens TokenSource) *PortalDocumentSource {
	return &PortalDocumentSource{portal: portal, tokens: tokens}
}

// FetchDocument implements DocumentSource.
func (s *PortalDocumentSource) FetchDocument(ctx context.Context, bill model.Bill) ([]byte, error) {
	for retried := false; ; retried = true {
		tok, err := s.tokens.AcquireToken(ctx)
		if err != nil {
			return nil, err
		}
		content, err := s.portal.FetchBillDocument(ctx, tok.Value, bill)
		if errors.Is(err, model.ErrTokenExpired) && !retried {
			s.tokens.Invalidate(tok.Value)
			continue
		}
		return content, err
	}
}

// BridgeDocumentSource fetches documents from a remote bridge.
type BridgeDocumentSource struct {
	bridge driven.BridgeClient
}

// NewBridgeDocumentSource creates a BridgeDocumentSource.
func NewBridgeDocumentSource(bridge driven.BridgeClient) *BridgeDocumentSource {
	return &BridgeDocumentSource{bridge: bridge}
}

// FetchDocument implements DocumentSource.
func (s *BridgeDocumentSource) FetchDocument(ctx context.Context, bill model.Bill) ([]byte, error) {
	return s.bridge.FetchBillDocument(ctx, bill)
}

// DocumentRetriever fetches, saves and catalogs bill PDFs, falling back to a
// locally rendered placeholder when the official document cannot be obtained.
type DocumentRetriever struct {
	source  DocumentSource
	pdf     driven.PDFTool
	store   driven.DocumentStore
	catalog driven.DocumentCatalog
	opener  driven.DocumentOpener
	sharer  driven.DocumentSharer
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewDocumentRetriever creates a DocumentRetriever. catalog, opener and sharer
// may be nil. A nil logger falls back to slog.Default().
func NewDocumentRetriever(
	source DocumentSource,
	pdf driven.PDFTool,
	store driven.DocumentStore,
	catalog driven.DocumentCatalog,
	opener driven.DocumentOpener,
	sharer driven.DocumentSharer,
	prefix string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *DocumentRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentRetriever{
		source:  source,
		pdf:     pdf,
		store:   store,
		catalog: catalog,
		opener:  opener,
		sharer:  sharer,
		prefix:  prefix,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Retrieve returns the saved document for bill. Upstream failures produce a
// placeholder with Placeholder set; save failures are returned as
// model.ErrFileWrite.
func (r *DocumentRetriever) Retrieve(ctx context.Context, bill model.Bill) (*model.Document, error) {
	if !bill.SourcePage.Valid() {
		return nil, fmt.Errorf("bill %s: %w", bill.BillID, model.ErrUnknownSource)
	}

	content, err := r.source.FetchDocument(ctx, bill)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, model.ErrUnknownSource) || errors.Is(err, model.ErrInvalidSupplyID) {
			return nil, err
		}
		r.logger.Warn("official document unavailable, rendering placeholder",
			"bill_id", bill.BillID, "supply_id", bill.SupplyID, "error", err)
		placeholder, renderErr := r.pdf.RenderText(PlaceholderLines(bill, r.now()))
		if renderErr != nil {
			return nil, fmt.Errorf("render placeholder for bill %s: %w", bill.BillID, renderErr)
		}
		return r.save(ctx, bill, model.DocumentFilename(PlaceholderPrefix, bill), placeholder, true)
	}

	return r.save(ctx, bill, model.DocumentFilename(r.prefix, bill), content, false)
}

func (r *DocumentRetriever) save(ctx context.Context, bill model.Bill, filename string, content []byte, placeholder bool) (*model.Document, error) {
	pages, err := r.pdf.PageCount(content)
	if err != nil {
		r.logger.Debug("could not count document pages", "bill_id", bill.BillID, "error", err)
	}

	path, err := r.store.Save(ctx, filename, content)
	if err != nil {
		if !errors.Is(err, model.ErrFileWrite) {
			err = fmt.Errorf("%w: %w", model.ErrFileWrite, err)
		}
		return nil, fmt.Errorf("save %s: %w", filename, err)
	}

	doc := &model.Document{
		BillID:      bill.BillID,
		SupplyID:    bill.SupplyID,
		Filename:    filename,
		Path:        path,
		Content:     content,
		Pages:       pages,
		Placeholder: placeholder,
		SavedAt:     r.now(),
	}
	r.metrics.DocumentSaved(placeholder)

	if r.catalog != nil {
		rec := model.DocumentRecord{
			BillID:      doc.BillID,
			SupplyID:    doc.SupplyID,
			Filename:    doc.Filename,
			Path:        doc.Path,
			Size:        doc.Size(),
			Pages:       doc.Pages,
			Placeholder: doc.Placeholder,
			SavedAt:     doc.SavedAt,
		}
		if err := r.catalog.Record(ctx, rec); err != nil {
			r.logger.Warn("failed to catalog document", "path", path, "error", err)
		}
	}

	r.logger.Info("document saved", "bill_id", bill.BillID, "path", path, "size", doc.Size(), "placeholder", placeholder)
	return doc, nil
}

// Deliver hands a saved document to the user: the system opener if available,
// else a share target, else only the saved path is reported. Delivery
// failures are logged, never returned.
func (r *DocumentRetriever) Deliver(ctx context.Context, doc *model.Document) model.Delivery {
	if r.opener != nil && r.opener.Available() {
		err := r.opener.Open(ctx, doc.Path)
		if err == nil {
			return model.DeliveryOpened
		}
		r.logger.Warn("opening document failed", "path", doc.Path, "error", err)
	}

	err := r.share(ctx, doc)
	if err == nil {
		return model.DeliveryShared
	}
	r.logger.Debug("share skipped", "path", doc.Path, "error", err)

	return model.DeliveryStored
}

func (r *DocumentRetriever) share(ctx context.Context, doc *model.Document) error {
	if r.sharer == nil {
		return model.ErrShareUnavailable
	}
	ok, err := r.sharer.Available(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrShareUnavailable, err)
	}
	if !ok {
		return model.ErrShareUnavailable
	}
	return r.sharer.Share(ctx, doc.Path, doc.Filename)
}

// ListDocuments returns catalogued documents for supplyID, or all of them
// when supplyID is empty.
func (r *DocumentRetriever) ListDocuments(ctx context.Context, supplyID string) ([]model.DocumentRecord, error) {
	if r.catalog == nil {
		return []model.DocumentRecord{}, nil
	}
	if supplyID == "" {
		return r.catalog.ListAll(ctx)
	}
	if err := ValidateSupplyID(supplyID); err != nil {
		return nil, err
	}
	return r.catalog.ListBySupply(ctx, supplyID)
}

// PlaceholderLines lists the bill's known fields under PlaceholderHeading.
func PlaceholderLines(bill model.Bill, now time.Time) []string {
	return []string{
		PlaceholderHeading,
		"",
		"Recibo: " + orDash(bill.BillID),
		"Suministro: " + orDash(bill.SupplyID),
		"Fecha de emision: " + orDash(bill.IssueDateRaw),
		"Vencimiento: " + orDash(bill.DueDateRaw),
		"Importe: S/ " + bill.Amount.StringFixed(2),
		"Estado: " + orDash(string(bill.Status)),
		"Origen: " + orDash(string(bill.SourcePage)),
		"",
		"No se pudo obtener el recibo oficial del portal.",
		"Este documento solo resume los datos conocidos del recibo.",
		"Generado: " + now.Format("2006-01-02 15:04"),
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
