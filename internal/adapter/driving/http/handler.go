// Package httphandler is the driving adapter serving the bill lookup REST API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/recibos/internal/application"
	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

const placeholderHeader = "X-Recibo-Placeholder"

// Server modes reported by /api/test.
const (
	ModePortal = "portal"
	ModeBridge = "bridge"
)

// Limits echoes the fetch limits in /api/test.
type Limits struct {
	PageSize    int
	PageCap     int
	ResultLimit int
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	bills       *application.BillFetcher
	documents   *application.DocumentRetriever
	session     *application.SessionManager // nil in bridge mode
	history     *application.SearchHistory
	credentials *application.CredentialProvider
	credStore   driven.CredentialStore
	mode        string
	limits      Limits
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler creates a Handler with all required dependencies. session is nil
// when bills come from a remote bridge.
func NewHandler(
	bills *application.BillFetcher,
	documents *application.DocumentRetriever,
	session *application.SessionManager,
	history *application.SearchHistory,
	credentials *application.CredentialProvider,
	credStore driven.CredentialStore,
	limits Limits,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mode := ModePortal
	if session == nil {
		mode = ModeBridge
	}
	return &Handler{
		bills:       bills,
		documents:   documents,
		session:     session,
		history:     history,
		credentials: credentials,
		credStore:   credStore,
		mode:        mode,
		limits:      limits,
		logger:      logger,
		now:         time.Now,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with CORS, logging and recovery middleware. metricsHandler, when non-nil,
// is served at /metrics.
func NewServeMux(h *Handler, logger *slog.Logger, m *metrics.Metrics, corsOrigins []string, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/test", h.Status)
	mux.HandleFunc("GET /api/recibos/{supplyId}", h.ListBills)
	mux.HandleFunc("GET /api/pdf/{supplyId}/{billId}", h.GetDocument)
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("GET /api/session", h.GetSession)
	mux.HandleFunc("POST /api/session", h.Login)
	mux.HandleFunc("DELETE /api/session", h.ClearSession)
	mux.HandleFunc("PUT /api/credentials", h.SetCredentials)
	mux.HandleFunc("GET /api/documents", h.ListDocuments)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = corsMiddleware(corsOrigins, wrapped)
	wrapped = loggingMiddleware(logger, m, wrapped)

	return wrapped
}

// Status reports liveness and the active fetch limits.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		OK:           true,
		Success:      true,
		Mode:         h.mode,
		SessionValid: h.session != nil && h.session.IsValid(),
		PageSize:     h.limits.PageSize,
		PageCap:      h.limits.PageCap,
		ResultLimit:  h.limits.ResultLimit,
		Timestamp:    h.now().UTC().Format(time.RFC3339),
	})
}

// ListBills returns the most recent bills for a supply.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	supplyID := r.PathValue("supplyId")

	result, err := h.bills.Fetch(r.Context(), supplyID)
	if err != nil {
		h.writeFailure(w, "list bills", supplyID, err)
		return
	}

	if len(result.Bills) > 0 {
		h.history.Record(supplyID)
	}

	writeJSON(w, http.StatusOK, toBillListResponse(result, h.now()))
}

// GetDocument returns the PDF for one bill, as binary or, with
// ?format=json, base64 inside JSON. Placeholders are flagged in both.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	supplyID := r.PathValue("supplyId")
	billID := r.PathValue("billId")

	bill, err := h.bills.FindBill(r.Context(), supplyID, billID)
	if err != nil {
		h.writeFailure(w, "find bill", supplyID, err)
		return
	}

	doc, err := h.documents.Retrieve(r.Context(), bill)
	if err != nil {
		h.writeFailure(w, "retrieve document", supplyID, err)
		return
	}
	delivery := h.documents.Deliver(r.Context(), doc)

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, DocumentResponse{
			Success:     true,
			PDFBase64:   doc.Content,
			Size:        doc.Size(),
			Filename:    doc.Filename,
			Placeholder: doc.Placeholder,
			Delivery:    string(delivery),
		})
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/pdf")
	hdr.Set("Content-Length", strconv.Itoa(doc.Size()))
	hdr.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	hdr.Set(placeholderHeader, strconv.FormatBool(doc.Placeholder))
	if doc.Placeholder {
		hdr.Set("Cache-Control", "no-store")
	} else {
		hdr.Set("Cache-Control", "public, max-age=86400")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

// History returns recently searched supplies.
func (h *Handler) History(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HistoryResponse{OK: true, Items: h.history.List()})
}

// GetSession reports whether a portal token is held.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	if h.session == nil {
		writeJSON(w, http.StatusOK, SessionResponse{Mode: h.mode})
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(h.mode, h.session.State()))
}

// Login acquires a portal token now, reusing a valid one.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeError(w, http.StatusConflict, "no portal session in bridge mode")
		return
	}
	if _, err := h.session.AcquireToken(r.Context()); err != nil {
		h.writeFailure(w, "login", "", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(h.mode, h.session.State()))
}

// ClearSession drops the token and cancels any login in progress.
func (h *Handler) ClearSession(w http.ResponseWriter, _ *http.Request) {
	if h.session == nil {
		writeError(w, http.StatusConflict, "no portal session in bridge mode")
		return
	}
	h.session.Clear()
	writeJSON(w, http.StatusOK, toSessionResponse(h.mode, h.session.State()))
}

// SetCredentials stores portal credentials and clears the session so the
// next search logs in with them.
func (h *Handler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creds := model.PortalCredentials{Email: req.Email, Password: req.Password}
	err := application.StoreCredentials(r.Context(), h.credStore, h.credentials, creds)
	switch {
	case errors.Is(err, model.ErrNoCredentials):
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusConflict, "credential storage disabled: set RECIBOS_SECRET_KEY")
		return
	case err != nil:
		h.logger.Error("failed to store credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if h.session != nil {
		h.session.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments returns the saved document catalog, optionally filtered by
// ?supply=.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	supplyID := r.URL.Query().Get("supply")

	records, err := h.documents.ListDocuments(r.Context(), supplyID)
	if err != nil {
		h.writeFailure(w, "list documents", supplyID, err)
		return
	}

	resp := make([]DocumentRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toDocumentRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeFailure maps domain errors to status codes. Login and upstream
// failures are 502 so clients can offer a retry.
func (h *Handler) writeFailure(w http.ResponseWriter, op, supplyID string, err error) {
	var loginErr *model.LoginError
	switch {
	case errors.Is(err, model.ErrInvalidSupplyID):
		writeError(w, http.StatusBadRequest, "invalid supply number: digits only")
	case errors.Is(err, model.ErrBillNotFound):
		writeError(w, http.StatusNotFound, "bill not found")
	case errors.Is(err, model.ErrUnknownSource):
		writeError(w, http.StatusUnprocessableEntity, "bill has no known origin, its document cannot be requested")
	case errors.As(err, &loginErr):
		h.logger.Warn(op+" failed: portal login", "supply_id", supplyID, "kind", loginErr.Kind, "detail", loginErr.Detail)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("portal login failed (%s), try again: %s", loginErr.Kind, loginErr.Detail))
	case errors.Is(err, model.ErrTokenExpired):
		h.logger.Warn(op+" failed: token rejected", "supply_id", supplyID, "error", err)
		writeError(w, http.StatusBadGateway, "portal rejected the session, try again")
	case errors.Is(err, model.ErrNetwork), errors.Is(err, model.ErrUnknownResponseFormat):
		h.logger.Warn(op+" failed: upstream", "supply_id", supplyID, "error", err)
		writeError(w, http.StatusBadGateway, "portal unavailable, try again")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request cancelled")
	default:
		h.logger.Error(op+" failed", "supply_id", supplyID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
