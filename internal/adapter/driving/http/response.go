package httphandler

import (
	"encoding/json"
	"maps"
	"net/http"
	"time"

	"github.com/ericfisherdev/recibos/internal/application"
	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{OK: false, Success: false, Error: message})
}

// errorResponse is the standard error response body. Both flags are present
// so clients of either bridge generation recognize the failure.
type errorResponse struct {
	OK      bool   `json:"ok"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatusResponse is the JSON representation of GET /api/test.
type StatusResponse struct {
	OK           bool   `json:"ok"`
	Success      bool   `json:"success"`
	Mode         string `json:"mode"`
	SessionValid bool   `json:"session_valid"`
	PageSize     int    `json:"page_size"`
	PageCap      int    `json:"page_cap"`
	ResultLimit  int    `json:"result_limit"`
	Timestamp    string `json:"timestamp"`
}

// BillListResponse is the JSON representation of a bill search.
type BillListResponse struct {
	OK            bool             `json:"ok"`
	SupplyID      string           `json:"supply_id"`
	Total         int              `json:"total"`
	Items         []map[string]any `json:"items"`
	PendingFailed bool             `json:"pending_failed"`
	PaidTruncated bool             `json:"paid_truncated"`
	Source        string           `json:"source"`
}

// DocumentResponse is the ?format=json representation of a bill document.
type DocumentResponse struct {
	Success     bool   `json:"success"`
	PDFBase64   []byte `json:"pdf_base64"`
	Size        int    `json:"size"`
	Filename    string `json:"filename"`
	Placeholder bool   `json:"placeholder"`
	Delivery    string `json:"delivery"`
}

// HistoryResponse lists recently searched supplies, most recent first.
type HistoryResponse struct {
	OK    bool     `json:"ok"`
	Items []string `json:"items"`
}

// SessionResponse is the JSON representation of the portal session.
type SessionResponse struct {
	Mode       string `json:"mode"`
	Valid      bool   `json:"valid"`
	LoggingIn  bool   `json:"logging_in"`
	Token      string `json:"token,omitempty"`
	ObtainedAt string `json:"obtained_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// CredentialsRequest is the JSON body for PUT /api/credentials.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DocumentRecordResponse is one catalogued document.
type DocumentRecordResponse struct {
	BillID      string `json:"bill_id"`
	SupplyID    string `json:"supply_id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int    `json:"size"`
	Pages       int    `json:"pages"`
	Placeholder bool   `json:"placeholder"`
	SavedAt     string `json:"saved_at"`
}

// toBillItem flattens a Bill into its vendor fields plus the normalized ones.
// source_page and estado_pago let a downstream bridge client classify it.
func toBillItem(b model.Bill, now time.Time) map[string]any {
	item := make(map[string]any, len(b.Raw)+12)
	maps.Copy(item, b.Raw)

	var estado string
	switch b.Status {
	case model.BillStatusPending:
		estado = "PENDIENTE"
	case model.BillStatusPaid:
		estado = "PAGADO"
	}

	item["bill_id"] = b.BillID
	item["supply_id"] = b.SupplyID
	item["issue_date"] = b.IssueDateRaw
	item["due_date"] = b.DueDateRaw
	item["amount"] = b.Amount.StringFixed(2)
	item["status"] = string(b.Status)
	item["source_page"] = string(b.SourcePage)
	item["estado_pago"] = estado
	if b.SourcePage.Valid() {
		item["es_deuda"] = b.SourcePage == model.SourceDebt
	}
	item["recent"] = b.IsRecent(now)
	if _, ok := item["recibo"]; !ok {
		item["recibo"] = b.BillID
	}
	return item
}

func toBillListResponse(res *application.BillResult, now time.Time) BillListResponse {
	items := make([]map[string]any, 0, len(res.Bills))
	for _, b := range res.Bills {
		items = append(items, toBillItem(b, now))
	}
	return BillListResponse{
		OK:            true,
		SupplyID:      res.SupplyID,
		Total:         len(items),
		Items:         items,
		PendingFailed: res.PendingFailed,
		PaidTruncated: res.PaidTruncated,
		Source:        res.Source,
	}
}

func toSessionResponse(mode string, s application.SessionState) SessionResponse {
	resp := SessionResponse{Mode: mode, Valid: s.Valid, LoggingIn: s.LoggingIn, Token: s.Token}
	if s.Valid {
		resp.ObtainedAt = s.ObtainedAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toDocumentRecordResponse(rec model.DocumentRecord) DocumentRecordResponse {
	return DocumentRecordResponse{
		BillID:      rec.BillID,
		SupplyID:    rec.SupplyID,
		Filename:    rec.Filename,
		Path:        rec.Path,
		Size:        rec.Size,
		Pages:       rec.Pages,
		Placeholder: rec.Placeholder,
		SavedAt:     rec.SavedAt.UTC().Format(time.RFC3339),
	}
}
