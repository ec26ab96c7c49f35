package httphandler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/recibos/internal/adapter/driven/docformat"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/filestore"
	httphandler "github.com/ericfisherdev/recibos/internal/adapter/driving/http"
	"github.com/ericfisherdev/recibos/internal/application"
	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// --- Mock implementations ---

type fakeAutomator struct {
	mu      sync.Mutex
	outcome model.LoginOutcome
	starts  int
}

func (f *fakeAutomator) Start(_ context.Context, _ model.PortalCredentials) <-chan model.LoginOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	out := make(chan model.LoginOutcome, 1)
	out <- f.outcome
	close(out)
	return out
}

type mockPortal struct {
	debt   []model.Bill
	paid   []model.Bill
	doc    []byte
	docErr error
}

func (m *mockPortal) ListDebtBills(_ context.Context, _, _ string, _, _ int) ([]model.Bill, error) {
	return m.debt, nil
}

func (m *mockPortal) ListPaidBills(_ context.Context, _, _ string, page, _ int) ([]model.Bill, error) {
	if page > 1 {
		return []model.Bill{}, nil
	}
	return m.paid, nil
}

func (m *mockPortal) FetchBillDocument(_ context.Context, _ string, _ model.Bill) ([]byte, error) {
	return m.doc, m.docErr
}

type mockCatalog struct {
	mu      sync.Mutex
	records []model.DocumentRecord
}

func (m *mockCatalog) Record(_ context.Context, rec model.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockCatalog) ListBySupply(_ context.Context, _ string) ([]model.DocumentRecord, error) {
	return m.records, nil
}

func (m *mockCatalog) ListAll(_ context.Context) ([]model.DocumentRecord, error) {
	return m.records, nil
}

type mockCredentialStore struct {
	values map[string]string
	err    error
}

func (m *mockCredentialStore) Set(_ context.Context, _, key, plaintext string) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = plaintext
	return nil
}

func (m *mockCredentialStore) Get(_ context.Context, _, key string) (string, error) {
	return m.values[key], m.err
}

func (m *mockCredentialStore) GetAll(_ context.Context, _ string) (map[string]string, error) {
	return m.values, m.err
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) { return nil, m.err }

func (m *mockCredentialStore) Delete(_ context.Context, _, _ string) error { return m.err }

// --- Helpers ---

const (
	supplyID    = "1234567"
	testOrigin  = "http://localhost:8081"
	portalToken = "token-from-portal-login"
)

func portalBill(id string, issued time.Time, status model.BillStatus, source model.SourcePage) model.Bill {
	raw := issued.Format("2006-01-02")
	return model.Bill{
		BillID:       id,
		SupplyID:     supplyID,
		IssueDate:    issued,
		IssueDateRaw: raw,
		DueDateRaw:   issued.AddDate(0, 0, 20).Format("2006-01-02"),
		Amount:       decimal.RequireFromString("52.3"),
		Status:       status,
		SourcePage:   source,
		Raw: map[string]any{
			"recibo":     json.Number(id),
			"f_fact":     raw,
			"total_fact": json.Number("52.30"),
			"nis_rad":    json.Number(supplyID),
		},
	}
}

type testEnv struct {
	automator *fakeAutomator
	portal    *mockPortal
	catalog   *mockCatalog
	creds     *application.CredentialProvider
	credStore *mockCredentialStore
	session   *application.SessionManager
	mux       http.Handler
}

func newTestEnv(t *testing.T, portal *mockPortal) *testEnv {
	t.Helper()
	env := &testEnv{
		automator: &fakeAutomator{outcome: model.LoginSucceeded{Token: portalToken, Timestamp: time.Now()}},
		portal:    portal,
		catalog:   &mockCatalog{},
		creds:     application.NewCredentialProvider(model.PortalCredentials{Email: "user@example.com", Password: "pw"}),
		credStore: &mockCredentialStore{values: map[string]string{}},
	}
	env.session = application.NewSessionManager(env.automator, env.creds, application.SessionConfig{
		TokenTTL:         time.Hour,
		LoginDeadline:    2 * time.Second,
		LoginWaitTimeout: time.Second,
	}, nil)

	cfg := application.FetchConfig{PageSize: 100, PageCap: 20, ResultLimit: 40, CacheTTL: time.Minute}
	fetcher := application.NewBillFetcher(portal, env.session, cfg, nil, nil)
	retriever := application.NewDocumentRetriever(
		application.NewPortalDocumentSource(portal, env.session),
		docformat.Tool{},
		filestore.NewStore(t.TempDir()),
		env.catalog, nil, nil, "Recibo", nil, nil,
	)
	h := httphandler.NewHandler(fetcher, retriever, env.session, application.NewSearchHistory(3),
		env.creds, env.credStore, httphandler.Limits{PageSize: 100, PageCap: 20, ResultLimit: 40}, slog.Default())
	env.mux = httphandler.NewServeMux(h, slog.Default(), nil, []string{testOrigin}, nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

var officialPDF = func() []byte {
	pdf, err := docformat.TextPDF([]string{"Recibo oficial 900002"})
	if err != nil {
		panic(err)
	}
	return pdf
}()

func standardPortal() *mockPortal {
	now := time.Now()
	return &mockPortal{
		debt: []model.Bill{portalBill("900003", now.AddDate(0, 0, -5), model.BillStatusPending, model.SourceDebt)},
		paid: []model.Bill{
			portalBill("900001", now.AddDate(-1, 0, 0), model.BillStatusPaid, model.SourcePaid),
			portalBill("900002", now.AddDate(0, -1, 0), model.BillStatusPaid, model.SourcePaid),
		},
		doc: officialPDF,
	}
}

// --- Tests ---

func TestStatus(t *testing.T) {
	env := newTestEnv(t, standardPortal())

	rec := env.do(t, http.MethodGet, "/api/test", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "portal", body["mode"])
	assert.Equal(t, false, body["session_valid"])
	assert.Equal(t, float64(40), body["result_limit"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListBills(t *testing.T) {
	env := newTestEnv(t, standardPortal())

	rec := env.do(t, http.MethodGet, "/api/recibos/"+supplyID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OK            bool             `json:"ok"`
		Total         int              `json:"total"`
		Items         []map[string]any `json:"items"`
		PendingFailed bool             `json:"pending_failed"`
		Source        string           `json:"source"`
	}
	decodeJSON(t, rec, &body)
	assert.True(t, body.OK)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, "portal", body.Source)
	require.Len(t, body.Items, 3)

	first := body.Items[0]
	assert.Equal(t, "900003", first["bill_id"])
	assert.Equal(t, "DEBT", first["source_page"])
	assert.Equal(t, "PENDIENTE", first["estado_pago"])
	assert.Equal(t, true, first["es_deuda"])
	assert.Equal(t, true, first["recent"])
	assert.Equal(t, "52.30", first["amount"])
	assert.Equal(t, "PAID", body.Items[1]["source_page"])
	assert.Equal(t, false, body.Items[2]["recent"])

	history := env.do(t, http.MethodGet, "/api/history", "")
	var hist httphandler.HistoryResponse
	decodeJSON(t, history, &hist)
	assert.Equal(t, []string{supplyID}, hist.Items)
}

func TestListBills_EmptyNotRecorded(t *testing.T) {
	env := newTestEnv(t, &mockPortal{})

	rec := env.do(t, http.MethodGet, "/api/recibos/"+supplyID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, []any{}, body["items"])

	var hist httphandler.HistoryResponse
	decodeJSON(t, env.do(t, http.MethodGet, "/api/history", ""), &hist)
	assert.Empty(t, hist.Items)
}

func TestListBills_InvalidSupply(t *testing.T) {
	env := newTestEnv(t, standardPortal())

	rec := env.do(t, http.MethodGet, "/api/recibos/12ab", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, false, body["ok"])
	assert.Zero(t, env.automator.starts)
}

func TestListBills_LoginFailure(t *testing.T) {
	env := newTestEnv(t, standardPortal())
	env.automator.outcome = model.LoginFailed{Kind: model.LoginKindFieldsNotFound, Detail: "no email field"}

	rec := env.do(t, http.MethodGet, "/api/recibos/"+supplyID, "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Contains(t, body["error"], "LoginFieldsNotFound")
	assert.Contains(t, body["error"], "try again")
}

func TestGetDocument_Binary(t *testing.T) {
	portal := standardPortal()
	env := newTestEnv(t, portal)

	rec := env.do(t, http.MethodGet, "/api/pdf/"+supplyID+"/900002", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "false", rec.Header().Get("X-Recibo-Placeholder"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Recibo_900002_")
	assert.Equal(t, portal.doc, rec.Body.Bytes())

	require.Len(t, env.catalog.records, 1)
	assert.Equal(t, "900002", env.catalog.records[0].BillID)
}

func TestGetDocument_JSON(t *testing.T) {
	portal := standardPortal()
	env := newTestEnv(t, portal)

	rec := env.do(t, http.MethodGet, "/api/pdf/"+supplyID+"/900001?format=json", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["placeholder"])
	assert.Equal(t, "saved", body["delivery"])
	assert.Equal(t, float64(len(portal.doc)), body["size"])

	decoded, err := base64.StdEncoding.DecodeString(body["pdf_base64"].(string))
	require.NoError(t, err)
	assert.Equal(t, portal.doc, decoded)
}

func TestGetDocument_PlaceholderOnUpstreamFailure(t *testing.T) {
	portal := standardPortal()
	portal.docErr = fmt.Errorf("document: %w", model.ErrNetwork)
	env := newTestEnv(t, portal)

	rec := env.do(t, http.MethodGet, "/api/pdf/"+supplyID+"/900003", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Recibo-Placeholder"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "PROVISIONAL_900003_")
	assert.Contains(t, rec.Body.String(), application.PlaceholderHeading)
	require.Len(t, env.catalog.records, 1)
	assert.True(t, env.catalog.records[0].Placeholder)
}

func TestGetDocument_UnknownBill(t *testing.T) {
	env := newTestEnv(t, standardPortal())

	rec := env.do(t, http.MethodGet, "/api/pdf/"+supplyID+"/424242", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDocument_UntaggedBill(t *testing.T) {
	portal := standardPortal()
	portal.paid = append(portal.paid, portalBill("900009", time.Now().AddDate(0, -2, 0), "", ""))
	env := newTestEnv(t, portal)

	var list httphandler.BillListResponse
	decodeJSON(t, env.do(t, http.MethodGet, "/api/recibos/"+supplyID, ""), &list)
	for _, item := range list.Items {
		if item["bill_id"] == "900009" {
			assert.NotContains(t, item, "es_deuda")
			assert.Equal(t, "", item["estado_pago"])
		}
	}

	rec := env.do(t, http.MethodGet, "/api/pdf/"+supplyID+"/900009", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSession_LifeCycle(t *testing.T) {
	env := newTestEnv(t, standardPortal())

	var state httphandler.SessionResponse
	decodeJSON(t, env.do(t, http.MethodGet, "/api/session", ""), &state)
	assert.False(t, state.Valid)

	rec := env.do(t, http.MethodPost, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &state)
	assert.True(t, state.Valid)
	assert.NotEmpty(t, state.ExpiresAt)
	assert.NotContains(t, state.Token, "portal-login")

	rec = env.do(t, http.MethodDelete, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &state)
	assert.False(t, state.Valid)
	assert.Equal(t, 1, env.automator.starts)
}

func TestSetCredentials(t *testing.T) {
	env := newTestEnv(t, standardPortal())
	_, err := env.session.AcquireToken(context.Background())
	require.NoError(t, err)

	rec := env.do(t, http.MethodPut, "/api/credentials", `{"email":"new@example.com","password":"s3cret"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "new@example.com", env.creds.Get().Email)
	assert.Equal(t, "s3cret", env.credStore.values[application.CredentialPassword])
	assert.False(t, env.session.IsValid(), "new credentials must end the session")
}

func TestSetCredentials_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		storeErr   error
		wantStatus int
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest},
		{"missing password", `{"email":"a@example.com"}`, nil, http.StatusBadRequest},
		{"no secret key", `{"email":"a@example.com","password":"pw"}`, driven.ErrEncryptionKeyNotSet, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, standardPortal())
			env.credStore.err = tt.storeErr

			rec := env.do(t, http.MethodPut, "/api/credentials", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "user@example.com", env.creds.Get().Email)
		})
	}
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t, standardPortal())
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/pdf/"+supplyID+"/900002", "").Code)

	rec := env.do(t, http.MethodGet, "/api/documents?supply="+supplyID, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var docs []httphandler.DocumentRecordResponse
	decodeJSON(t, rec, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, "900002", docs[0].BillID)
	assert.Equal(t, 1, docs[0].Pages)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, standardPortal())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/recibos/"+supplyID, nil)
	preflight.Header.Set("Origin", testOrigin)
	preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, preflight)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")

	foreign := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	foreign.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, foreign)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBridgeModeSession(t *testing.T) {
	h := httphandler.NewHandler(nil, nil, nil, application.NewSearchHistory(3),
		application.NewCredentialProvider(model.PortalCredentials{}), nil, httphandler.Limits{}, nil)
	mux := httphandler.NewServeMux(h, slog.Default(), nil, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	var status httphandler.StatusResponse
	decodeJSON(t, rec, &status)
	assert.Equal(t, httphandler.ModeBridge, status.Mode)
}
