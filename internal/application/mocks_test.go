package application_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/recibos/internal/adapter/driven/docformat"
	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// --- Mock implementations ---

// fakeAutomator runs behavior for each Start call. call is 1-based.
type fakeAutomator struct {
	starts   atomic.Int32
	started  chan struct{}
	lastCred atomic.Value
	behavior func(ctx context.Context, call int) model.LoginOutcome
}

func newFakeAutomator(behavior func(ctx context.Context, call int) model.LoginOutcome) *fakeAutomator {
	return &fakeAutomator{started: make(chan struct{}, 16), behavior: behavior}
}

func (f *fakeAutomator) Start(ctx context.Context, creds model.PortalCredentials) <-chan model.LoginOutcome {
	call := int(f.starts.Add(1))
	f.lastCred.Store(creds)
	f.started <- struct{}{}

	out := make(chan model.LoginOutcome, 1)
	go func() {
		defer close(out)
		out <- f.behavior(ctx, call)
	}()
	return out
}

// blockUntil emits success once release is closed, or a cancellation failure.
func blockUntil(release <-chan struct{}, token string) func(ctx context.Context, call int) model.LoginOutcome {
	return func(ctx context.Context, _ int) model.LoginOutcome {
		select {
		case <-release:
			return succeed(token)
		case <-ctx.Done():
			return model.LoginFailed{Kind: model.LoginKindTimeout, Detail: "login attempt cancelled"}
		}
	}
}

func succeed(token string) model.LoginSucceeded {
	return model.LoginSucceeded{Token: token, Timestamp: timeNow()}
}

type mockTokens struct {
	mu          sync.Mutex
	acquired    int
	invalidated []string
	err         error
}

func (m *mockTokens) AcquireToken(_ context.Context) (model.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.Token{}, m.err
	}
	m.acquired++
	return model.Token{Value: tokenValue(m.acquired)}, nil
}

func (m *mockTokens) Invalidate(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, value)
}

type pageCall struct {
	Token string
	Page  int
	Size  int
}

type mockPortal struct {
	mu        sync.Mutex
	debt      func(token string) ([]model.Bill, error)
	paid      func(token string, page, size int) ([]model.Bill, error)
	document  func(token string, bill model.Bill) ([]byte, error)
	debtCalls int
	paidCalls []pageCall
}

func (m *mockPortal) ListDebtBills(_ context.Context, token, _ string, _, _ int) ([]model.Bill, error) {
	m.mu.Lock()
	m.debtCalls++
	m.mu.Unlock()
	if m.debt == nil {
		return []model.Bill{}, nil
	}
	return m.debt(token)
}

func (m *mockPortal) ListPaidBills(_ context.Context, token, _ string, page, pageSize int) ([]model.Bill, error) {
	m.mu.Lock()
	m.paidCalls = append(m.paidCalls, pageCall{Token: token, Page: page, Size: pageSize})
	m.mu.Unlock()
	if m.paid == nil {
		return []model.Bill{}, nil
	}
	return m.paid(token, page, pageSize)
}

func (m *mockPortal) FetchBillDocument(_ context.Context, token string, bill model.Bill) ([]byte, error) {
	return m.document(token, bill)
}

type mockBridge struct {
	bills    []model.Bill
	err      error
	document []byte
	docErr   error
}

func (m *mockBridge) Ping(_ context.Context) error { return m.err }

func (m *mockBridge) ListBills(_ context.Context, _ string) ([]model.Bill, error) {
	return m.bills, m.err
}

func (m *mockBridge) FetchBillDocument(_ context.Context, _ model.Bill) ([]byte, error) {
	return m.document, m.docErr
}

type mockSource struct {
	content []byte
	err     error
	calls   int
}

func (m *mockSource) FetchDocument(_ context.Context, _ model.Bill) ([]byte, error) {
	m.calls++
	return m.content, m.err
}

type failingStore struct{ err error }

func (s failingStore) Save(_ context.Context, _ string, _ []byte) (string, error) {
	return "", s.err
}

type mockCatalog struct {
	records []model.DocumentRecord
	err     error
}

func (m *mockCatalog) Record(_ context.Context, rec model.DocumentRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func (m *mockCatalog) ListBySupply(_ context.Context, supplyID string) ([]model.DocumentRecord, error) {
	out := []model.DocumentRecord{}
	for _, r := range m.records {
		if r.SupplyID == supplyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListAll(_ context.Context) ([]model.DocumentRecord, error) {
	return m.records, nil
}

type mockOpener struct {
	available bool
	err       error
	opened    []string
}

func (m *mockOpener) Available() bool { return m.available }

func (m *mockOpener) Open(_ context.Context, path string) error {
	m.opened = append(m.opened, path)
	return m.err
}

type mockSharer struct {
	available bool
	availErr  error
	err       error
	shared    []string
}

func (m *mockSharer) Available(_ context.Context) (bool, error) { return m.available, m.availErr }

func (m *mockSharer) Share(_ context.Context, path, _ string) error {
	m.shared = append(m.shared, path)
	return m.err
}

type mockCredentialStore struct {
	values map[string]string
	err    error
	sets   int
}

func (m *mockCredentialStore) Set(_ context.Context, _, key, plaintext string) error {
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = plaintext
	m.sets++
	return nil
}

func (m *mockCredentialStore) Get(_ context.Context, _, key string) (string, error) {
	return m.values[key], m.err
}

func (m *mockCredentialStore) GetAll(_ context.Context, _ string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.values, nil
}

func (m *mockCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	return nil, m.err
}

func (m *mockCredentialStore) Delete(_ context.Context, _, key string) error {
	delete(m.values, key)
	return m.err
}

// brokenRenderer counts fetched documents but cannot render placeholders.
type brokenRenderer struct{ err error }

func (b brokenRenderer) PageCount(content []byte) (int, error) { return docformat.PageCount(content) }

func (b brokenRenderer) RenderText(_ []string) ([]byte, error) { return nil, b.err }

func renderPDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	pdf, err := docformat.TextPDF(lines)
	require.NoError(t, err)
	return pdf
}
