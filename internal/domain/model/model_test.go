package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

func TestNewToken_FixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tok := model.NewToken("opaque-token-value", now, time.Hour)

	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)
	assert.True(t, tok.ValidAt(now.Add(59*time.Minute)))
	assert.False(t, tok.ValidAt(now.Add(time.Hour)))
}

func TestNewToken_EarlierJWTExpiryWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(20 * time.Minute)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user@example.com",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tok := model.NewToken(signed, now, time.Hour)

	assert.Equal(t, exp.Unix(), tok.ExpiresAt.Unix())
}

func TestNewToken_LaterJWTExpiryIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": now.Add(24 * time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tok := model.NewToken(signed, now, time.Hour)

	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)
}

func TestToken_EmptyIsInvalid(t *testing.T) {
	assert.False(t, model.Token{}.ValidAt(time.Now()))
}

func TestLoginError_UnwrapsToSentinel(t *testing.T) {
	tests := []struct {
		kind model.LoginErrorKind
		want error
	}{
		{model.LoginKindTimeout, model.ErrLoginTimeout},
		{model.LoginKindFieldsNotFound, model.ErrLoginFieldsNotFound},
		{model.LoginKindTokenNotFound, model.ErrTokenNotFound},
		{model.LoginKindScript, model.ErrLoginScript},
		{model.LoginKindNetwork, model.ErrNetwork},
		{model.LoginKindCredentials, model.ErrNoCredentials},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("acquire: %w", model.LoginFailed{Kind: tt.kind, Detail: "detail"}.Err())
			assert.True(t, errors.Is(err, tt.want))

			var loginErr *model.LoginError
			require.True(t, errors.As(err, &loginErr))
			assert.Equal(t, tt.kind, loginErr.Kind)
			assert.Contains(t, err.Error(), "detail")
		})
	}
}

func TestBill_IsRecent(t *testing.T) {
	now := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	assert.True(t, model.Bill{IssueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}.IsRecent(now))
	assert.False(t, model.Bill{IssueDate: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)}.IsRecent(now))
	assert.False(t, model.Bill{}.IsRecent(now))
	assert.False(t, model.Bill{IssueDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}.IsRecent(now), "future issue date")
}

func TestSourcePage_Valid(t *testing.T) {
	assert.True(t, model.SourceDebt.Valid())
	assert.True(t, model.SourcePaid.Valid())
	assert.False(t, model.SourcePage("").Valid())
	assert.False(t, model.SourcePage("OTHER").Valid())
}

func TestDocumentFilename(t *testing.T) {
	bill := model.Bill{BillID: "2061720015", IssueDateRaw: "2024-12-15"}
	assert.Equal(t, "Recibo_2061720015_2024-12-15.pdf", model.DocumentFilename("Recibo", bill))

	odd := model.Bill{BillID: "12/34", IssueDateRaw: ""}
	assert.Equal(t, "Recibo_12-34_sin-fecha.pdf", model.DocumentFilename("Recibo", odd))
}
