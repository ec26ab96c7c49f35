package driven

import (
	"context"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// PortalClient defines the driven port for the utility portal's bill endpoints.
// Every call requires a token obtained through the login flow. Implementations
// return model.ErrTokenExpired when the portal rejects the token and wrap
// transport failures with model.ErrNetwork.
type PortalClient interface {
	// ListDebtBills returns one page of pending bills tagged PENDING/DEBT.
	ListDebtBills(ctx context.Context, token, supplyID string, page, pageSize int) ([]model.Bill, error)
	// ListPaidBills returns one page of paid bills tagged PAID/PAID.
	ListPaidBills(ctx context.Context, token, supplyID string, page, pageSize int) ([]model.Bill, error)
	// FetchBillDocument requests the PDF for bill using the payload shape its
	// SourcePage requires and returns the decoded PDF bytes.
	FetchBillDocument(ctx context.Context, token string, bill model.Bill) ([]byte, error)
}
