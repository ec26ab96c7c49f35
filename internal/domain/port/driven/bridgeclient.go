package driven

import (
	"context"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// BridgeClient defines the driven port for a remote bridge backend that already
// aggregates bills. Both response generations it may speak are normalized
// into model.Bill by the adapter.
type BridgeClient interface {
	Ping(ctx context.Context) error
	ListBills(ctx context.Context, supplyID string) ([]model.Bill, error)
	FetchBillDocument(ctx context.Context, bill model.Bill) ([]byte, error)
}
