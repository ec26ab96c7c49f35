package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BillStatus is the payment state of a bill.
type BillStatus string

const (
	BillStatusPending BillStatus = "PENDING"
	BillStatusPaid    BillStatus = "PAID"
)

// SourcePage identifies which upstream listing produced a bill. It selects the
// document request shape used later, so every bill must carry one.
type SourcePage string

const (
	SourceDebt SourcePage = "DEBT"
	SourcePaid SourcePage = "PAID"
)

// Valid reports whether s is one of the two known origins.
func (s SourcePage) Valid() bool {
	return s == SourceDebt || s == SourcePaid
}

// RecentWindow is how far back a bill's issue date may be for it to be flagged recent.
const RecentWindow = 3

// Bill is one utility invoice as normalized from an upstream listing.
// Bills are immutable after parsing; Raw holds the vendor fields verbatim
// with numbers kept as json.Number.
type Bill struct {
	BillID       string
	SupplyID     string
	IssueDate    time.Time // Zero when the vendor date is missing or unparseable.
	IssueDateRaw string
	DueDate      time.Time
	DueDateRaw   string
	Amount       decimal.Decimal
	Status       BillStatus
	SourcePage   SourcePage
	Raw          map[string]any
}

// Field returns the verbatim vendor value for key, or nil when absent.
func (b Bill) Field(key string) any {
	if b.Raw == nil {
		return nil
	}
	return b.Raw[key]
}

// IsRecent reports whether the bill was issued within RecentWindow months of now.
func (b Bill) IsRecent(now time.Time) bool {
	if b.IssueDate.IsZero() {
		return false
	}
	months := (now.Year()-b.IssueDate.Year())*12 + int(now.Month()) - int(b.IssueDate.Month())
	return months >= 0 && months <= RecentWindow
}

// RawJSON returns the vendor fields as a JSON object.
func (b Bill) RawJSON() json.RawMessage {
	if b.Raw == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(b.Raw)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
