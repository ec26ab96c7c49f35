package sedapal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// dateLayouts are the date shapes the portal has been seen to emit.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
}

var portalLocation = time.FixedZone("PET", -5*60*60)

// nisRad converts a supply identifier into the integer the portal expects.
func nisRad(supplyID string) (json.Number, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(supplyID), 10, 64)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%q: %w", supplyID, model.ErrInvalidSupplyID)
	}
	return json.Number(strconv.FormatInt(n, 10)), nil
}

// BillFromItem maps a vendor listing item, as the portal or a bridge returns
// it, to a Bill for supplyID.
func BillFromItem(item map[string]any, supplyID string, status model.BillStatus, source model.SourcePage) (model.Bill, error) {
	nis, err := nisRad(supplyID)
	if err != nil {
		return model.Bill{}, err
	}
	return parseBill(item, supplyID, nis, status, source), nil
}

// parseBill maps one vendor item to a Bill. The item's nis_rad is replaced with
// the queried supply so document requests always carry the caller's value.
func parseBill(item map[string]any, supplyID string, nis json.Number, status model.BillStatus, source model.SourcePage) model.Bill {
	raw := make(map[string]any, len(item))
	for k, v := range item {
		raw[k] = v
	}
	raw["nis_rad"] = nis

	issueRaw := scalarString(raw["f_fact"])
	if issueRaw == "" {
		issueRaw = scalarString(raw["mes"])
	}
	dueRaw := scalarString(raw["vencimiento"])

	return model.Bill{
		BillID:       scalarString(raw["recibo"]),
		SupplyID:     supplyID,
		IssueDate:    parseDate(issueRaw),
		IssueDateRaw: issueRaw,
		DueDate:      parseDate(dueRaw),
		DueDateRaw:   dueRaw,
		Amount:       parseAmount(raw["total_fact"]),
		Status:       status,
		SourcePage:   source,
		Raw:          raw,
	}
}

// parseDate returns the zero time when s matches no known layout.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		candidate := s
		if len(candidate) > len(layout) {
			candidate = candidate[:len(layout)]
		}
		if t, err := time.ParseInLocation(layout, candidate, portalLocation); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseAmount(v any) decimal.Decimal {
	s := scalarString(v)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// scalarString renders a decoded JSON scalar as text; objects and arrays are empty.
func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
