package sedapal

import (
	"encoding/json"
	"fmt"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// zero is the portal's default for numeric fields the listing left empty.
var zero = json.Number("0")

// debtDocumentRequest is the recibo-pdf body for a pending bill. Field order
// matches what the portal's own client sends. Nil fields are omitted.
type debtDocumentRequest struct {
	NisRad      any  `json:"nis_rad"`
	SecNis      any  `json:"sec_nis,omitempty"`
	CodCli      any  `json:"cod_cli"`
	SecRec      any  `json:"sec_rec,omitempty"`
	FFact       any  `json:"f_fact,omitempty"`
	Mes         any  `json:"mes,omitempty"`
	NroFactura  any  `json:"nro_factura,omitempty"`
	Recibo      any  `json:"recibo,omitempty"`
	Select      bool `json:"select"`
	TipRec      any  `json:"tip_rec,omitempty"`
	TipoRecibo  any  `json:"tipo_recibo,omitempty"`
	Deuda       any  `json:"deuda,omitempty"`
	TotalFact   any  `json:"total_fact,omitempty"`
	Vencimiento any  `json:"vencimiento,omitempty"`
	Volumen     any  `json:"volumen,omitempty"`
	EstAct      any  `json:"est_act,omitempty"`
	ImpCta      any  `json:"imp_cta"`
}

// paidDocumentRequest is the recibo-pdf body for a paid bill, in the
// alphabetical order the portal uses for this shape.
type paidDocumentRequest struct {
	CodCli      any  `json:"cod_cli,omitempty"`
	Deuda       any  `json:"deuda"`
	EstAct      any  `json:"est_act,omitempty"`
	FFact       any  `json:"f_fact,omitempty"`
	ImpCta      any  `json:"imp_cta"`
	Mes         any  `json:"mes,omitempty"`
	NisRad      any  `json:"nis_rad"`
	NroFactura  any  `json:"nro_factura,omitempty"`
	Recibo      any  `json:"recibo,omitempty"`
	SecNis      any  `json:"sec_nis,omitempty"`
	SecRec      any  `json:"sec_rec,omitempty"`
	Select      bool `json:"select"`
	TipRec      any  `json:"tip_rec,omitempty"`
	TipoRecibo  any  `json:"tipo_recibo,omitempty"`
	TotalFact   any  `json:"total_fact,omitempty"`
	Vencimiento any  `json:"vencimiento,omitempty"`
	Volumen     any  `json:"volumen"`
}

// documentPayload builds the request shape selected by the bill's source page.
func documentPayload(bill model.Bill) (any, error) {
	if !bill.SourcePage.Valid() {
		return nil, fmt.Errorf("bill %s source %q: %w", bill.BillID, bill.SourcePage, model.ErrUnknownSource)
	}
	nis, err := billNisRad(bill)
	if err != nil {
		return nil, err
	}
	f := bill.Field
	mes := or(f("mes"), f("f_fact"))

	if bill.SourcePage == model.SourceDebt {
		return debtDocumentRequest{
			NisRad:      nis,
			SecNis:      f("sec_nis"),
			CodCli:      or(f("cod_cli"), zero),
			SecRec:      f("sec_rec"),
			FFact:       f("f_fact"),
			Mes:         mes,
			NroFactura:  f("nro_factura"),
			Recibo:      f("recibo"),
			TipRec:      f("tip_rec"),
			TipoRecibo:  f("tipo_recibo"),
			Deuda:       f("total_fact"),
			TotalFact:   f("total_fact"),
			Vencimiento: f("vencimiento"),
			Volumen:     f("volumen"),
			EstAct:      f("est_act"),
			ImpCta:      or(f("imp_cta"), zero),
		}, nil
	}
	return paidDocumentRequest{
		CodCli:      f("cod_cli"),
		Deuda:       or(f("total_fact"), zero),
		EstAct:      f("est_act"),
		FFact:       f("f_fact"),
		ImpCta:      or(f("imp_cta"), zero),
		Mes:         mes,
		NisRad:      nis,
		NroFactura:  f("nro_factura"),
		Recibo:      f("recibo"),
		SecNis:      f("sec_nis"),
		SecRec:      f("sec_rec"),
		TipRec:      f("tip_rec"),
		TipoRecibo:  f("tipo_recibo"),
		TotalFact:   f("total_fact"),
		Vencimiento: f("vencimiento"),
		Volumen:     or(f("volumen"), zero),
	}, nil
}

// billNisRad prefers the supply the bill was queried with.
func billNisRad(bill model.Bill) (json.Number, error) {
	if bill.SupplyID != "" {
		return nisRad(bill.SupplyID)
	}
	return nisRad(scalarString(bill.Field("nis_rad")))
}

// or returns v unless it is empty (nil, "", 0 or false), in which case def.
func or(v, def any) any {
	if isEmpty(v) {
		return def
	}
	return v
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case float64:
		return val == 0
	case int:
		return val == 0
	default:
		return false
	}
}
