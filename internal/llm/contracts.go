package llm

import (
	"context"
	"errors"
)

// ErrThrottled is the distinguished throttling condition a Generator reports
// when the upstream service enforces its call quota. The orchestrator backs
// off and records the document for a deferred retry.
var ErrThrottled = errors.New("service throttled")

// ProductLine is one extracted line item. Numeric fields are normalized
// strings (digits plus a single decimal separator) or the "N/A" sentinel.
type ProductLine struct {
	GoodsDescription string `json:"goods_description"`
	HSNSACCode       string `json:"hsn_sac_code"`
	Quantity         string `json:"quantity"`
	Weight           string `json:"weight"`
	OriginalWeight   string `json:"original_weight,omitempty"`
	WeightInKg       string `json:"weight_in_kg,omitempty"`
	Rate             string `json:"rate"`
	Amount           string `json:"amount"`
}

// InvoiceFields is the structured shape we want from the model.
type InvoiceFields struct {
	CompanyName   string        `json:"company_name"`
	InvoiceNumber string        `json:"invoice_number"`
	FSSAINumber   string        `json:"fssai_number"`
	InvoiceDate   string        `json:"invoice_date"`
	Products      []ProductLine `json:"products"`
}

// Generator is the capability interface for the external
// document-understanding service. Any provider honoring the contract
// (including throttling signalled via ErrThrottled) can be substituted.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
