package extract

import (
	"encoding/json"
	"time"

	"github.com/invoiceflow/invoice-extractor/constants"
	"github.com/invoiceflow/invoice-extractor/internal/llm"
)

// DurationSeconds is a time.Duration that serializes as float seconds, the
// unit downstream consumers of a Result expect.
type DurationSeconds time.Duration

func (d DurationSeconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Seconds())
}

func (d *DurationSeconds) UnmarshalJSON(data []byte) error {
	var s float64
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = DurationSeconds(time.Duration(s * float64(time.Second)))
	return nil
}

func (d DurationSeconds) Duration() time.Duration { return time.Duration(d) }

// ConfidenceScores carries per-field extraction confidence plus the overall
// mean. Fields are scored by presence; products scale with line count.
type ConfidenceScores struct {
	CompanyName   float64 `json:"company_name"`
	InvoiceNumber float64 `json:"invoice_number"`
	FSSAINumber   float64 `json:"fssai_number"`
	InvoiceDate   float64 `json:"invoice_date"`
	Products      float64 `json:"products"`
	Overall       float64 `json:"overall"`
}

// Result is the terminal outcome for one document. It is always populated:
// failures carry the N/A field sentinels instead of omitting the record.
type Result struct {
	Success          bool              `json:"success"`
	Error            string            `json:"error,omitempty"`
	RateLimited      bool              `json:"rate_limited,omitempty"`
	PatternUsed      string            `json:"pattern_used,omitempty"`
	ConfidenceScores *ConfidenceScores `json:"confidence_scores,omitempty"`
	ProcessingTime   DurationSeconds   `json:"processing_time,omitempty"`

	llm.InvoiceFields
}

// FailedResult builds the uniform failure shape.
func FailedResult(errMsg string, rateLimited bool) Result {
	return Result{
		Success:     false,
		Error:       errMsg,
		RateLimited: rateLimited,
		InvoiceFields: llm.InvoiceFields{
			CompanyName:   constants.NA,
			InvoiceNumber: constants.NA,
			FSSAINumber:   constants.NA,
			InvoiceDate:   constants.NA,
			Products:      []llm.ProductLine{},
		},
	}
}

// ComputeConfidence scores a successful record. Each header field scores 0.9
// when present and 0.0 when absent; the products score grows with the number
// of extracted lines and caps at 0.9.
func ComputeConfidence(f *llm.InvoiceFields) *ConfidenceScores {
	present := func(v string) float64 {
		if v != "" && v != constants.NA {
			return 0.9
		}
		return 0.0
	}
	cs := &ConfidenceScores{
		CompanyName:   present(f.CompanyName),
		InvoiceNumber: present(f.InvoiceNumber),
		FSSAINumber:   present(f.FSSAINumber),
		InvoiceDate:   present(f.InvoiceDate),
	}
	if products := 0.2 * float64(len(f.Products)); products < 0.9 {
		cs.Products = products
	} else {
		cs.Products = 0.9
	}
	cs.Overall = (cs.CompanyName + cs.InvoiceNumber + cs.FSSAINumber + cs.InvoiceDate + cs.Products) / 5
	return cs
}
