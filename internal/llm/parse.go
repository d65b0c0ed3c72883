package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invoiceflow/invoice-extractor/internal/common"
)

// ParseResponse turns a raw model reply into InvoiceFields. The model is
// asked for bare JSON but frequently wraps it in a markdown fence, and
// sometimes returns a JSON array of product lines instead of the full
// object; both shapes are recovered here.
func ParseResponse(raw string) (*InvoiceFields, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, common.NewAppError(common.CodeLLMResponse, "empty model response", nil)
	}

	if strings.HasPrefix(cleaned, "[") {
		return parseListShaped(cleaned)
	}

	var fields InvoiceFields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, common.NewAppError(common.CodeLLMResponse, "model response is not valid JSON", err)
	}
	return &fields, nil
}

// StripFences removes a surrounding markdown code fence (```json ... ``` or
// bare ``` ... ```) and trims whitespace. Text without a fence passes
// through unchanged.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseListShaped reconstructs an InvoiceFields from a response shaped as a
// JSON array. Header fields are lifted from the first element that carries
// them; every element contributes a product line.
func parseListShaped(cleaned string) (*InvoiceFields, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, common.NewAppError(common.CodeLLMResponse, "model returned an unparseable JSON array", err)
	}
	if len(items) == 0 {
		return nil, common.NewAppError(common.CodeLLMResponse, "model returned an empty JSON array", nil)
	}

	fields := &InvoiceFields{}
	for _, item := range items {
		if fields.CompanyName == "" {
			fields.CompanyName = rawString(item, "company_name")
		}
		if fields.InvoiceNumber == "" {
			fields.InvoiceNumber = rawString(item, "invoice_number")
		}
		if fields.FSSAINumber == "" {
			fields.FSSAINumber = rawString(item, "fssai_number")
		}
		if fields.InvoiceDate == "" {
			fields.InvoiceDate = rawString(item, "invoice_date")
		}

		// An element may itself carry a products array, or be a product line.
		if nested, ok := item["products"]; ok {
			var lines []ProductLine
			if err := json.Unmarshal(nested, &lines); err == nil {
				fields.Products = append(fields.Products, lines...)
				continue
			}
		}
		line := ProductLine{
			GoodsDescription: rawString(item, "goods_description"),
			HSNSACCode:       rawString(item, "hsn_sac_code"),
			Quantity:         rawString(item, "quantity"),
			Weight:           rawString(item, "weight"),
			Rate:             rawString(item, "rate"),
			Amount:           rawString(item, "amount"),
		}
		if line != (ProductLine{}) {
			fields.Products = append(fields.Products, line)
		}
	}
	return fields, nil
}

// rawString decodes item[key] as a string, tolerating numeric JSON values.
func rawString(item map[string]json.RawMessage, key string) string {
	raw, ok := item[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Summarize renders a short single-line description of the parsed record for
// logging.
func Summarize(f *InvoiceFields) string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("company=%q invoice=%q products=%d", f.CompanyName, f.InvoiceNumber, len(f.Products))
}
