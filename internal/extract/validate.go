package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invoiceflow/invoice-extractor/constants"
	"github.com/invoiceflow/invoice-extractor/internal/llm"
)

var (
	msPrefix    = regexp.MustCompile(`^M/s\s+`)
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	anyDigit    = regexp.MustCompile(`\d`)
	requiredCol = []string{"quantity", "rate", "amount"}
)

// Validate checks a parsed record for completeness and plausibility. It
// returns human-readable error strings (consumed by prompt refinement) and
// normalizes two fields in place: the "M/s " honorific is stripped from the
// company name, and the invoice number is reduced to its alphanumeric core.
func Validate(rec *llm.InvoiceFields) []string {
	var errs []string

	if rec.CompanyName == "" {
		errs = append(errs, "Missing required field: company_name")
	}
	if rec.InvoiceNumber == "" {
		errs = append(errs, "Missing required field: invoice_number")
	}
	if rec.InvoiceDate == "" {
		errs = append(errs, "Missing required field: invoice_date")
	}

	rec.CompanyName = msPrefix.ReplaceAllString(rec.CompanyName, "")

	if rec.InvoiceNumber != "" && rec.InvoiceNumber != constants.NA {
		if !anyDigit.MatchString(rec.InvoiceNumber) {
			errs = append(errs, fmt.Sprintf("Invoice number %q doesn't contain any digits", rec.InvoiceNumber))
		}
		rec.InvoiceNumber = nonAlnum.ReplaceAllString(rec.InvoiceNumber, "")
	}

	if len(rec.Products) == 0 {
		errs = append(errs, "No products extracted")
	}
	for i, p := range rec.Products {
		for _, field := range requiredCol {
			v := productField(p, field)
			if v == constants.NA {
				errs = append(errs, fmt.Sprintf("Product %d has suspicious '%s' value: %s", i+1, field, v))
			}
		}
	}
	return errs
}

func productField(p llm.ProductLine, name string) string {
	switch name {
	case "quantity":
		return p.Quantity
	case "rate":
		return p.Rate
	case "amount":
		return p.Amount
	case "weight":
		return p.Weight
	default:
		return ""
	}
}

// joinErrors formats validation errors for logging.
func joinErrors(errs []string) string {
	return strings.Join(errs, "; ")
}
