package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/invoiceflow/invoice-extractor/constants"
	"github.com/invoiceflow/invoice-extractor/internal/llm"
)

var (
	companyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`M/S\s+((?:[A-Z][A-Za-z]*\s*)+(?:RICE MILL|AGRO|INDUSTRIES|PVT\.? LTD\.?|LIMITED))`),
		regexp.MustCompile(`\b((?:[A-Z][A-Za-z]*\s*)+(?:RICE MILL|AGRO|INDUSTRIES|PVT\.? LTD\.?|LIMITED))\b`),
		regexp.MustCompile(`(?:COMPANY|SELLER|FROM):\s*((?:[A-Z][A-Za-z]*\s*)+)`),
	}

	fssaiPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)FSSAI\s*(?:No\.?|Number\.?|#)?\s*:?\s*(\d{10,14})`),
		regexp.MustCompile(`(?i)(?:FSSAI|Food License)\s*:?\s*(\d{10,14})`),
	}

	nonDigit      = regexp.MustCompile(`[^0-9]`)
	nonDecimal    = regexp.MustCompile(`[^0-9.]`)
	nonMonetary   = regexp.MustCompile(`[^0-9.,₹$]`)
	dateNoise     = regexp.MustCompile(`[^0-9\-/.\\]`)
	dayFirstDate  = regexp.MustCompile(`(\d{1,2})[-/\\.](\d{1,2})[-/\\.](\d{2,4})`)
	yearFirstDate = regexp.MustCompile(`(\d{2,4})[-/\\.](\d{1,2})[-/\\.](\d{1,2})`)
	writtenDate   = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)[,\s]+(\d{2,4})`)
	weightValue   = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)
)

var monthNumbers = map[string]string{
	"january": "01", "february": "02", "march": "03", "april": "04",
	"may": "05", "june": "06", "july": "07", "august": "08",
	"september": "09", "october": "10", "november": "11", "december": "12",
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// Normalize repairs a parsed record against the source text: company name
// salvage, invoice number cleanup, FSSAI recovery, date standardization, and
// per-product code/quantity sanitization. Idempotent; running it twice
// yields the same record.
func Normalize(rec *llm.InvoiceFields, text string) {
	salvageCompanyName(rec, text)

	if rec.InvoiceNumber != "" {
		rec.InvoiceNumber = nonAlnum.ReplaceAllString(rec.InvoiceNumber, "")
	}

	if rec.FSSAINumber == "" || rec.FSSAINumber == constants.NA {
		for _, p := range fssaiPatterns {
			if m := p.FindStringSubmatch(text); m != nil {
				rec.FSSAINumber = m[1]
				break
			}
		}
	}

	if rec.InvoiceDate != "" {
		rec.InvoiceDate = normalizeDate(rec.InvoiceDate)
	}

	for i := range rec.Products {
		p := &rec.Products[i]
		if p.HSNSACCode != "" {
			if hsn := nonDigit.ReplaceAllString(p.HSNSACCode, ""); hsn != "" {
				p.HSNSACCode = hsn
			} else {
				p.HSNSACCode = constants.NA
			}
		}
		if p.Quantity != "" && p.Quantity != constants.NA {
			if qty := nonDecimal.ReplaceAllString(p.Quantity, ""); qty != "" {
				p.Quantity = qty
			} else {
				p.Quantity = constants.NA
			}
		}
	}
}

// FinalizeProducts prepares product lines for output: the stated weight is
// preserved verbatim, a kg-converted value is added alongside, and the
// numeric fields are stripped to digits, separators, and currency symbols.
func FinalizeProducts(rec *llm.InvoiceFields) {
	for i := range rec.Products {
		p := &rec.Products[i]
		if p.Weight != "" {
			if p.OriginalWeight == "" {
				p.OriginalWeight = p.Weight
			}
			p.WeightInKg = ConvertWeightToKg(p.OriginalWeight)
		}
		for _, f := range []*string{&p.Quantity, &p.Rate, &p.Amount} {
			if *f != "" && *f != constants.NA {
				*f = nonMonetary.ReplaceAllString(*f, "")
			}
		}
	}
}

// ConvertWeightToKg converts a "value unit" weight string to kilograms.
// Quintals multiply by 100, tons by 1000, kg passes through; an
// unrecognized unit or shape returns the input unchanged.
func ConvertWeightToKg(weight string) string {
	if weight == constants.NA || weight == "" {
		return weight
	}
	cleaned := strings.ReplaceAll(weight, ",", "")
	m := weightValue.FindStringSubmatch(strings.TrimSpace(cleaned))
	if m == nil {
		return weight
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return weight
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.Contains(unit, "qtl"):
		value *= 100
	case strings.Contains(unit, "ton"):
		value *= 1000
	case strings.Contains(unit, "kg"):
		// already kilograms
	default:
		return weight
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// salvageCompanyName scans the document head for a seller name when the
// model returned nothing usable. The longest candidate wins, since partial
// matches tend to drop the entity suffix.
func salvageCompanyName(rec *llm.InvoiceFields, text string) {
	name := strings.TrimSpace(rec.CompanyName)
	if name != "" && name != constants.NA && name != "NULL" && name != "RICE MILL" {
		return
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}

	best := ""
	for _, line := range lines {
		upper := strings.ToUpper(line)
		for _, p := range companyPatterns {
			for _, idx := range p.FindAllStringSubmatchIndex(upper, -1) {
				// Uppercasing ASCII preserves offsets, so the match indices
				// slice straight into the original line.
				candidate := strings.TrimSpace(line[idx[2]:idx[3]])
				if len(candidate) > len(best) {
					best = candidate
				}
			}
		}
	}
	if best != "" {
		rec.CompanyName = best
	}
}

// normalizeDate rewrites assorted date shapes as DD/MM/YYYY. Two-digit years
// below 30 map to the 2000s, the rest to the 1900s. Unrecognized input
// passes through unchanged.
func normalizeDate(raw string) string {
	// Month-name dates must be matched before the numeric cleanup strips the
	// letters out.
	if m := writtenDate.FindStringSubmatch(raw); m != nil {
		month, ok := monthNumbers[strings.ToLower(m[2])]
		if !ok {
			month = "01"
		}
		return m[1] + "/" + month + "/" + expandYear(m[3])
	}

	cleaned := strings.TrimSpace(dateNoise.ReplaceAllString(raw, " "))

	if m := dayFirstDate.FindStringSubmatch(cleaned); m != nil {
		return m[1] + "/" + m[2] + "/" + expandYear(m[3])
	}
	if m := yearFirstDate.FindStringSubmatch(cleaned); m != nil {
		if len(m[1]) == 4 {
			return m[3] + "/" + m[2] + "/" + m[1]
		}
	}
	return raw
}

func expandYear(y string) string {
	if len(y) != 2 {
		return y
	}
	n, err := strconv.Atoi(y)
	if err != nil {
		return y
	}
	if n < 30 {
		return strconv.Itoa(2000 + n)
	}
	return strconv.Itoa(1900 + n)
}
