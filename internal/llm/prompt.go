package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// basePrompt covers the ten required fields and the column interpretation
// rules that apply to every layout.
const basePrompt = `
You are an expert in extracting structured data from invoices. Extract these details accurately:

1. **Goods Description**: The exact product name/description as written in the invoice.
2. **HSN/SAC Code**: The HSN or SAC numerical code.
3. **Quantity**: The numerical count of items/bags/pieces. This is often labeled as "BAGS" or "QTY".
4. **Weight**: The total weight with unit (kg, qtl, tons) - NOT the weight per unit.
5. **Rate**: The rate per unit of weight (often per kg/quintal). Look for a monetary value.
6. **Amount**: The total amount for this product. This is not the invoice total.
7. **Company Name**: The name of the SELLER (not buyer) issuing the invoice.
8. **Invoice Number**: Only the number, without "Invoice No." prefix.
9. **FSSAI Number**: The seller's FSSAI license number if available.
10. **Date of Invoice**: The invoice date.

**CRITICALLY IMPORTANT FOR COLUMN INTERPRETATION**:
- "BAGS" or similar columns ALWAYS represent the quantity (number of bags/units)
- "NET (Kg)" or similar columns represent the total weight, not quantity
- "NET (Kg) PER BAG" represents weight per individual bag, not the quantity
- "Rate" is usually price per weight unit (per kg/quintal) not price per bag

If a column is labeled "NET (Kg) PER BAG" or similar, this is NOT the quantity - it's the weight of each individual bag.
If a different column shows the count of bags (often labeled "BAGS"), that is the quantity.
`

const exampleJSON = `
{
  "company_name": "SHRI EXAMPLE RICE MILL",
  "invoice_number": "780",
  "fssai_number": "12345678901234",
  "invoice_date": "26/06/2023",
  "products": [
    {
      "goods_description": "STEAM KOLAM RICE",
      "hsn_sac_code": "10063090",
      "quantity": "500",
      "weight": "25000 kg",
      "rate": "4300",
      "amount": "1075000"
    }
  ]
}
`

// promptRule pairs a text predicate with a layout-specific disambiguation
// block. Rules are evaluated in order; the first match wins, and the
// classifier's pattern family breaks the tie when no predicate fires (OCR
// noise can mangle the exact header strings the predicates look for). New
// layouts are supported by appending a rule, not by editing control flow.
type promptRule struct {
	name     string
	families []string
	match    func(text string) bool
	block    string
}

var promptRules = []promptRule{
	{
		name:     "bag-count-vs-weight-per-bag",
		families: []string{"pattern_a", "pattern_c"},
		match: func(text string) bool {
			return strings.Contains(text, "NET (Kg) PER BAG") ||
				strings.Contains(text, "NET (KG)") ||
				strings.Contains(text, "PER BAG") ||
				(strings.Contains(text, "BAGS") && strings.Contains(text, "NET") && strings.Contains(text, "RATE"))
		},
		block: `
**SPECIAL COLUMN HANDLING REQUIRED IN THIS INVOICE**:

This invoice has a specific table structure that MUST be interpreted as follows:

1. "BAGS" column = QUANTITY (count of bags)
   - This is always a whole number like 200, 300, 500 bags
   - Goes into the "quantity" field

2. "NET (Kg) PER BAG" or similar = WEIGHT PER UNIT
   - This is the weight of ONE bag (like 25kg, 50kg)
   - NOT a quantity - DO NOT use this for the quantity field
   - DO NOT use this as the total weight either

3. "NET" column = TOTAL WEIGHT
   - This is the total weight (BAGS x weight per bag)
   - This goes into the "weight" field (with kg unit)

4. "Rate" column = PRICE PER WEIGHT UNIT
   - Usually price per 100kg or per quintal
   - This goes into the "rate" field

Example row with CORRECT interpretation:
| Description | HSN | BAGS | NET (Kg) PER BAG | NET | Rate | Amount |
| STEAM RICE  | 123 | 200  | 25               | 5000| 2000 | 100000 |

You MUST extract quantity "200" (from BAGS), weight "5000 kg" (from NET),
rate "2000" and amount "100000". DO NOT use "NET (Kg) PER BAG" as the
quantity under any circumstances.
`,
	},
	{
		name:     "bag-pkg-metric-ton-quantity",
		families: []string{"pattern_d"},
		match: func(text string) bool {
			return strings.Contains(text, "BAG") && strings.Contains(text, "PKG") &&
				strings.Contains(text, "QUANTITY") && strings.Contains(text, "PER")
		},
		block: `
**SPECIAL COLUMN HANDLING REQUIRED FOR THIS INVOICE FORMAT**:

This invoice has a multi-column structure that MUST be interpreted correctly:

1. "BAG" column = Number of bags (a packaging count)
   - This is NOT the primary quantity for extraction

2. "PKG" column = Package information (usually a code)
   - This is NOT used for quantity calculation

3. "QUANTITY" column = The actual TOTAL QUANTITY in metric tons (MT) or similar unit
   - This is the MAIN quantity to extract
   - This is a decimal value (like 0.26, 80.08, etc.)

4. "RATE" column = Price per unit
   - The "PER" column specifies the unit (usually KGS)

Example row with CORRECT interpretation:
| Description | HSN/SAC | Batch | Bag | Pkg | Quantity | Rate | Per | Amount |
| Loose Rice  | 1006309 | 511   | 307 | 0.26| 79.82    | 4850 | KGS | 387127 |

You MUST extract quantity "79.82 MT" (from QUANTITY), rate "4850" and amount
"387127". If the QUANTITY column has a small decimal value (like 0.26), it is
likely in Metric Tons (MT) and should be interpreted as such.
`,
	},
}

// BuildPrompt assembles the full extraction instruction set for one attempt:
// base field rules, at most one layout-specific block selected by the rule
// table (text predicates first, the classified pattern family as fallback),
// column-type hints from numeric range analysis, a worked example, and the
// (possibly truncated) source text.
func BuildPrompt(patternKey, text string, maxChars int) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if block := selectRuleBlock(patternKey, text); block != "" {
		b.WriteString(block)
	}

	if hints := columnHints(text); hints != "" {
		b.WriteString("\n**DETECTED COLUMN STRUCTURE**:\n")
		b.WriteString(hints)
	}

	b.WriteString("\n\nHere's an example of the expected JSON output:\n")
	b.WriteString(exampleJSON)
	b.WriteString("\n\nNow extract from this invoice text:\n")
	b.WriteString(truncateTail(text, maxChars))
	return b.String()
}

// selectRuleBlock picks at most one disambiguation block: the first rule
// whose text predicate matches, else the first rule claiming the classified
// pattern family.
func selectRuleBlock(patternKey, text string) string {
	for _, r := range promptRules {
		if r.match(text) {
			return r.block
		}
	}
	family, _, _ := strings.Cut(patternKey, ":")
	for _, r := range promptRules {
		for _, f := range r.families {
			if f == family {
				return r.block
			}
		}
	}
	return ""
}

// RefinePrompt appends targeted corrective instructions derived from the
// validation errors of the previous attempt.
func RefinePrompt(prompt string, errs []string) string {
	refinements := []string{"\n\n**IMPORTANT CORRECTIONS NEEDED:**"}
	for _, e := range errs {
		switch {
		case strings.Contains(e, "company_name"):
			refinements = append(refinements, "- The company name should be the SELLER (the entity issuing the invoice), not the buyer.")
		case strings.Contains(e, "Invoice number"):
			refinements = append(refinements, "- Extract ONLY the number part after 'Invoice No.' - do not include the prefix.")
		case strings.Contains(e, "No products extracted"):
			refinements = append(refinements, "- Look carefully for the product table. It usually contains columns for description, quantity, rate, and amount.")
		case strings.Contains(e, "suspicious") && strings.Contains(e, "quantity"):
			refinements = append(refinements, "- Look for numerical quantity values, often in a column labeled 'BAGS' or 'QTY'.")
		case strings.Contains(e, "suspicious") && strings.Contains(e, "rate"):
			refinements = append(refinements, "- The rate should be a monetary value, often in a column labeled 'RATE' or 'Price'.")
		case strings.Contains(e, "suspicious") && strings.Contains(e, "amount"):
			refinements = append(refinements, "- The amount should be the total cost for each product, often in a column labeled 'AMOUNT' or 'Total'.")
		}
	}
	refinements = append(refinements,
		"- Ensure all extracted values match exactly what's in the invoice.",
		"- Pay special attention to the table structure for product details.")
	return prompt + "\n" + strings.Join(refinements, "\n")
}

var reNumber = regexp.MustCompile(`\d+(\.\d+)?`)

// columnHints runs a lightweight numeric-range analysis over pipe-delimited
// table rows and suggests a type for each column based on its header keyword
// and observed magnitudes.
func columnHints(text string) string {
	type colRange struct {
		min, max float64
		seen     bool
	}

	var headers []string
	ranges := map[int]*colRange{}
	inTable := false
	for _, line := range strings.Split(text, "\n") {
		cells := strings.Split(line, "|")
		if len(cells) <= 3 {
			continue
		}
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if !inTable {
			inTable = true
			headers = cells
			continue
		}
		for i, cell := range cells {
			if i >= len(headers) {
				break
			}
			m := reNumber.FindString(cell)
			if m == "" {
				continue
			}
			v, err := strconv.ParseFloat(m, 64)
			if err != nil {
				continue
			}
			r, ok := ranges[i]
			if !ok {
				r = &colRange{min: v, max: v, seen: true}
				ranges[i] = r
				continue
			}
			if v < r.min {
				r.min = v
			}
			if v > r.max {
				r.max = v
			}
		}
	}
	if len(headers) == 0 || len(ranges) == 0 {
		return ""
	}

	var b strings.Builder
	quoted := make([]string, 0, len(headers))
	for _, h := range headers {
		if h != "" {
			quoted = append(quoted, `"`+h+`"`)
		}
	}
	b.WriteString("Found columns: " + strings.Join(quoted, ", ") + "\n\n")
	b.WriteString("Column type suggestions based on patterns:\n")
	for i, h := range headers {
		r, ok := ranges[i]
		if !ok || !r.seen {
			continue
		}
		upper := strings.ToUpper(h)
		colType := ""
		switch {
		case strings.Contains(upper, "BAG") || strings.Contains(upper, "QTY") ||
			strings.Contains(upper, "QUANTITY") || strings.Contains(upper, "PCS"):
			colType = "QUANTITY (count of items/bags)"
		case strings.Contains(upper, "PER") && (strings.Contains(upper, "KG") ||
			strings.Contains(upper, "WEIGHT") || strings.Contains(upper, "NET")):
			colType = "WEIGHT PER UNIT"
		case strings.Contains(upper, "WEIGHT") || strings.Contains(upper, "NET") ||
			strings.Contains(upper, "KG"):
			colType = "TOTAL WEIGHT"
		case strings.Contains(upper, "RATE") || strings.Contains(upper, "PRICE"):
			colType = "RATE (price per unit)"
		case strings.Contains(upper, "AMOUNT") || strings.Contains(upper, "TOTAL") ||
			strings.Contains(upper, "VALUE"):
			colType = "AMOUNT (total price)"
		}
		fmt.Fprintf(&b, "Column '%s': %s - Value range: %g to %g\n", h, colType, r.min, r.max)
	}
	return b.String()
}

// truncateTail caps the source text to protect the service's input budget.
// The head of the document is always preserved (invoice metadata lives
// there); the cut is marked with an ellipsis.
func truncateTail(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "\n…(truncated)"
}
