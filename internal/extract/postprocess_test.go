package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoice-extractor/internal/llm"
)

func TestConvertWeightToKg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"5 qtl", "500"},
		{"2 ton", "2000"},
		{"10 kg", "10"},
		{"25,000 kg", "25000"},
		{"12.5 qtl", "1250"},
		{"abc", "abc"},
		{"N/A", "N/A"},
		{"", ""},
		{"500 units", "500 units"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConvertWeightToKg(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	text := "TAX INVOICE\nM/s Shri Example Rice Mill\nFSSAI No: 12345678901234\n"
	rec := &llm.InvoiceFields{
		CompanyName:   "Shri Example Rice Mill",
		InvoiceNumber: "INV-123/A#",
		InvoiceDate:   "26-06-23",
		Products: []llm.ProductLine{
			{GoodsDescription: "RICE", HSNSACCode: "1006 30 90", Quantity: "500 BAGS", Rate: "4300", Amount: "1075000"},
		},
	}

	Normalize(rec, text)
	once := *rec
	onceProducts := append([]llm.ProductLine(nil), rec.Products...)

	Normalize(rec, text)
	assert.Equal(t, once.CompanyName, rec.CompanyName)
	assert.Equal(t, once.InvoiceNumber, rec.InvoiceNumber)
	assert.Equal(t, once.InvoiceDate, rec.InvoiceDate)
	assert.Equal(t, onceProducts, rec.Products)
}

func TestNormalizeFields(t *testing.T) {
	text := "M/s Shri Example Rice Mill\nFSSAI No: 12345678901234\n"
	rec := &llm.InvoiceFields{
		CompanyName:   "Shri Example Rice Mill",
		InvoiceNumber: "INV-123/A#",
		FSSAINumber:   "N/A",
		InvoiceDate:   "26-06-23",
		Products: []llm.ProductLine{
			{HSNSACCode: "1006-30-90", Quantity: "500 BAGS"},
			{HSNSACCode: "none", Quantity: "n/a"},
		},
	}

	Normalize(rec, text)

	assert.Equal(t, "INV123A", rec.InvoiceNumber)
	assert.Equal(t, "12345678901234", rec.FSSAINumber)
	assert.Equal(t, "26/06/2023", rec.InvoiceDate)
	assert.Equal(t, "10063090", rec.Products[0].HSNSACCode)
	assert.Equal(t, "500", rec.Products[0].Quantity)
	assert.Equal(t, "N/A", rec.Products[1].HSNSACCode)
}

func TestNormalizeSalvagesCompanyName(t *testing.T) {
	text := "TAX INVOICE\nM/s Shri Example Rice Mill\nGSTIN: 22AAAAA0000A1Z5\n"
	rec := &llm.InvoiceFields{CompanyName: "N/A"}

	Normalize(rec, text)

	assert.Contains(t, rec.CompanyName, "Example Rice Mill")
}

func TestNormalizeDateFormats(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"26/06/2023", "26/06/2023"},
		{"26-06-23", "26/06/2023"},
		{"01/05/27", "01/05/2027"},
		{"01/05/85", "01/05/1985"},
		{"5 June 2023", "5/06/2023"},
		{"21st June, 2023", "21/06/2023"},
		{"not a date", "not a date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDate(tt.in), "input %q", tt.in)
	}
}

func TestFinalizeProducts(t *testing.T) {
	rec := &llm.InvoiceFields{
		Products: []llm.ProductLine{
			{Quantity: "500", Weight: "25 qtl", Rate: "₹4,850.00/-", Amount: "387127/-"},
		},
	}

	FinalizeProducts(rec)

	p := rec.Products[0]
	assert.Equal(t, "25 qtl", p.OriginalWeight)
	assert.Equal(t, "2500", p.WeightInKg)
	assert.Equal(t, "₹4,850.00", p.Rate)
	assert.Equal(t, "387127", p.Amount)

	// Running again keeps the original weight, not the converted one.
	FinalizeProducts(rec)
	assert.Equal(t, "25 qtl", rec.Products[0].OriginalWeight)
	assert.Equal(t, "2500", rec.Products[0].WeightInKg)
}

func TestComputeConfidence(t *testing.T) {
	full := &llm.InvoiceFields{
		CompanyName:   "Example",
		InvoiceNumber: "123",
		FSSAINumber:   "12345678901",
		InvoiceDate:   "01/01/2024",
		Products:      []llm.ProductLine{{}, {}},
	}
	cs := ComputeConfidence(full)
	assert.Equal(t, 0.9, cs.CompanyName)
	assert.InDelta(t, 0.4, cs.Products, 1e-9)
	assert.InDelta(t, (0.9*4+0.4)/5, cs.Overall, 1e-9)

	missing := &llm.InvoiceFields{CompanyName: "N/A"}
	cs = ComputeConfidence(missing)
	assert.Equal(t, 0.0, cs.CompanyName)
	assert.Equal(t, 0.0, cs.Products)

	many := &llm.InvoiceFields{Products: make([]llm.ProductLine, 10)}
	cs = ComputeConfidence(many)
	assert.Equal(t, 0.9, cs.Products)
	require.LessOrEqual(t, cs.Overall, 1.0)
}
