package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckShapeValidRecord(t *testing.T) {
	fields := &InvoiceFields{
		CompanyName:   "MILL",
		InvoiceNumber: "780",
		InvoiceDate:   "26/06/2023",
		Products: []ProductLine{
			{GoodsDescription: "RICE", Quantity: "500", Rate: "4300", Amount: "1075000"},
		},
	}
	assert.NoError(t, CheckShape(fields))
}

func TestCheckShapeEmptyProductsList(t *testing.T) {
	fields := &InvoiceFields{CompanyName: "MILL", Products: []ProductLine{}}
	assert.NoError(t, CheckShape(fields))
}

func TestCheckShapeNilProducts(t *testing.T) {
	// A nil slice marshals to null, which is not the required array.
	fields := &InvoiceFields{CompanyName: "MILL"}
	err := CheckShape(fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}
