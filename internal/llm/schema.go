package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// invoiceSchema is the structural contract for a model response. It is
// deliberately lenient: every field is a string (numbers arrive as strings
// after normalization anyway) and only the overall shape is required, since
// content-level checks belong to the validation pass.
var invoiceSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"company_name":   map[string]any{"type": "string"},
		"invoice_number": map[string]any{"type": "string"},
		"fssai_number":   map[string]any{"type": "string"},
		"invoice_date":   map[string]any{"type": "string"},
		"products": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"goods_description": map[string]any{"type": "string"},
					"hsn_sac_code":      map[string]any{"type": "string"},
					"quantity":          map[string]any{"type": "string"},
					"weight":            map[string]any{"type": "string"},
					"rate":              map[string]any{"type": "string"},
					"amount":            map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []any{"products"},
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(invoiceSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("invoice.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("invoice.json")
	})
	return compiledSchema, compileErr
}

// CheckShape validates a parsed record's structural shape. A failure here
// means the model ignored the output contract entirely, not that a field
// value is wrong.
func CheckShape(fields *InvoiceFields) error {
	schema, err := compiled()
	if err != nil {
		return err
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("record does not match schema: %w", err)
	}
	return nil
}
