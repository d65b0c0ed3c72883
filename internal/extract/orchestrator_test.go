package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoice-extractor/internal/layout"
	"github.com/invoiceflow/invoice-extractor/internal/llm"
	"github.com/invoiceflow/invoice-extractor/internal/ratelimit"
)

const validResponse = `{
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
}`

const incompleteResponse = `{
  "company_name": "",
  "invoice_number": "780",
  "invoice_date": "26/06/2023",
  "products": []
}`

// scriptedGenerator replays canned responses and records every prompt.
type scriptedGenerator struct {
	responses []string
	errs      []error
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	i := len(g.prompts) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return g.responses[len(g.responses)-1], nil
}

func newTestOrchestrator(t *testing.T, gen llm.Generator, opts Options) *Orchestrator {
	t.Helper()
	limiter := ratelimit.NewLimiter(1000, time.Millisecond, nil)
	o := NewOrchestrator(gen, limiter, opts, nil)
	o.sleep = func(time.Duration) {}
	return o
}

func TestRunSucceedsFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{validResponse}}
	o := newTestOrchestrator(t, gen, Options{})

	rec, err := o.Run(context.Background(), "invoice text", layout.GenericPattern(), "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "SHRI EXAMPLE RICE MILL", rec.CompanyName)
	assert.Equal(t, "780", rec.InvoiceNumber)
	require.Len(t, rec.Products, 1)
	assert.Len(t, gen.prompts, 1)
}

func TestRunParsesFencedResponse(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"```json\n" + validResponse + "\n```"}}
	o := newTestOrchestrator(t, gen, Options{})

	rec, err := o.Run(context.Background(), "invoice text", layout.GenericPattern(), "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "780", rec.InvoiceNumber)
	assert.Len(t, gen.prompts, 1)
}

func TestRunRefinesPromptAfterValidationFailure(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{incompleteResponse, validResponse}}
	o := newTestOrchestrator(t, gen, Options{})

	rec, err := o.Run(context.Background(), "invoice text", layout.GenericPattern(), "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "SHRI EXAMPLE RICE MILL", rec.CompanyName)
	require.Len(t, gen.prompts, 2)
	assert.NotContains(t, gen.prompts[0], "IMPORTANT CORRECTIONS NEEDED")
	assert.Contains(t, gen.prompts[1], "IMPORTANT CORRECTIONS NEEDED")
	assert.Contains(t, gen.prompts[1], "product table")
}

func TestRunReturnsImperfectRecordOnFinalAttempt(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{incompleteResponse, incompleteResponse}}
	o := newTestOrchestrator(t, gen, Options{MaxAttempts: 2})

	rec, err := o.Run(context.Background(), "invoice text", layout.GenericPattern(), "a.pdf")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "780", rec.InvoiceNumber)
	assert.Empty(t, rec.Products)
	assert.Len(t, gen.prompts, 2)
}

func TestRunThrottledRecordsDocument(t *testing.T) {
	gen := &scriptedGenerator{
		errs: []error{llm.ErrThrottled, llm.ErrThrottled, llm.ErrThrottled},
	}
	o := newTestOrchestrator(t, gen, Options{
		MaxAttempts:    3,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
		RetryDelay:     time.Microsecond,
	})

	rec, err := o.Run(context.Background(), "invoice text", layout.GenericPattern(), "a.pdf")

	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, o.Throttled("a.pdf"))
	assert.False(t, o.Throttled("b.pdf"))
	assert.Len(t, gen.prompts, 3)
}

func TestRunRetriesUnparseableResponse(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"not json at all", validResponse}}
	o := newTestOrchestrator(t, gen, Options{RetryDelay: time.Microsecond})

	rec, err := o.Run(context.Background(), "invoice text", layout.GenericPattern(), "a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "780", rec.InvoiceNumber)
	assert.Len(t, gen.prompts, 2)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{responses: []string{validResponse}}
	o := newTestOrchestrator(t, gen, Options{})

	rec, err := o.Run(ctx, "invoice text", layout.GenericPattern(), "a.pdf")

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rec)
	assert.Empty(t, gen.prompts)
}
