package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/invoice-extractor/internal/extract"
	"github.com/invoiceflow/invoice-extractor/internal/llm"
	"github.com/invoiceflow/invoice-extractor/internal/ratelimit"
)

const tableText = "TAX INVOICE\nShri Example Rice Mill\n" +
	"\n--- TABLE 1.1 ---\n" +
	"DESCRIPTION | HSN/SAC | BAG | PKG | QUANTITY | RATE | PER | AMOUNT\n" +
	"LOOSE RICE | 10063090 | 307 | 0.26 | 79.82 | 4850 | KGS | 387127\n"

const goodResponse = `{
  "company_name": "SHRI EXAMPLE RICE MILL",
  "invoice_number": "780",
  "fssai_number": "12345678901234",
  "invoice_date": "26/06/2023",
  "products": [
    {
      "goods_description": "LOOSE RICE",
      "hsn_sac_code": "10063090",
      "quantity": "79.82",
      "weight": "25 qtl",
      "rate": "4850",
      "amount": "387127"
    }
  ]
}`

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, string) (string, error) {
	return f.text, f.err
}

type countingGenerator struct {
	response string
	err      error
	calls    atomic.Int64
}

func (g *countingGenerator) Generate(context.Context, string) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newTestProcessor(t *testing.T, te TextExtractor, gen llm.Generator, opts extract.Options) *Processor {
	t.Helper()
	limiter := ratelimit.NewLimiter(1000, time.Millisecond, nil)
	orch := extract.NewOrchestrator(gen, limiter, opts, nil)
	return NewProcessor(nil, te, orch, limiter)
}

func TestProcessInvoiceHappyPath(t *testing.T) {
	gen := &countingGenerator{response: goodResponse}
	p := newTestProcessor(t, &fakeExtractor{text: tableText}, gen, extract.Options{})

	res := p.ProcessInvoice(context.Background(), "a.pdf")

	require.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, "SHRI EXAMPLE RICE MILL", res.CompanyName)
	assert.NotEmpty(t, res.PatternUsed)
	require.NotNil(t, res.ConfidenceScores)
	assert.Greater(t, res.ConfidenceScores.Overall, 0.5)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "25 qtl", res.Products[0].OriginalWeight)
	assert.Equal(t, "2500", res.Products[0].WeightInKg)
	assert.Equal(t, int64(1), gen.calls.Load())
	assert.Greater(t, res.ProcessingTime, extract.DurationSeconds(0))
}

func TestProcessInvoiceTextExtractionFailure(t *testing.T) {
	gen := &countingGenerator{response: goodResponse}
	p := newTestProcessor(t, &fakeExtractor{err: errors.New("unreadable")}, gen, extract.Options{})

	res := p.ProcessInvoice(context.Background(), "a.pdf")

	assert.False(t, res.Success)
	assert.Equal(t, "Could not extract text from PDF", res.Error)
	assert.Equal(t, "N/A", res.CompanyName)
	assert.Empty(t, res.Products)
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestProcessInvoiceEmptyTextFailure(t *testing.T) {
	p := newTestProcessor(t, &fakeExtractor{text: "   \n"}, &countingGenerator{response: goodResponse}, extract.Options{})

	res := p.ProcessInvoice(context.Background(), "a.pdf")

	assert.False(t, res.Success)
	assert.Equal(t, "Could not extract text from PDF", res.Error)
}

func TestProcessInvoiceRateLimited(t *testing.T) {
	gen := &countingGenerator{err: llm.ErrThrottled}
	p := newTestProcessor(t, &fakeExtractor{text: "plain unstructured invoice words"}, gen, extract.Options{
		MaxAttempts:    1,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     time.Microsecond,
		RetryDelay:     time.Microsecond,
	})

	res := p.ProcessInvoice(context.Background(), "a.pdf")

	assert.False(t, res.Success)
	assert.True(t, res.RateLimited)
	assert.Contains(t, res.Error, "rate limit")
	assert.Equal(t, []string{"a.pdf"}, p.ThrottledFiles())

	p.ResetThrottled()
	assert.Empty(t, p.ThrottledFiles())
}

func TestProcessInvoiceFallsBackToGenericPattern(t *testing.T) {
	gen := &countingGenerator{response: "not json"}
	p := newTestProcessor(t, &fakeExtractor{text: tableText}, gen, extract.Options{
		MaxAttempts: 2,
		RetryDelay:  time.Microsecond,
	})

	res := p.ProcessInvoice(context.Background(), "a.pdf")

	assert.False(t, res.Success)
	assert.False(t, res.RateLimited)
	assert.Contains(t, res.Error, "extraction returned no result")
	// Two attempts under the detected layout, then two more under generic.
	assert.Equal(t, int64(4), gen.calls.Load())
}

type mapCache struct {
	m    map[string]extract.Result
	hits int
}

func newMapCache() *mapCache { return &mapCache{m: map[string]extract.Result{}} }

func (c *mapCache) Get(key string) (extract.Result, bool) {
	res, ok := c.m[key]
	if ok {
		c.hits++
	}
	return res, ok
}

func (c *mapCache) Put(key string, res extract.Result) { c.m[key] = res }

func TestProcessInvoiceCachesSuccesses(t *testing.T) {
	gen := &countingGenerator{response: goodResponse}
	p := newTestProcessor(t, &fakeExtractor{text: tableText}, gen, extract.Options{})
	cache := newMapCache()
	p.UseCache(cache)

	first := p.ProcessInvoice(context.Background(), "a.pdf")
	second := p.ProcessInvoice(context.Background(), "a.pdf")

	require.True(t, first.Success)
	assert.Equal(t, int64(1), gen.calls.Load())
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.CompanyName, second.CompanyName)
}

func TestProcessInvoiceDoesNotCacheFailures(t *testing.T) {
	gen := &countingGenerator{response: goodResponse}
	p := newTestProcessor(t, &fakeExtractor{err: errors.New("unreadable")}, gen, extract.Options{})
	cache := newMapCache()
	p.UseCache(cache)

	p.ProcessInvoice(context.Background(), "a.pdf")
	p.ProcessInvoice(context.Background(), "a.pdf")

	assert.Empty(t, cache.m)
	assert.Equal(t, 0, cache.hits)
}

func TestLRUCacheRoundTrip(t *testing.T) {
	c := NewLRUCache(4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("k", extract.Result{Success: true})
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.True(t, got.Success)
}
