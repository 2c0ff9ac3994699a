package lookup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/shopscan/internal/cart"
	"github.com/vbonduro/shopscan/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCatalog struct {
	items   map[string]*domain.Item
	err     error
	block   bool
	mu      sync.Mutex
	queries []string
}

func (c *stubCatalog) FindByCode(ctx context.Context, code string) (*domain.Item, error) {
	c.mu.Lock()
	c.queries = append(c.queries, code)
	c.mu.Unlock()
	if c.block {
		select {}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.items[code], nil
}

type slowCatalog struct{}

func (slowCatalog) FindByCode(ctx context.Context, _ string) (*domain.Item, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubConfirmer struct {
	accept      bool
	confirmErr  error
	qty         int
	qtyErr      error
	confirmHits int
	qtyHits     int
	waitCtx     bool
}

func (c *stubConfirmer) ConfirmFound(ctx context.Context, _ *domain.Item) (bool, error) {
	c.confirmHits++
	if c.waitCtx {
		<-ctx.Done()
		return false, domain.ErrCancelled
	}
	return c.accept, c.confirmErr
}

func (c *stubConfirmer) PromptQuantity(context.Context, *domain.Item) (int, error) {
	c.qtyHits++
	return c.qty, c.qtyErr
}

type recordingNotifier struct {
	outcomes []Outcome
}

func (n *recordingNotifier) Notify(_ context.Context, out Outcome) {
	n.outcomes = append(n.outcomes, out)
}

func soap() *domain.Item {
	return &domain.Item{ID: "soap-id", ShopID: "shop", Code: "SOAP1", Name: "Soap", Cost: decimal.RequireFromString("45.50")}
}

type fixture struct {
	catalog   *stubCatalog
	confirmer *stubConfirmer
	notifier  *recordingNotifier
	cart      *cart.Cart
	pipeline  *Pipeline
	resumes   atomic.Int32
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		catalog:   &stubCatalog{items: map[string]*domain.Item{"SOAP1": soap()}},
		confirmer: &stubConfirmer{accept: true, qty: 3},
		notifier:  &recordingNotifier{},
		cart:      cart.New(),
	}
	f.pipeline = NewPipeline(f.catalog, f.confirmer, f.notifier, f.cart, cfg, discardLogger())
	return f
}

func (f *fixture) handle(ctx context.Context, payload string) Outcome {
	return f.pipeline.Handle(ctx, payload, func() { f.resumes.Add(1) })
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  abc-123  ", "ABC-123"},
		{"ABC-123", "ABC-123"},
		{"\tsoap1\n", "SOAP1"},
		{"   ", ""},
		{"mIxEd", "MIXED"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestSoapScenario(t *testing.T) {
	f := newFixture(Config{})

	out := f.handle(context.Background(), "  soap1 ")

	assert.Equal(t, Added, out.Kind)
	assert.Equal(t, "SOAP1", out.Code)
	assert.Equal(t, 3, out.Quantity)
	assert.Equal(t, []string{"SOAP1"}, f.catalog.queries)

	entries := f.cart.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Soap", entries[0].Name)
	assert.Equal(t, 3, entries[0].Quantity)
	assert.Equal(t, "136.50", f.cart.View().Total)

	assert.Equal(t, int32(1), f.resumes.Load())
	require.Len(t, f.notifier.outcomes, 1)
	assert.Equal(t, Added, f.notifier.outcomes[0].Kind)
}

func TestSameItemTwiceMerges(t *testing.T) {
	f := newFixture(Config{})

	f.handle(context.Background(), "SOAP1")
	f.confirmer.qty = 2
	f.handle(context.Background(), "soap1")

	entries := f.cart.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Quantity)
	assert.Equal(t, int32(2), f.resumes.Load())
}

func TestUnknownCode(t *testing.T) {
	f := newFixture(Config{})

	out := f.handle(context.Background(), "zzz")

	assert.Equal(t, NotFound, out.Kind)
	assert.Equal(t, "Item not found for code: ZZZ", out.Message)
	assert.Zero(t, f.confirmer.confirmHits)
	assert.Zero(t, f.cart.Len())
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestEmptyPayloadSkipsCatalog(t *testing.T) {
	f := newFixture(Config{})

	out := f.handle(context.Background(), "   ")

	assert.Equal(t, Invalid, out.Kind)
	assert.Empty(t, f.catalog.queries)
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestCatalogFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"permission", domain.ErrPermissionDenied, "Permission denied. Please check your access rights."},
		{"network", domain.ErrUnavailable, "Network error. Please check your connection and try again."},
		{"unknown", &domain.UnknownError{Message: "disk on fire"}, "Error looking up item: disk on fire"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{})
			f.catalog.err = tt.err

			out := f.handle(context.Background(), "SOAP1")

			assert.Equal(t, Failed, out.Kind)
			assert.ErrorIs(t, out.Err, tt.err)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Zero(t, f.confirmer.confirmHits)
			assert.Equal(t, int32(1), f.resumes.Load())
		})
	}
}

func TestRejectedItemNotAdded(t *testing.T) {
	f := newFixture(Config{})
	f.confirmer.accept = false

	out := f.handle(context.Background(), "SOAP1")

	assert.Equal(t, Rejected, out.Kind)
	assert.Zero(t, f.confirmer.qtyHits)
	assert.Zero(t, f.cart.Len())
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestQuantityCancelledResumes(t *testing.T) {
	f := newFixture(Config{})
	f.confirmer.qtyErr = domain.ErrCancelled

	out := f.handle(context.Background(), "SOAP1")

	assert.Equal(t, Cancelled, out.Kind)
	assert.Zero(t, f.cart.Len())
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestInvalidQuantity(t *testing.T) {
	f := newFixture(Config{})
	f.confirmer.qty = 0

	out := f.handle(context.Background(), "SOAP1")

	assert.Equal(t, Invalid, out.Kind)
	assert.Equal(t, "Please enter a valid quantity.", out.Message)
	assert.Zero(t, f.cart.Len())
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestConfirmationErrorIsFailure(t *testing.T) {
	f := newFixture(Config{})
	f.confirmer.confirmErr = errors.New("dialog crashed")

	out := f.handle(context.Background(), "SOAP1")

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestLookupTimeout(t *testing.T) {
	notifier := &recordingNotifier{}
	var resumes atomic.Int32
	p := NewPipeline(slowCatalog{}, &stubConfirmer{}, notifier, cart.New(),
		Config{Timeout: 20 * time.Millisecond, Ceiling: time.Second}, discardLogger())

	out := p.Handle(context.Background(), "SOAP1", func() { resumes.Add(1) })

	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrTimeout)
	assert.Equal(t, int32(1), resumes.Load())
}

func TestLookupCeilingWhenCatalogIgnoresContext(t *testing.T) {
	f := newFixture(Config{Timeout: time.Minute, Ceiling: 30 * time.Millisecond})
	f.catalog.block = true

	start := time.Now()
	out := f.handle(context.Background(), "SOAP1")

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrTimeout)
	assert.Equal(t, "The lookup took too long. Please try again.", out.Message)
	assert.Equal(t, int32(1), f.resumes.Load())
}

func TestAbandonedWhileConfirmingResumesOnce(t *testing.T) {
	f := newFixture(Config{})
	f.confirmer.waitCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- f.handle(ctx, "SOAP1") }()

	require.Eventually(t, func() bool {
		f.catalog.mu.Lock()
		defer f.catalog.mu.Unlock()
		return len(f.catalog.queries) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.Equal(t, Cancelled, out.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not return after cancel")
	}
	assert.Equal(t, int32(1), f.resumes.Load())
	assert.Zero(t, f.cart.Len())
}
