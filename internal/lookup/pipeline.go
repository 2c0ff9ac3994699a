// Package lookup resolves a decoded payload against the item catalog, asks
// the user to confirm it and a quantity, and adds the result to the cart.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/shopscan/internal/cart"
	"github.com/vbonduro/shopscan/internal/domain"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultCeiling = 20 * time.Second
)

// Catalog finds an item by normalized code across all shops. A nil item
// with a nil error means no item has that code.
type Catalog interface {
	FindByCode(ctx context.Context, code string) (*domain.Item, error)
}

// Confirmer asks the user to accept a found item and choose a quantity.
// Both return domain.ErrCancelled when the user dismisses the dialog.
type Confirmer interface {
	ConfirmFound(ctx context.Context, item *domain.Item) (bool, error)
	PromptQuantity(ctx context.Context, item *domain.Item) (int, error)
}

// Notifier shows an outcome to the user.
type Notifier interface {
	Notify(ctx context.Context, out Outcome)
}

type cartAdder interface {
	Add(item *domain.Item, qty int) (cart.Entry, error)
}

type Kind string

const (
	Added     Kind = "added"
	Rejected  Kind = "rejected"
	Cancelled Kind = "cancelled"
	NotFound  Kind = "not_found"
	Invalid   Kind = "invalid"
	Failed    Kind = "failed"
)

// Outcome is the result of one pipeline run.
type Outcome struct {
	Kind     Kind         `json:"kind"`
	Code     string       `json:"code"`
	Item     *domain.Item `json:"item,omitempty"`
	Quantity int          `json:"quantity,omitempty"`
	Entry    *cart.Entry  `json:"entry,omitempty"`
	Message  string       `json:"message"`
	Err      error        `json:"-"`
}

type Config struct {
	Timeout time.Duration
	Ceiling time.Duration
}

type Pipeline struct {
	catalog   Catalog
	confirmer Confirmer
	notifier  Notifier
	cart      cartAdder
	timeout   time.Duration
	ceiling   time.Duration
	logger    *slog.Logger
}

func NewPipeline(catalog Catalog, confirmer Confirmer, notifier Notifier, c cartAdder, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	return &Pipeline{
		catalog:   catalog,
		confirmer: confirmer,
		notifier:  notifier,
		cart:      c,
		timeout:   cfg.Timeout,
		ceiling:   cfg.Ceiling,
		logger:    logger,
	}
}

// Normalize trims surrounding whitespace and upper-cases a payload.
func Normalize(payload string) string {
	return strings.ToUpper(strings.TrimSpace(payload))
}

// Handle runs the pipeline for payload and calls resume exactly once when it
// finishes, whatever the outcome.
func (p *Pipeline) Handle(ctx context.Context, payload string, resume func()) Outcome {
	defer resume()

	out := p.Run(ctx, payload)
	if p.notifier != nil {
		p.notifier.Notify(ctx, out)
	}
	p.logger.Info("lookup finished", "code", out.Code, "outcome", out.Kind)
	return out
}

// Run performs the lookup, confirmation and cart update without resuming.
func (p *Pipeline) Run(ctx context.Context, payload string) Outcome {
	code := Normalize(payload)
	if code == "" {
		return Outcome{Kind: Invalid, Message: "Scanned code is empty."}
	}

	item, err := p.find(ctx, code)
	if errors.Is(err, domain.ErrCancelled) {
		return dismissed(code, nil, err)
	}
	if err != nil {
		p.logger.Warn("catalog lookup failed", "code", code, "error", err)
		return Outcome{Kind: Failed, Code: code, Err: err, Message: FailureMessage(err)}
	}
	if item == nil {
		return Outcome{Kind: NotFound, Code: code, Message: fmt.Sprintf("Item not found for code: %s", code)}
	}

	ok, err := p.confirmer.ConfirmFound(ctx, item)
	if err != nil {
		return dismissed(code, item, err)
	}
	if !ok {
		return Outcome{Kind: Rejected, Code: code, Item: item, Message: "Item not added."}
	}

	qty, err := p.confirmer.PromptQuantity(ctx, item)
	if err != nil {
		return dismissed(code, item, err)
	}

	entry, err := p.cart.Add(item, qty)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return Outcome{Kind: Invalid, Code: code, Item: item, Err: err, Message: "Please enter a valid quantity."}
		}
		return Outcome{Kind: Failed, Code: code, Item: item, Err: err, Message: FailureMessage(err)}
	}

	return Outcome{
		Kind:     Added,
		Code:     code,
		Item:     item,
		Quantity: qty,
		Entry:    &entry,
		Message:  fmt.Sprintf("Added %d x %s to cart.", qty, item.Name),
	}
}

func dismissed(code string, item *domain.Item, err error) Outcome {
	if errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled) {
		return Outcome{Kind: Cancelled, Code: code, Item: item, Message: "Scan cancelled."}
	}
	return Outcome{Kind: Failed, Code: code, Item: item, Err: err, Message: FailureMessage(err)}
}

type findResult struct {
	item *domain.Item
	err  error
}

// find queries the catalog under the lookup timeout and stops waiting at
// the ceiling even if the catalog ignores its context.
func (p *Pipeline) find(ctx context.Context, code string) (*domain.Item, error) {
	queryCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan findResult, 1)
	go func() {
		item, err := p.catalog.FindByCode(queryCtx, code)
		ch <- findResult{item: item, err: err}
	}()

	ceiling := time.NewTimer(p.ceiling)
	defer ceiling.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, classify(r.err)
		}
		return r.item, nil
	case <-ctx.Done():
		return nil, classify(ctx.Err())
	case <-ceiling.C:
		return nil, fmt.Errorf("%w: lookup exceeded %s", domain.ErrTimeout, p.ceiling)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}
	return err
}

// FailureMessage is the user-facing text for a lookup failure.
func FailureMessage(err error) string {
	var unknown *domain.UnknownError
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Permission denied. Please check your access rights."
	case errors.Is(err, domain.ErrUnavailable):
		return "Network error. Please check your connection and try again."
	case errors.Is(err, domain.ErrTimeout):
		return "The lookup took too long. Please try again."
	case errors.Is(err, domain.ErrCancelled):
		return "Scan cancelled."
	case errors.As(err, &unknown):
		return "Error looking up item: " + unknown.Message
	default:
		return "Error looking up item: " + err.Error()
	}
}
