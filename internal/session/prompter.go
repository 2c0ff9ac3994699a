package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vbonduro/shopscan/internal/cart"
	"github.com/vbonduro/shopscan/internal/domain"
	"github.com/vbonduro/shopscan/internal/lookup"
)

type EventType string

const (
	EventState   EventType = "state"
	EventDecoded EventType = "decoded"
	EventPrompt  EventType = "prompt"
	EventOutcome EventType = "outcome"
	EventCart    EventType = "cart"
	EventError   EventType = "error"
)

// Event is one message on a session's event stream.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type PromptKind string

const (
	PromptConfirm  PromptKind = "confirm"
	PromptQuantity PromptKind = "quantity"
)

// Prompt is a question waiting for the shopper's answer.
type Prompt struct {
	ID      string       `json:"id"`
	Kind    PromptKind   `json:"kind"`
	Item    *domain.Item `json:"item"`
	Message string       `json:"message"`
}

// Decision answers a Prompt. Cancel dismisses the dialog; Accept answers a
// confirm prompt and Quantity a quantity prompt.
type Decision struct {
	Accept   bool `json:"accept"`
	Quantity int  `json:"quantity"`
	Cancel   bool `json:"cancel"`
}

var ErrNoPrompt = fmt.Errorf("%w: no such pending prompt", domain.ErrNotFound)

const subscriberBuffer = 32

type pendingPrompt struct {
	prompt Prompt
	reply  chan Decision
}

// Prompter relays confirmation dialogs and outcomes to subscribed clients and
// waits for their answers. It implements lookup.Confirmer and lookup.Notifier.
type Prompter struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending *pendingPrompt
	subs    map[int]chan Event
	nextSub int
	closed  bool
	done    chan struct{}
}

func NewPrompter(logger *slog.Logger) *Prompter {
	return &Prompter{
		logger: logger,
		subs:   make(map[int]chan Event),
		done:   make(chan struct{}),
	}
}

func (p *Prompter) ConfirmFound(ctx context.Context, item *domain.Item) (bool, error) {
	msg := fmt.Sprintf("Found: %s (%s). Add to cart?", item.Name, cart.FormatMoney(item.Cost))
	d, err := p.ask(ctx, PromptConfirm, item, msg)
	if err != nil {
		return false, err
	}
	return d.Accept, nil
}

func (p *Prompter) PromptQuantity(ctx context.Context, item *domain.Item) (int, error) {
	d, err := p.ask(ctx, PromptQuantity, item, fmt.Sprintf("Enter quantity for %s:", item.Name))
	if err != nil {
		return 0, err
	}
	return d.Quantity, nil
}

func (p *Prompter) Notify(_ context.Context, out lookup.Outcome) {
	p.Publish(Event{Type: EventOutcome, Data: out})
}

func (p *Prompter) ask(ctx context.Context, kind PromptKind, item *domain.Item, msg string) (Decision, error) {
	pp := &pendingPrompt{
		prompt: Prompt{ID: uuid.NewString(), Kind: kind, Item: item, Message: msg},
		reply:  make(chan Decision, 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Decision{}, fmt.Errorf("%w: session closed", domain.ErrCancelled)
	}
	p.pending = pp
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.pending == pp {
			p.pending = nil
		}
		p.mu.Unlock()
	}()

	p.Publish(Event{Type: EventPrompt, Data: pp.prompt})

	select {
	case d := <-pp.reply:
		if d.Cancel {
			return Decision{}, fmt.Errorf("%w: %s prompt dismissed", domain.ErrCancelled, kind)
		}
		return d, nil
	case <-ctx.Done():
		return Decision{}, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	case <-p.done:
		return Decision{}, fmt.Errorf("%w: session closed", domain.ErrCancelled)
	}
}

// Decide answers the pending prompt with the given id.
func (p *Prompter) Decide(promptID string, d Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil || p.pending.prompt.ID != promptID {
		return ErrNoPrompt
	}
	p.pending.reply <- d
	p.pending = nil
	return nil
}

// Pending returns the prompt awaiting an answer, if any.
func (p *Prompter) Pending() (Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return Prompt{}, false
	}
	return p.pending.prompt, true
}

// Subscribe returns a channel of events and a function that ends the
// subscription. The channel is closed when the prompter closes.
func (p *Prompter) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

// Publish sends ev to every subscriber. Slow subscribers miss events rather
// than block the scan loop.
func (p *Prompter) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

// Close cancels any pending prompt and ends all subscriptions.
func (p *Prompter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

// IsClosed reports whether Close has been called.
func (p *Prompter) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var _ lookup.Confirmer = (*Prompter)(nil)
var _ lookup.Notifier = (*Prompter)(nil)
