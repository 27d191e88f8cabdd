package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/domain"
)

// Feed yields raw items. ok is false when nothing is available right now;
// that is not an error.
type Feed interface {
	Next(ctx context.Context) (item domain.Item, ok bool, err error)
}

// Rewinder is implemented by feeds that can restart from their first item.
type Rewinder interface {
	Rewind()
}

// ErrQueueFull is returned by ManualFeed.Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("manual queue is full")

// ManualFeed is a bounded FIFO of items submitted by operators.
type ManualFeed struct {
	mu       sync.Mutex
	items    []domain.Item
	capacity int
}

// NewManualFeed creates a queue holding at most capacity items.
func NewManualFeed(capacity int) *ManualFeed {
	if capacity <= 0 {
		capacity = 100
	}
	return &ManualFeed{capacity: capacity}
}

// Enqueue appends an item.
func (m *ManualFeed) Enqueue(_ context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) >= m.capacity {
		return ErrQueueFull
	}
	m.items = append(m.items, item)
	return nil
}

// Len returns the number of queued items.
func (m *ManualFeed) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Next implements Feed.
func (m *ManualFeed) Next(context.Context) (domain.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return domain.Item{}, false, nil
	}
	item := m.items[0]
	m.items = m.items[1:]
	return item, true, nil
}

// Chain returns a Feed that drains feeds in order, asking a later feed only
// when every earlier one is empty. Errors from one feed do not hide the
// others; they are returned only if no feed yields an item.
func Chain(feeds ...Feed) Feed {
	return chain(feeds)
}

type chain []Feed

func (c chain) Next(ctx context.Context) (domain.Item, bool, error) {
	var errs []error
	for _, f := range c {
		if f == nil {
			continue
		}
		item, ok, err := f.Next(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return item, true, nil
		}
	}
	return domain.Item{}, false, errors.Join(errs...)
}

// Rewind restarts every member feed that supports it.
func (c chain) Rewind() {
	for _, f := range c {
		if r, ok := f.(Rewinder); ok {
			r.Rewind()
		}
	}
}

// Sink receives the outcome of every successful consolidation.
type Sink interface {
	Publish(ctx context.Context, outcome correlate.Outcome) error
}
