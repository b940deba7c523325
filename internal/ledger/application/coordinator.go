package application

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

const DefaultPageSize = 10

var ErrFilterMismatch = ledgerErrors.NewValidationError("Later pages must use the list's current filters")

// FetchFunc is the remote list endpoint: one page of entries for a subject.
type FetchFunc[T domain.Entry] func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[T], error)

// Cursor is a point-in-time copy of a coordinator's state. Page is the last page
// merged into Items, 0 before the first successful fetch.
type Cursor[T domain.Entry] struct {
	Page     int               `json:"page"`
	HasMore  bool              `json:"has_more"`
	InFlight bool              `json:"in_flight"`
	Items    []T               `json:"items"`
	Filter   domain.ListFilter `json:"filter"`
}

// ListCoordinator drives incremental, deduplicated fetches of one logical list.
// At most one fetch is in flight; extra fetches are dropped, not queued.
type ListCoordinator[T domain.Entry] struct {
	name      string
	subjectID string
	pageSize  int
	fetch     FetchFunc[T]
	// publicOnly reports the actor's current visibility for the subject.
	publicOnly func() bool

	mu         sync.Mutex
	page       int
	hasMore    bool
	inFlight   bool
	items      []T
	index      map[string]struct{}
	filter     domain.ListFilter
	generation uint64
	cancel     context.CancelFunc
}

func NewListCoordinator[T domain.Entry](name, subjectID string, pageSize int, fetch FetchFunc[T]) *ListCoordinator[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ListCoordinator[T]{
		name:      name,
		subjectID: subjectID,
		pageSize:  pageSize,
		fetch:     fetch,
		hasMore:   true,
		index:     make(map[string]struct{}),
		filter:    domain.ListFilter{}.WithDefaults(),
	}
}

// WithVisibility makes the actor's visibility part of the filter snapshot. When
// it changes, the accumulated pages are dropped as on a filter change.
func (c *ListCoordinator[T]) WithVisibility(publicOnly func() bool) *ListCoordinator[T] {
	c.publicOnly = publicOnly
	return c
}

func (c *ListCoordinator[T]) Name() string {
	return c.name
}

func (c *ListCoordinator[T]) visibility() bool {
	if c.publicOnly == nil {
		return false
	}
	return c.publicOnly()
}

// Fetch loads one page. Page 1 replaces the accumulated set; any other page is
// merged by entry id. A call made while another fetch is in flight does nothing.
func (c *ListCoordinator[T]) Fetch(ctx context.Context, page int, filter domain.ListFilter) error {
	if page < 1 {
		page = 1
	}
	filter = filter.WithDefaults()
	filter.PublicOnly = c.visibility()

	c.mu.Lock()
	if page > 1 && !filter.Equal(c.filter) {
		if filter.PublicOnly == c.filter.PublicOnly {
			c.mu.Unlock()
			return ErrFilterMismatch
		}
		c.visibilityChangedLocked(filter.PublicOnly)
		page = 1
	}
	return c.startLocked(ctx, page, filter)
}

// LoadMore fetches the next page with the current filters unless the list is
// exhausted or a fetch is already running.
func (c *ListCoordinator[T]) LoadMore(ctx context.Context) error {
	publicOnly := c.visibility()
	c.mu.Lock()
	if publicOnly != c.filter.PublicOnly {
		c.visibilityChangedLocked(publicOnly)
		return c.startLocked(ctx, 1, c.filter)
	}
	if !c.hasMore || c.inFlight {
		c.mu.Unlock()
		return nil
	}
	return c.startLocked(ctx, c.page+1, c.filter)
}

// SetFilters discards everything accumulated under the old filters, supersedes any
// running fetch and loads page 1 again.
func (c *ListCoordinator[T]) SetFilters(ctx context.Context, filter domain.ListFilter) error {
	filter = filter.WithDefaults()
	filter.PublicOnly = c.visibility()
	c.mu.Lock()
	c.resetLocked(filter)
	return c.startLocked(ctx, 1, c.filter)
}

// Refresh reloads page 1 with the current filters.
func (c *ListCoordinator[T]) Refresh(ctx context.Context) error {
	publicOnly := c.visibility()
	c.mu.Lock()
	filter := c.filter
	filter.PublicOnly = publicOnly
	c.resetLocked(filter)
	return c.startLocked(ctx, 1, c.filter)
}

func (c *ListCoordinator[T]) Snapshot() Cursor[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]T, len(c.items))
	copy(items, c.items)
	return Cursor[T]{
		Page:     c.page,
		HasMore:  c.hasMore,
		InFlight: c.inFlight,
		Items:    items,
		Filter:   c.filter,
	}
}

func (c *ListCoordinator[T]) visibilityChangedLocked(publicOnly bool) {
	log.Printf("level=info component=coordinator list=%s subject=%s public_only=%t msg=\"visibility changed, restarting at page 1\"", c.name, c.subjectID, publicOnly)
	filter := c.filter
	filter.PublicOnly = publicOnly
	c.resetLocked(filter)
}

func (c *ListCoordinator[T]) resetLocked(filter domain.ListFilter) {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inFlight = false
	c.items = nil
	c.index = make(map[string]struct{})
	c.page = 0
	c.hasMore = true
	c.filter = filter
}

// startLocked must be called with c.mu held; it releases it.
func (c *ListCoordinator[T]) startLocked(ctx context.Context, page int, filter domain.ListFilter) error {
	if c.inFlight {
		c.mu.Unlock()
		return nil
	}
	c.inFlight = true
	generation := c.generation
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	result, err := c.fetch(fetchCtx, c.subjectID, page, c.pageSize, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		// Superseded by a filter change; the result belongs to the old filters.
		return nil
	}
	c.inFlight = false
	c.cancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Printf("level=warn component=coordinator list=%s subject=%s page=%d msg=\"fetch failed\" err=%v", c.name, c.subjectID, page, err)
		return ledgerErrors.NewTransientError(c.name+" fetch", err)
	}

	if page == 1 {
		c.items = nil
		c.index = make(map[string]struct{})
	}
	for _, item := range result.Items {
		id := item.EntryID()
		if _, seen := c.index[id]; seen {
			continue
		}
		c.index[id] = struct{}{}
		c.items = append(c.items, item)
	}
	c.page = page
	c.hasMore = page < result.TotalPages
	c.filter = filter
	return nil
}
