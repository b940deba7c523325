package application

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagedDonations(pages map[int][]string, totalPages int) FetchFunc[domain.Donation] {
	return func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
		items := make([]domain.Donation, 0, len(pages[page]))
		for _, id := range pages[page] {
			items = append(items, domain.Donation{ID: id, SubcategoryID: subjectID, Amount: dec("1")})
		}
		return domain.Page[domain.Donation]{Items: items, Page: page, TotalPages: totalPages}, nil
	}
}

func TestCoordinator_InitialState(t *testing.T) {
	c := NewListCoordinator("donations:sub:s1", "s1", 0, pagedDonations(nil, 0))
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Page)
	assert.True(t, snap.HasMore)
	assert.False(t, snap.InFlight)
	assert.Empty(t, snap.Items)
	assert.Equal(t, domain.SortByDate, snap.Filter.SortBy)
	assert.Equal(t, domain.SortDesc, snap.Filter.Order)
}

func TestCoordinator_PassesSubjectPageAndLimit(t *testing.T) {
	var gotSubject string
	var gotPage, gotLimit int
	c := NewListCoordinator("donations:sub:s1", "s1", DefaultPageSize,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			gotSubject, gotPage, gotLimit = subjectID, page, limit
			return domain.Page[domain.Donation]{Page: page, TotalPages: 1}, nil
		})

	require.NoError(t, c.Fetch(context.Background(), 1, domain.ListFilter{}))
	assert.Equal(t, "s1", gotSubject)
	assert.Equal(t, 1, gotPage)
	assert.Equal(t, 10, gotLimit)
}

func TestCoordinator_MergeIsIdempotent(t *testing.T) {
	pages := map[int][]string{
		1: {"a", "b", "c"},
		2: {"c", "d", "e"},
	}
	c := NewListCoordinator("donations:sub:s1", "s1", 3, pagedDonations(pages, 3))
	ctx := context.Background()

	require.NoError(t, c.Fetch(ctx, 1, domain.ListFilter{}))
	require.NoError(t, c.Fetch(ctx, 2, domain.ListFilter{}))
	require.NoError(t, c.Fetch(ctx, 2, domain.ListFilter{}))

	snap := c.Snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, donationIDs(snap.Items))
	assert.Equal(t, 2, snap.Page)
	assert.True(t, snap.HasMore)
}

func TestCoordinator_FirstPageReplaces(t *testing.T) {
	calls := 0
	c := NewListCoordinator("donations:sub:s1", "s1", 2,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			calls++
			if calls == 1 {
				return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "old"}}, Page: 1, TotalPages: 1}, nil
			}
			return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "new"}}, Page: 1, TotalPages: 1}, nil
		})
	ctx := context.Background()

	require.NoError(t, c.Fetch(ctx, 1, domain.ListFilter{}))
	require.NoError(t, c.Fetch(ctx, 1, domain.ListFilter{}))
	assert.Equal(t, []string{"new"}, donationIDs(c.Snapshot().Items))
}

func TestCoordinator_LoadMoreStopsWhenExhausted(t *testing.T) {
	pages := map[int][]string{1: {"a"}, 2: {"b"}}
	var calls int32
	fetch := pagedDonations(pages, 2)
	c := NewListCoordinator("donations:sub:s1", "s1", 1,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			atomic.AddInt32(&calls, 1)
			return fetch(ctx, subjectID, page, limit, filter)
		})
	ctx := context.Background()

	require.NoError(t, c.LoadMore(ctx))
	require.NoError(t, c.LoadMore(ctx))
	assert.False(t, c.Snapshot().HasMore)

	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"a", "b"}, donationIDs(c.Snapshot().Items))
}

func TestCoordinator_SingleFetchInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	c := NewListCoordinator("donations:sub:s1", "s1", 1,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "a"}}, Page: page, TotalPages: 5}, nil
		})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.LoadMore(ctx))
	}()
	assert.Eventually(t, func() bool { return c.Snapshot().InFlight }, time.Second, 5*time.Millisecond)

	// Dropped, not queued.
	assert.NoError(t, c.LoadMore(ctx))
	assert.NoError(t, c.Fetch(ctx, 1, domain.ListFilter{}))

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	snap := c.Snapshot()
	assert.False(t, snap.InFlight)
	assert.Equal(t, 1, snap.Page)
}

func TestCoordinator_FailureLeavesStateUntouched(t *testing.T) {
	fail := false
	c := NewListCoordinator("expenses:sub:s1", "s1", 1,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Expense], error) {
			if fail {
				return domain.Page[domain.Expense]{}, errors.New("connection reset")
			}
			return domain.Page[domain.Expense]{Items: []domain.Expense{{ID: "e1"}}, Page: page, TotalPages: 3}, nil
		})
	ctx := context.Background()
	require.NoError(t, c.LoadMore(ctx))
	before := c.Snapshot()

	fail = true
	err := c.LoadMore(ctx)
	require.Error(t, err)
	assert.True(t, ledgerErrors.IsTransientError(err))

	after := c.Snapshot()
	assert.Equal(t, before.Page, after.Page)
	assert.Equal(t, before.HasMore, after.HasMore)
	assert.Equal(t, before.Items, after.Items)
	assert.False(t, after.InFlight)
}

func TestCoordinator_SetFiltersResets(t *testing.T) {
	var lastPage int
	c := NewListCoordinator("donations:sub:s1", "s1", 1,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			lastPage = page
			id := filter.Status + "-" + string(rune('0'+page))
			return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: id}}, Page: page, TotalPages: 3}, nil
		})
	ctx := context.Background()

	require.NoError(t, c.LoadMore(ctx))
	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, 2, c.Snapshot().Page)

	require.NoError(t, c.SetFilters(ctx, domain.ListFilter{Status: "pending"}))
	snap := c.Snapshot()
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, []string{"pending-1"}, donationIDs(snap.Items))
	assert.Equal(t, "pending", snap.Filter.Status)
	assert.Equal(t, 1, lastPage)
}

func TestCoordinator_LaterPageNeedsCurrentFilters(t *testing.T) {
	c := NewListCoordinator("donations:sub:s1", "s1", 1, pagedDonations(map[int][]string{1: {"a"}}, 3))
	ctx := context.Background()
	require.NoError(t, c.Fetch(ctx, 1, domain.ListFilter{}))

	err := c.Fetch(ctx, 2, domain.ListFilter{Status: "failed"})
	assert.ErrorIs(t, err, ErrFilterMismatch)
}

func TestCoordinator_StaleResultIsDiscarded(t *testing.T) {
	c := NewListCoordinator("donations:sub:s1", "s1", 1,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			if filter.Status == "pending" {
				<-ctx.Done()
				return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "stale"}}, Page: 1, TotalPages: 1}, nil
			}
			return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "fresh"}}, Page: 1, TotalPages: 1}, nil
		})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.SetFilters(ctx, domain.ListFilter{Status: "pending"}) }()
	require.Eventually(t, func() bool { return c.Snapshot().InFlight }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.SetFilters(ctx, domain.ListFilter{Status: "success"}))
	assert.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, []string{"fresh"}, donationIDs(snap.Items))
	assert.Equal(t, "success", snap.Filter.Status)
}

func TestCoordinator_VisibilityChangeRestartsList(t *testing.T) {
	var publicOnly atomic.Bool
	var queried []bool
	c := NewListCoordinator("donations:sub:s1", "s1", 2,
		func(ctx context.Context, subjectID string, page, limit int, filter domain.ListFilter) (domain.Page[domain.Donation], error) {
			queried = append(queried, filter.PublicOnly)
			if filter.PublicOnly {
				return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "public-" + strconv.Itoa(page)}}, Page: page, TotalPages: 2}, nil
			}
			return domain.Page[domain.Donation]{Items: []domain.Donation{{ID: "any-" + strconv.Itoa(page)}}, Page: page, TotalPages: 2}, nil
		}).WithVisibility(publicOnly.Load)
	ctx := context.Background()

	require.NoError(t, c.Fetch(ctx, 1, domain.ListFilter{}))
	assert.Equal(t, []string{"any-1"}, donationIDs(c.Snapshot().Items))

	publicOnly.Store(true)
	require.NoError(t, c.LoadMore(ctx))
	snap := c.Snapshot()
	assert.Equal(t, []string{"public-1"}, donationIDs(snap.Items), "no entries from the wider view survive")
	assert.Equal(t, 1, snap.Page)
	assert.True(t, snap.Filter.PublicOnly)

	require.NoError(t, c.Fetch(ctx, 2, domain.ListFilter{}))
	assert.Equal(t, []string{"public-1", "public-2"}, donationIDs(c.Snapshot().Items))

	publicOnly.Store(false)
	require.NoError(t, c.Fetch(ctx, 2, domain.ListFilter{}))
	snap = c.Snapshot()
	assert.Equal(t, []string{"any-1"}, donationIDs(snap.Items))
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, []bool{false, true, true, false}, queried)
}
