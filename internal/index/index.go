// ABOUTME: In-memory paginated conversation index
// ABOUTME: Page fetch/append/reset, filter-generation discard, thread discovery

package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/inbox-console/internal/model"
)

// Fetcher is what the index needs from the backend client.
type Fetcher interface {
	ListConversations(ctx context.Context, filter model.FilterCriteria, page, limit int) (*model.Page, error)
}

// Index holds the operator's current view of the conversation list: the
// fetched summaries, the server's total count, and the has-more flag. The
// list is mutated by page fetches and by reconciler transforms; both go
// through the index so a single mutex serializes them.
//
// Fetches for different filter generations race. Results are keyed by the
// filter identity they were issued under and discarded when the filter has
// since changed: last write wins by filter identity, not arrival order.
type Index struct {
	mu       sync.Mutex
	fetcher  Fetcher
	pageSize int
	logger   *slog.Logger

	filter    model.FilterCriteria
	filterKey string

	items      []*model.ConversationSummary
	totalCount int
	hasMore    bool
	nextPage   int

	// Distinct thread ids discovered on the initial load, used to populate
	// the thread picker. Derived only on the designated initial fetch so a
	// narrowly filtered page cannot discard picker options. Depends on the
	// first page being representative of all threads.
	threads         []string
	discoverThreads bool
}

// New creates an index. Pass nil logger for default.
func New(fetcher Fetcher, pageSize int, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		fetcher:         fetcher,
		pageSize:        pageSize,
		logger:          logger.With("component", "index"),
		filterKey:       model.FilterCriteria{}.Key(),
		discoverThreads: true,
	}
}

// SetFilter replaces the filter state, starting a new fetch generation.
// In-flight fetches for the previous generation will be discarded on
// arrival. Changing the selected thread re-arms thread discovery for the
// next page-0 fetch.
func (ix *Index) SetFilter(f model.FilterCriteria) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if f.SelectedThreadID != ix.filter.SelectedThreadID {
		ix.discoverThreads = true
	}
	ix.filter = f
	ix.filterKey = f.Key()
	ix.nextPage = 0

	ix.logger.Debug("filter changed", "filter", ix.filterKey)
	return nil
}

// Filter returns the current filter state.
func (ix *Index) Filter() model.FilterCriteria {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.filter
}

// FetchPage fetches one page under the current filter. With resetData the
// in-memory list is replaced (page 0 of a new generation); otherwise the
// page is appended. Returns false when the result was discarded because the
// filter changed while the fetch was in flight.
//
// On transport error the fetch resolves to "no change": the stale list is
// preserved and the error is returned for the caller to surface.
func (ix *Index) FetchPage(ctx context.Context, page int, resetData bool) (bool, error) {
	ix.mu.Lock()
	filter := ix.filter
	key := ix.filterKey
	limit := ix.pageSize
	ix.mu.Unlock()

	result, err := ix.fetcher.ListConversations(ctx, filter, page, limit)
	if err != nil {
		return false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.filterKey != key {
		ix.logger.Debug("discarding fetch for abandoned filter",
			"fetched", key,
			"current", ix.filterKey)
		return false, nil
	}

	if resetData {
		ix.items = result.Items
	} else {
		ix.appendLocked(result.Items)
	}
	ix.totalCount = result.TotalCount
	ix.hasMore = result.HasMore
	ix.nextPage = page + 1

	if page == 0 && ix.discoverThreads {
		ix.threads = distinctThreads(result.Items)
		ix.discoverThreads = false
		ix.logger.Debug("threads discovered", "count", len(ix.threads))
	}

	ix.logger.Debug("page applied",
		"page", page,
		"reset", resetData,
		"items", len(ix.items),
		"total_count", ix.totalCount,
		"has_more", ix.hasMore)

	return true, nil
}

// FetchNext fetches the next unfetched page and appends it.
func (ix *Index) FetchNext(ctx context.Context) (bool, error) {
	ix.mu.Lock()
	page := ix.nextPage
	more := ix.hasMore || page == 0
	ix.mu.Unlock()

	if !more {
		return false, nil
	}
	return ix.FetchPage(ctx, page, page == 0)
}

// appendLocked appends fetched summaries, skipping ids already present.
// The reconciler may have prepended a conversation before its page arrived;
// the server copy is older than the reconciled one, so the in-memory entry
// wins. Must be called with mu held.
func (ix *Index) appendLocked(items []*model.ConversationSummary) {
	present := make(map[string]bool, len(ix.items))
	for _, c := range ix.items {
		present[c.ID] = true
	}
	for _, c := range items {
		if present[c.ID] {
			continue
		}
		ix.items = append(ix.items, c)
	}
}

// distinctThreads derives the ordered distinct thread ids from a page.
func distinctThreads(items []*model.ConversationSummary) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, c := range items {
		if c.ThreadID == "" || seen[c.ThreadID] {
			continue
		}
		seen[c.ThreadID] = true
		out = append(out, c.ThreadID)
	}
	return out
}

// Get returns the summary with the given id, or nil. The pointer aliases
// index state; mutations must go through Apply or the owning engine loop.
func (ix *Index) Get(id string) *model.ConversationSummary {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, c := range ix.items {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Apply runs a previous-state→next-state transform over the list under the
// index lock. The transform must be pure aside from mutating the summaries
// it is given.
func (ix *Index) Apply(transform func([]*model.ConversationSummary) []*model.ConversationSummary) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.items = transform(ix.items)
}

// IncrementTotal bumps the server total count, used when an insert event
// adds a conversation the pagination has not returned yet.
func (ix *Index) IncrementTotal() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.totalCount++
}

// Items returns a deep copy of the current list. Snapshots cross goroutine
// boundaries, so callers must never see the live pointers the reconciler is
// still mutating.
func (ix *Index) Items() []*model.ConversationSummary {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]*model.ConversationSummary, len(ix.items))
	for i, c := range ix.items {
		cp := *c
		cp.FullThread = append([]model.MessageRecord(nil), c.FullThread...)
		out[i] = &cp
	}
	return out
}

// TotalCount returns the server-reported total for the current filter.
func (ix *Index) TotalCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.totalCount
}

// HasMore reports whether further pages exist.
func (ix *Index) HasMore() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.hasMore
}

// Threads returns the thread ids discovered on the initial load.
func (ix *Index) Threads() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]string, len(ix.threads))
	copy(out, ix.threads)
	return out
}
