package pagination

import (
	"context"
	"sync"

	"transcriber/client/model"
)

// ActivePager windows the active collection client-side. The window resets
// to the first page whenever the underlying collection's size changes.
type ActivePager struct {
	mu       sync.Mutex
	pageSize int
	page     int
	lastSize int
}

func NewActivePager(pageSize int) *ActivePager {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &ActivePager{pageSize: pageSize, lastSize: -1}
}

// Window returns the current page of jobs.
func (p *ActivePager) Window(jobs []model.Job) []model.Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(jobs) != p.lastSize {
		p.page = 0
		p.lastSize = len(jobs)
	}

	start := p.page * p.pageSize
	if start >= len(jobs) {
		p.page = 0
		start = 0
	}
	end := start + p.pageSize
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[start:end]
}

func (p *ActivePager) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastSize < 0 {
		return
	}
	if (p.page+1)*p.pageSize < p.lastSize {
		p.page++
	}
}

func (p *ActivePager) Prev() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page > 0 {
		p.page--
	}
}

func (p *ActivePager) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// CompletedLoader fetches one server page of completed jobs.
type CompletedLoader func(ctx context.Context, offset, limit int) ([]model.Job, bool, error)

// CompletedPager pages the completed collection against the registry and
// merges fetched records into the held set by id. On a duplicate the
// already-held record wins, so a stale paged read never clobbers fresher
// local state.
type CompletedPager struct {
	mu      sync.Mutex
	held    []model.Job
	index   map[string]int
	hasMore bool
	limit   int
	load    CompletedLoader
}

func NewCompletedPager(limit int, load CompletedLoader) *CompletedPager {
	if limit <= 0 {
		limit = 20
	}
	return &CompletedPager{
		index:   make(map[string]int),
		hasMore: true,
		limit:   limit,
		load:    load,
	}
}

// Replace adopts a fresh view of the completed collection, typically the
// reconciler's output after a snapshot merge.
func (p *CompletedPager) Replace(jobs []model.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.held = append([]model.Job(nil), jobs...)
	p.index = make(map[string]int, len(jobs))
	for i, job := range p.held {
		p.index[job.ID] = i
	}
}

// LoadMore requests the next page and merges it into the held set.
func (p *CompletedPager) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	offset := len(p.held)
	limit := p.limit
	p.mu.Unlock()

	jobs, hasMore, err := p.load(ctx, offset, limit)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, job := range jobs {
		if _, exists := p.index[job.ID]; exists {
			continue
		}
		p.index[job.ID] = len(p.held)
		p.held = append(p.held, job)
	}
	p.hasMore = hasMore
	return nil
}

// Jobs returns a copy of the held completed collection.
func (p *CompletedPager) Jobs() []model.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Job(nil), p.held...)
}

func (p *CompletedPager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}
