// Package palloc provides the bounded page pool that backs thread stacks and
// control blocks.
//
// The pool hands out fixed-size pages from a preallocated arena and keeps a
// free list. It knows nothing about threads or scheduling; it is responsible
// ONLY for handing pages out and taking them back. Exhaustion is an ordinary
// error (the caller of thread creation sees it); freeing a page twice is a
// fatal contract violation.
package palloc

import (
	"schedos/pkg/kerror"
)

// DefaultPageSize is the size of a pool page in bytes. One page holds a
// thread's control block and its execution stack.
const DefaultPageSize = 4096

// ErrNoPages is returned by Get when every page in the pool is in use.
var ErrNoPages = kerror.New(kerror.ErrCategoryResource, "NO_FREE_PAGES",
	"page pool exhausted")

// Page is a fixed-size block of pool memory. A page is owned by exactly one
// holder between Get and Free.
type Page struct {
	data  []byte
	index int
	inUse bool
}

// Data returns the page's backing memory.
func (p *Page) Data() []byte {
	return p.data
}

// Size returns the page size in bytes.
func (p *Page) Size() int {
	return len(p.data)
}

// Pool is a bounded allocator of fixed-size pages.
//
// All pages are carved from a single arena at construction time, so Get and
// Free never allocate. The pool is not internally synchronized: callers
// follow the kernel's interrupts-off discipline, which already excludes
// concurrent mutation on the single CPU.
type Pool struct {
	pageSize int
	pages    []Page
	free     []*Page // LIFO free list
}

// NewPool creates a pool of count pages of pageSize bytes each.
// A pageSize of 0 selects DefaultPageSize.
func NewPool(count, pageSize int) *Pool {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if count <= 0 {
		kerror.Panicf("NewPool", "PagePool", "pool must hold at least one page, got %d", count)
	}

	arena := make([]byte, count*pageSize)
	p := &Pool{
		pageSize: pageSize,
		pages:    make([]Page, count),
		free:     make([]*Page, 0, count),
	}
	for i := range p.pages {
		p.pages[i] = Page{
			data:  arena[i*pageSize : (i+1)*pageSize],
			index: i,
		}
	}
	// Free list is built back to front so page 0 is handed out first.
	for i := count - 1; i >= 0; i-- {
		p.free = append(p.free, &p.pages[i])
	}
	return p
}

// Get removes a page from the free list, zeroes it, and returns it.
// Returns ErrNoPages when the pool is exhausted.
func (p *Pool) Get() (*Page, error) {
	if len(p.free) == 0 {
		return nil, ErrNoPages
	}

	pg := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	for i := range pg.data {
		pg.data[i] = 0
	}
	pg.inUse = true
	return pg, nil
}

// Free returns a page to the pool. Freeing a page that is not in use, or a
// page that does not belong to this pool, is a fatal contract violation.
func (p *Pool) Free(pg *Page) {
	if pg == nil {
		kerror.Panicf("Free", "PagePool", "nil page")
	}
	if pg.index < 0 || pg.index >= len(p.pages) || &p.pages[pg.index] != pg {
		kerror.Panicf("Free", "PagePool", "page %d does not belong to this pool", pg.index)
	}
	if !pg.inUse {
		kerror.Panicf("Free", "PagePool", "double free of page %d", pg.index)
	}

	pg.inUse = false
	p.free = append(p.free, pg)
}

// Capacity returns the total number of pages in the pool.
func (p *Pool) Capacity() int {
	return len(p.pages)
}

// Available returns the number of free pages.
func (p *Pool) Available() int {
	return len(p.free)
}

// InUse returns the number of pages currently handed out.
func (p *Pool) InUse() int {
	return len(p.pages) - len(p.free)
}
