// Package frontier implements the crawl queue: an insertion-ordered,
// deduplicated list of asset URLs with a cursor that only moves forward.
package frontier

import "sync"

// Frontier is safe for concurrent use. The seen check and the append happen
// under one lock, so a URL can be enqueued at most once.
type Frontier struct {
	mu     sync.Mutex
	urls   []string
	seen   map[string]struct{}
	cursor int
}

// New returns a frontier seeded with urls, duplicates dropped.
func New(urls ...string) *Frontier {
	f := &Frontier{seen: make(map[string]struct{})}
	f.Add(urls...)
	return f
}

// Add appends every URL not seen before, in order, and returns the ones that
// were actually added. Dedup is exact string equality.
func (f *Frontier) Add(urls ...string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var added []string
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := f.seen[u]; ok {
			continue
		}
		f.seen[u] = struct{}{}
		f.urls = append(f.urls, u)
		added = append(added, u)
	}
	return added
}

// Seen reports whether u has ever been added.
func (f *Frontier) Seen(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[u]
	return ok
}

// Next returns the URL at the cursor and its 1-based position, advancing the
// cursor. ok is false once the fixpoint is reached.
func (f *Frontier) Next() (u string, index int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cursor >= len(f.urls) {
		return "", 0, false
	}
	u = f.urls[f.cursor]
	f.cursor++
	return u, f.cursor, true
}

// Drain returns every pending URL and moves the cursor to the end. The
// returned slice is a copy. start is the 1-based position of the first URL.
func (f *Frontier) Drain() (urls []string, start int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start = f.cursor + 1
	urls = append([]string(nil), f.urls[f.cursor:]...)
	f.cursor = len(f.urls)
	return urls, start
}

// Pending returns the number of URLs not yet handed out.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls) - f.cursor
}

// Len returns the number of URLs ever added.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

// Done reports whether the cursor has reached the end.
func (f *Frontier) Done() bool {
	return f.Pending() == 0
}

// URLs returns a copy of every URL in discovery order.
func (f *Frontier) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}
