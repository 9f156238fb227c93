package crawler

import "container/heap"

// Priority orders frontier entries. Lower values are visited first.
type Priority int

const (
	// PriorityEntry is used for the entry page and sitemap URLs.
	PriorityEntry Priority = 0

	// PriorityPolicy is used for links whose text or URL mentions privacy,
	// cookies, legal terms and similar pages.
	PriorityPolicy Priority = 1

	// PriorityDefault is used for every other link.
	PriorityDefault Priority = 2
)

// Entry is one queued URL.
type Entry struct {
	URL      string
	Priority Priority
	seq      uint64
}

// entryHeap orders entries by priority, then insertion order.
type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Frontier is a priority queue of URLs with a visited set.
//
// Invariants:
//   - a URL is returned by Pop at most once
//   - a visited URL is never queued again
//
// URLs are compared verbatim; callers normalize them first.
// Frontier is not safe for concurrent use; a crawl owns its frontier.
type Frontier struct {
	heap    entryHeap
	queued  map[string]Priority
	visited map[string]bool
	seq     uint64
}

// NewFrontier returns an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		queued:  make(map[string]Priority),
		visited: make(map[string]bool),
	}
}

// Push queues url at priority p. It returns false when the URL was already
// visited or is already queued at the same or a better priority. A URL queued
// at a worse priority is promoted.
func (f *Frontier) Push(url string, p Priority) bool {
	if url == "" || f.visited[url] {
		return false
	}
	if existing, ok := f.queued[url]; ok && existing <= p {
		return false
	}
	f.queued[url] = p
	heap.Push(&f.heap, Entry{URL: url, Priority: p, seq: f.seq})
	f.seq++
	return true
}

// Pop removes the best entry, marks it visited and returns it.
// Stale entries left behind by promotions are discarded.
func (f *Frontier) Pop() (Entry, bool) {
	for f.heap.Len() > 0 {
		e := heap.Pop(&f.heap).(Entry)
		if f.visited[e.URL] {
			continue
		}
		if p, ok := f.queued[e.URL]; !ok || p != e.Priority {
			continue
		}
		delete(f.queued, e.URL)
		f.visited[e.URL] = true
		return e, true
	}
	return Entry{}, false
}

// MarkVisited records url as visited without popping it.
func (f *Frontier) MarkVisited(url string) {
	f.visited[url] = true
	delete(f.queued, url)
}

// Visited reports whether url was visited.
func (f *Frontier) Visited(url string) bool {
	return f.visited[url]
}

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// Len returns the number of distinct URLs waiting to be visited.
func (f *Frontier) Len() int {
	return len(f.queued)
}
