package crawler

import "testing"

func TestFrontierOrder(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	f.Push("https://example.com/b", PriorityDefault)
	f.Push("https://example.com/privacy", PriorityPolicy)
	f.Push("https://example.com/", PriorityEntry)
	f.Push("https://example.com/c", PriorityDefault)
	f.Push("https://example.com/sitemap-page", PriorityEntry)

	want := []string{
		"https://example.com/",
		"https://example.com/sitemap-page",
		"https://example.com/privacy",
		"https://example.com/b",
		"https://example.com/c",
	}
	for i, w := range want {
		e, ok := f.Pop()
		if !ok {
			t.Fatalf("Pop %d: frontier empty", i)
		}
		if e.URL != w {
			t.Errorf("Pop %d = %q, expected %q", i, e.URL, w)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Error("expected empty frontier")
	}
}

func TestFrontierDedup(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	if !f.Push("https://example.com/a", PriorityDefault) {
		t.Fatal("first push rejected")
	}
	if f.Push("https://example.com/a", PriorityDefault) {
		t.Error("duplicate push accepted")
	}
	if f.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", f.Len())
	}

	e, _ := f.Pop()
	if !f.Visited(e.URL) {
		t.Error("popped URL not marked visited")
	}
	if f.Push("https://example.com/a", PriorityEntry) {
		t.Error("visited URL was re-enqueued")
	}
	if _, ok := f.Pop(); ok {
		t.Error("visited URL was popped twice")
	}
	if f.VisitedCount() != 1 {
		t.Errorf("VisitedCount() = %d, expected 1", f.VisitedCount())
	}
}

func TestFrontierPromotion(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	f.Push("https://example.com/x", PriorityDefault)
	f.Push("https://example.com/y", PriorityDefault)
	if !f.Push("https://example.com/y", PriorityPolicy) {
		t.Fatal("promotion rejected")
	}
	if f.Push("https://example.com/y", PriorityDefault) {
		t.Error("demotion accepted")
	}

	first, _ := f.Pop()
	if first.URL != "https://example.com/y" {
		t.Errorf("first Pop = %q, expected promoted URL", first.URL)
	}
	second, _ := f.Pop()
	if second.URL != "https://example.com/x" {
		t.Errorf("second Pop = %q", second.URL)
	}
	if _, ok := f.Pop(); ok {
		t.Error("stale entry was returned")
	}
}

func TestFrontierMarkVisited(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	f.Push("https://example.com/a", PriorityDefault)
	f.MarkVisited("https://example.com/a")
	if f.Len() != 0 {
		t.Errorf("Len() = %d after MarkVisited", f.Len())
	}
	if _, ok := f.Pop(); ok {
		t.Error("visited URL popped")
	}
}
