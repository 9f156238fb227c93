package crawler

import "errors"

var (
	// ErrInvalidStartURL is returned when the start URL cannot be crawled.
	ErrInvalidStartURL = errors.New("invalid start url")

	// ErrEntryPageUnreachable is returned when the entry page fails to load.
	ErrEntryPageUnreachable = errors.New("entry page unreachable")

	// ErrCrawlAborted is returned when the context is canceled or the
	// progress sink fails mid-crawl.
	ErrCrawlAborted = errors.New("crawl aborted")
)
