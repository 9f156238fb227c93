// Package pipeline runs a scan through its stages: crawl the site in every
// consent state, classify what was observed, resolve compliance verdicts,
// assemble the report, and store it in the scan history.
//
// Each stage is a Step that reads and extends a shared Scan. DefaultPipeline
// wires the standard stages; BatchProcessor runs independent scans of several
// targets concurrently using errgroup.
//
// Design decision: Every scan launches its own browser session inside
// CrawlStep and releases it before the step returns, whatever the outcome.
// Scans in a batch therefore never share cookies or storage.
package pipeline
