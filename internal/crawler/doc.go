// Package crawler drives a browser page through a bounded, priority-ordered
// crawl of one site while establishing and recording consent state.
//
// # Architecture
//
// A crawl is a small state machine: INIT, CRAWLING, DONE.
//
//   - INIT seeds the Frontier with the entry URL and, when a sitemap source
//     is configured, the site's sitemap URLs (both at priority 0).
//   - CRAWLING pops the lowest priority, oldest entry until the frontier is
//     empty or the page budget is spent. The first page that loads runs the
//     full consent sequence: observe before consent, reject and observe,
//     reload, accept and observe. Every later page gets one observation pass
//     in the accepted state. Same-site links of each visited page are pushed
//     back onto the frontier.
//   - DONE hands the aggregated canonical records to the caller.
//
// Design decision: We crawl serially through a single page. Consent is
// established once on the entry page and carried by the browser context for
// the rest of the session, which only works if navigation is sequential.
//
// # Failure policy
//
// A page that fails to load is logged and skipped. Failure to load the entry
// page is fatal (ErrEntryPageUnreachable). A canceled context or a progress
// sink that returns an error stops the loop (ErrCrawlAborted).
//
// # Usage
//
//	c := crawler.New(consent.NewDriver(), collector.New(), crawler.WithMaxPages(10))
//	result, err := c.Crawl(ctx, page, "https://www.example.com")
package crawler
