// Package domain provides site-identity helpers built on the public suffix
// list: registrable domain (eTLD+1) computation, same-site tests, URL
// normalization for crawl deduplication, and first/third-party cookie
// attribution.
//
// Design decision: We use golang.org/x/net/publicsuffix rather than "last two
// labels" because hosts such as www.example.co.uk and foo.github.io would
// otherwise be attributed to the wrong site.
package domain
