// Package main provides the entry point for the consentscan CLI.
//
// consentscan audits websites for cookie-consent compliance. It loads each
// page three times, before any consent choice, after rejecting and after
// accepting, and reports every cookie, third-party request and Web Storage
// item that appears where the visitor has not agreed to it.
//
// Usage:
//
//	consentscan scan <url>
//	consentscan compare <site>
//
// See --help for all available options.
package main

// main is the entry point for consentscan.
func main() {
	Execute()
}
