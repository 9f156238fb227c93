// Package database provides SQLite-based storage of scan history.
//
// ScanDB stores every scan report as JSON together with an index of the
// technologies it assessed, which lets the compare command diff two scans of
// a site and lets callers find every site where a technology violates
// consent.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file in the XDG data directory and the CGO-free
// driver keeps cross-compilation simple.
package database
