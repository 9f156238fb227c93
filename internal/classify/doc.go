// Package classify assigns a category and a purpose to every canonical record.
//
// Classification is delegated to an Oracle in bounded batches. The oracle is
// untrusted: its answers are rejoined by echoed identifier, malformed answers
// are retried with backoff, and a batch that keeps failing degrades to
// UNKNOWN rather than failing the scan.
//
// Known consent-platform cookies and storage keys are classified NECESSARY
// before the oracle is consulted, and that decision is never overridden by an
// oracle answer.
package classify
