// Package model defines the core data structures used throughout consentscan.
//
// This package contains the following main types:
//   - ConsentState / StateSet: the consent lifecycle phase of an observation
//   - Observation: one detection of a cookie, off-site request, or storage item
//   - CanonicalRecord: the merged identity of one technology across a crawl
//   - ClassifiedRecord / VerdictRecord: records enriched by the classifier and
//     the verdict resolver
//   - ScanReport: the terminal, externally reported structure
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, aggregator, classifier, and report writers all
// share these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
