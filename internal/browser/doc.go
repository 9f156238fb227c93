// Package browser defines the headless-browser capability the crawler needs
// and a go-rod implementation of it.
//
// # Capability
//
// The crawler, consent driver and collector only depend on the interfaces in
// this package:
//
//   - Launcher starts a Session (one isolated browser context per scan)
//   - Session opens Pages and must always be closed
//   - Page navigates, reloads, reads the full cookie jar, takes screenshots,
//     enumerates child frames and streams network requests
//   - Frame evaluates scripts in page context
//
// Design decision: We hide go-rod behind interfaces so that every crawl
// scenario can be tested with the in-memory fakes in browsertest, without a
// Chrome binary.
//
// # Usage
//
//	launcher := browser.NewRodLauncher(browser.WithHeadless(true))
//	session, err := launcher.Launch(ctx)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//	page, err := session.NewPage(ctx)
package browser
