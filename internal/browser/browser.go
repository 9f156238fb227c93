package browser

import (
	"context"
	"errors"
	"strings"
)

// ErrFrameDetached is returned when a frame or its execution context went away
// while a call was in flight. Dynamic pages remove iframes all the time, so
// callers usually treat it as "nothing here".
var ErrFrameDetached = errors.New("frame detached")

// ErrLaunch is returned when no browser could be started or connected to.
var ErrLaunch = errors.New("failed to launch browser")

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is an isolated browser context. Cookies and storage are shared by
// every page of the session and by nothing else.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Frame is a document that scripts can run in: the main page or an iframe.
type Frame interface {
	// URL returns the current document URL.
	URL(ctx context.Context) (string, error)

	// Evaluate runs js, a function expression, with args and decodes its
	// JSON-serializable result into out. Promises are awaited.
	// out may be nil when the result is not needed.
	Evaluate(ctx context.Context, js string, out any, args ...any) error
}

// Page is a browser tab.
type Page interface {
	Frame

	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current document and waits for the load event.
	Reload(ctx context.Context) error

	// Cookies returns every cookie of the session's cookie jar, including
	// httpOnly and third-party cookies.
	Cookies(ctx context.Context) ([]Cookie, error)

	// Screenshot returns a PNG of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	// HTML returns the rendered DOM serialized as HTML.
	HTML(ctx context.Context) (string, error)

	// Frames returns the child frames that are currently attached.
	Frames(ctx context.Context) ([]Frame, error)

	// OnRequest calls fn for every network request the page issues until the
	// returned stop function is called. stop is idempotent.
	OnRequest(fn func(RequestEvent)) (stop func())
}

// Cookie is a browser cookie as reported by the cookie jar.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	Session  bool
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// RequestEvent describes one outgoing network request.
type RequestEvent struct {
	URL          string
	ResourceType string
}

// detachedMarkers are substrings of DevTools protocol errors that mean the
// target frame or its execution context no longer exists.
var detachedMarkers = []string{
	"detached",
	"context was destroyed",
	"cannot find context",
	"no frame with given id",
	"target closed",
}

// IsDetached reports whether err means the frame went away.
func IsDetached(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFrameDetached) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range detachedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
