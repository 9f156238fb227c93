// Package browsertest provides in-memory implementations of the browser
// capability for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nao1215/consentscan/internal/browser"
)

// Frame is a scripted browser.Frame.
// EvalFunc receives every Evaluate call; its result is round-tripped through
// JSON into the caller's out value, like a real page would.
type Frame struct {
	mu       sync.Mutex
	Href     string
	EvalFunc func(js string, args []any) (any, error)
	evals    int
}

var _ browser.Frame = (*Frame)(nil)

// URL returns Href.
func (f *Frame) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Href, nil
}

// Evaluate dispatches to EvalFunc.
func (f *Frame) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.evals++
	fn := f.EvalFunc
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	res, err := fn(js, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Evals returns how many scripts were evaluated in the frame.
func (f *Frame) Evals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evals
}

// Document is one resource of a fake site.
type Document struct {
	HTML string

	// Requests are emitted to OnRequest subscribers every time the document
	// is loaded or reloaded.
	Requests []browser.RequestEvent
}

// Page is a fake browser.Page backed by a map of documents.
type Page struct {
	Frame

	mu sync.Mutex

	// Documents maps URLs to their content. Navigating to a URL that is not
	// present fails with ErrNotFound.
	Documents map[string]*Document

	// Jar is the session cookie jar.
	Jar []browser.Cookie

	// ChildFrames are returned by Frames.
	ChildFrames []browser.Frame

	// Image is returned by Screenshot.
	Image []byte

	NavigateErr   map[string]error
	ReloadErr     error
	CookiesErr    error
	FramesErr     error
	ScreenshotErr error

	// AfterLoad runs after every successful Navigate or Reload with the
	// loaded URL. Tests use it to set cookies as a site would.
	AfterLoad func(p *Page, url string)

	navigations []string
	reloads     int
	listeners   map[int]func(browser.RequestEvent)
	nextID      int
}

var _ browser.Page = (*Page)(nil)

// ErrNotFound is returned by Navigate for unknown URLs.
var ErrNotFound = errors.New("browsertest: document not found")

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{
		Documents:   make(map[string]*Document),
		NavigateErr: make(map[string]error),
		listeners:   make(map[int]func(browser.RequestEvent)),
	}
}

func (p *Page) load(url string) {
	p.mu.Lock()
	doc := p.Documents[url]
	var listeners []func(browser.RequestEvent)
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	after := p.AfterLoad
	p.mu.Unlock()

	if doc != nil {
		for _, req := range doc.Requests {
			for _, l := range listeners {
				l(req)
			}
		}
	}
	if after != nil {
		after(p, url)
	}
}

// Navigate loads url.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	if err := p.NavigateErr[url]; err != nil {
		p.mu.Unlock()
		return err
	}
	if _, ok := p.Documents[url]; !ok {
		p.mu.Unlock()
		return ErrNotFound
	}
	p.mu.Unlock()

	p.Frame.mu.Lock()
	p.Href = url
	p.Frame.mu.Unlock()

	p.load(url)
	return nil
}

// Reload reloads the current document.
func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.reloads++
	err := p.ReloadErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	href, _ := p.URL(ctx)
	p.load(href)
	return nil
}

// Cookies returns a copy of Jar.
func (p *Page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CookiesErr != nil {
		return nil, p.CookiesErr
	}
	return append([]browser.Cookie(nil), p.Jar...), nil
}

// SetCookie adds or replaces a cookie with the same name, domain and path.
func (p *Page) SetCookie(c browser.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, old := range p.Jar {
		if old.Name == c.Name && old.Domain == c.Domain && old.Path == c.Path {
			p.Jar[i] = c
			return
		}
	}
	p.Jar = append(p.Jar, c)
}

// Screenshot returns Image.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Image, p.ScreenshotErr
}

// HTML returns the current document's HTML.
func (p *Page) HTML(ctx context.Context) (string, error) {
	href, err := p.URL(ctx)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if doc := p.Documents[href]; doc != nil {
		return doc.HTML, nil
	}
	return "", nil
}

// Frames returns ChildFrames.
func (p *Page) Frames(ctx context.Context) ([]browser.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FramesErr != nil {
		return nil, p.FramesErr
	}
	return append([]browser.Frame(nil), p.ChildFrames...), nil
}

// OnRequest registers fn until stop is called.
func (p *Page) OnRequest(fn func(browser.RequestEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// Listeners returns the number of active request subscriptions.
func (p *Page) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Navigations returns every URL passed to Navigate, in order.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Reloads returns how many times Reload was called.
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Launcher hands out sessions that all share Page.
type Launcher struct {
	mu sync.Mutex

	Page      *Page
	LaunchErr error
	PageErr   error

	sessions []*Session
}

var _ browser.Launcher = (*Launcher)(nil)

// Launch returns a new Session or LaunchErr.
func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	s := &Session{page: l.Page, pageErr: l.PageErr}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Sessions returns every session launched so far.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Session is a fake browser.Session.
type Session struct {
	mu      sync.Mutex
	page    *Page
	pageErr error
	closes  int
}

var _ browser.Session = (*Session)(nil)

// NewPage returns the launcher's page.
func (s *Session) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	if s.page == nil {
		return NewPage(), nil
	}
	return s.page, nil
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closed reports whether Close was called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}
