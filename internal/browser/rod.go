package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodLauncher launches Chrome through go-rod.
type RodLauncher struct {
	headless   bool
	bin        string
	controlURL string
	noSandbox  bool
	userAgent  string
	viewportW  int
	viewportH  int
	logger     *slog.Logger
}

// RodOption configures a RodLauncher.
type RodOption func(*RodLauncher)

// WithHeadless toggles headless mode. Default is true.
func WithHeadless(headless bool) RodOption {
	return func(l *RodLauncher) {
		l.headless = headless
	}
}

// WithBrowserBin sets the Chrome binary. Empty lets go-rod find or download one.
func WithBrowserBin(bin string) RodOption {
	return func(l *RodLauncher) {
		l.bin = bin
	}
}

// WithControlURL connects to an already running browser instead of launching.
func WithControlURL(u string) RodOption {
	return func(l *RodLauncher) {
		l.controlURL = u
	}
}

// WithNoSandbox disables the Chrome sandbox, needed when running as root in
// containers.
func WithNoSandbox(noSandbox bool) RodOption {
	return func(l *RodLauncher) {
		l.noSandbox = noSandbox
	}
}

// WithUserAgent overrides the browser User-Agent.
func WithUserAgent(ua string) RodOption {
	return func(l *RodLauncher) {
		l.userAgent = ua
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(logger *slog.Logger) RodOption {
	return func(l *RodLauncher) {
		l.logger = logger
	}
}

// NewRodLauncher creates a launcher with the given options.
func NewRodLauncher(opts ...RodOption) *RodLauncher {
	l := &RodLauncher{
		headless:  true,
		viewportW: 1366,
		viewportH: 768,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts (or connects to) a browser and opens an incognito context.
// Every resource acquired here is released by Session.Close; on error the
// partially acquired resources are released before returning.
func (l *RodLauncher) Launch(ctx context.Context) (Session, error) {
	var lnch *launcher.Launcher
	controlURL := l.controlURL
	if controlURL == "" {
		lnch = launcher.New().Headless(l.headless).NoSandbox(l.noSandbox)
		if l.bin != "" {
			lnch = lnch.Bin(l.bin)
		}
		u, err := lnch.Context(ctx).Launch()
		if err != nil {
			lnch.Kill()
			return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("%w: connect: %w", ErrLaunch, err)
	}

	incognito, err := b.Incognito()
	if err != nil {
		_ = b.Close()
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("%w: incognito context: %w", ErrLaunch, err)
	}

	l.logger.Debug("browser session started", "control_url", controlURL)
	return &rodSession{
		launcher:  l,
		lnch:      lnch,
		root:      b,
		incognito: incognito,
	}, nil
}

// rodSession owns one browser process (or connection) and one incognito context.
type rodSession struct {
	launcher  *RodLauncher
	lnch      *launcher.Launcher
	root      *rod.Browser
	incognito *rod.Browser

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	p, err := s.incognito.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.launcher.viewportW,
		Height:            s.launcher.viewportH,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(p); err != nil {
		s.launcher.logger.Debug("failed to set viewport", "error", err)
	}
	if s.launcher.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.launcher.userAgent}); err != nil {
			s.launcher.logger.Debug("failed to set user agent", "error", err)
		}
	}
	return &rodPage{rodFrame: rodFrame{page: p}, browser: s.incognito}, nil
}

// Close disposes the incognito context, closes the browser and removes the
// launcher's profile directory. It is safe to call more than once.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.incognito.Close(); err != nil {
			s.launcher.logger.Debug("failed to close incognito context", "error", err)
		}
		s.closeErr = s.root.Close()
		if s.lnch != nil {
			s.lnch.Kill()
			s.lnch.Cleanup()
		}
	})
	return s.closeErr
}

// rodFrame adapts a *rod.Page (main document or iframe) to Frame.
type rodFrame struct {
	page *rod.Page
}

func (f rodFrame) URL(ctx context.Context) (string, error) {
	var href string
	if err := f.Evaluate(ctx, `() => location.href`, &href); err != nil {
		return "", err
	}
	return href, nil
}

func (f rodFrame) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	res, err := f.page.Context(ctx).Evaluate(rod.Eval(js, args...).ByPromise())
	if err != nil {
		return classify(err)
	}
	if out == nil || res == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// rodPage adapts a top-level *rod.Page to Page.
type rodPage struct {
	rodFrame

	// browser is the incognito context the page belongs to.
	browser *rod.Browser
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) Reload(ctx context.Context) error {
	page := p.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load after reload: %w", err)
	}
	return nil
}

// Cookies reads the incognito context's cookie jar through the Storage domain,
// which includes httpOnly cookies and cookies of every domain.
func (p *rodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			Session:  c.Session,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return img, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (p *rodPage) Frames(ctx context.Context) ([]Frame, error) {
	elements, err := p.page.Context(ctx).Elements("iframe, frame")
	if err != nil {
		return nil, classify(err)
	}
	frames := make([]Frame, 0, len(elements))
	for _, el := range elements {
		fp, err := el.Frame()
		if err != nil {
			// Cross-origin or detached frames that cannot be entered are skipped.
			continue
		}
		frames = append(frames, rodFrame{page: fp})
	}
	return frames, nil
}

// OnRequest subscribes to Network.requestWillBeSent. go-rod enables the
// Network domain for the lifetime of the subscription.
func (p *rodPage) OnRequest(fn func(RequestEvent)) func() {
	page, cancel := p.page.WithCancel()
	wait := page.EachEvent(func(ev *proto.NetworkRequestWillBeSent) {
		if ev.Request == nil {
			return
		}
		fn(RequestEvent{URL: ev.Request.URL, ResourceType: string(ev.Type)})
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// classify maps DevTools errors about vanished frames to ErrFrameDetached.
func classify(err error) error {
	if IsDetached(err) {
		return fmt.Errorf("%w: %w", ErrFrameDetached, err)
	}
	return err
}
