package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/consentscan/internal/assemble"
	"github.com/nao1215/consentscan/internal/browser"
	"github.com/nao1215/consentscan/internal/browser/browsertest"
	"github.com/nao1215/consentscan/internal/crawler"
	"github.com/nao1215/consentscan/internal/database"
	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/consentscan/internal/oracle"
	"github.com/nao1215/consentscan/internal/retry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeCrawler struct {
	result *crawler.Result
	err    error
	page   browser.Page
}

func (f *fakeCrawler) Crawl(_ context.Context, page browser.Page, _ string) (*crawler.Result, error) {
	f.page = page
	return f.result, f.err
}

type failingStore struct{}

func (failingStore) SaveScanReport(context.Context, *model.ScanReport) (int64, error) {
	return 0, errors.New("disk full")
}

// TestCrawlStep tests session handling around the crawl.
func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("stores the result and closes the session", func(t *testing.T) {
		t.Parallel()

		launcher := &browsertest.Launcher{Page: browsertest.NewPage()}
		fc := &fakeCrawler{result: &crawler.Result{PagesScanned: 1}}
		step := NewCrawlStep(launcher, fc, quiet)

		scan := NewScan("https://example.com")
		if err := step.Do(context.Background(), scan); err != nil {
			t.Fatalf("Do: %v", err)
		}
		if scan.Crawl != fc.result {
			t.Error("crawl result not stored")
		}
		if fc.page != launcher.Page {
			t.Error("crawler did not receive the session page")
		}
		sessions := launcher.Sessions()
		if len(sessions) != 1 || !sessions[0].Closed() {
			t.Error("session was not closed")
		}
		if step.Name() != "crawl" {
			t.Errorf("Name() = %q", step.Name())
		}
	})

	t.Run("launch failure is fatal", func(t *testing.T) {
		t.Parallel()

		launcher := &browsertest.Launcher{LaunchErr: errors.New("no chrome")}
		step := NewCrawlStep(launcher, &fakeCrawler{}, quiet)

		err := step.Do(context.Background(), NewScan("https://example.com"))
		if !errors.Is(err, ErrBrowserLaunch) {
			t.Errorf("err = %v, expected ErrBrowserLaunch", err)
		}
	})

	t.Run("page failure closes the session", func(t *testing.T) {
		t.Parallel()

		launcher := &browsertest.Launcher{PageErr: errors.New("target closed")}
		step := NewCrawlStep(launcher, &fakeCrawler{}, quiet)

		err := step.Do(context.Background(), NewScan("https://example.com"))
		if !errors.Is(err, ErrBrowserLaunch) {
			t.Errorf("err = %v, expected ErrBrowserLaunch", err)
		}
		if !launcher.Sessions()[0].Closed() {
			t.Error("session was not closed")
		}
	})

	t.Run("crawl failure closes the session", func(t *testing.T) {
		t.Parallel()

		launcher := &browsertest.Launcher{Page: browsertest.NewPage()}
		step := NewCrawlStep(launcher, &fakeCrawler{err: crawler.ErrEntryPageUnreachable}, quiet)

		scan := NewScan("https://example.com")
		err := step.Do(context.Background(), scan)
		if !errors.Is(err, crawler.ErrEntryPageUnreachable) {
			t.Errorf("err = %v", err)
		}
		if scan.Crawl != nil {
			t.Error("failed crawl stored a result")
		}
		if !launcher.Sessions()[0].Closed() {
			t.Error("session was not closed")
		}
	})
}

// TestStepsRequireInput tests steps running out of order.
func TestStepsRequireInput(t *testing.T) {
	t.Parallel()

	steps := []Step{
		NewClassifyStep(nil),
		NewVerdictStep(),
		NewAssembleStep(nil),
		NewSaveStep(failingStore{}, quiet),
	}
	for _, step := range steps {
		t.Run(step.Name(), func(t *testing.T) {
			t.Parallel()
			if err := step.Do(context.Background(), NewScan("https://example.com")); !errors.Is(err, ErrMissingInput) {
				t.Errorf("err = %v, expected ErrMissingInput", err)
			}
		})
	}
}

// TestSaveStepFailureIsNotFatal tests that history errors keep the report.
func TestSaveStepFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	scan := NewScan("https://example.com")
	scan.Report = model.NewScanReport(scan.ID, scan.Target)

	if err := NewSaveStep(failingStore{}, quiet).Do(context.Background(), scan); err != nil {
		t.Errorf("Do: %v", err)
	}
	if scan.ReportID != 0 {
		t.Errorf("ReportID = %d", scan.ReportID)
	}
}

type flakyAssessor struct {
	calls int
}

func (f *flakyAssessor) AssessRisk(context.Context, assemble.RiskInput) (map[string]model.RegulationRisk, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("503")
	}
	return map[string]model.RegulationRisk{"GDPR": {Level: model.RiskLow}}, nil
}

// TestRetryingAssessor tests that risk assessment is retried.
func TestRetryingAssessor(t *testing.T) {
	t.Parallel()

	next := &flakyAssessor{}
	r := retryingAssessor{next: next, policy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: quiet}}

	risks, err := r.AssessRisk(context.Background(), assemble.RiskInput{})
	if err != nil {
		t.Fatalf("AssessRisk: %v", err)
	}
	if next.calls != 2 || risks["GDPR"].Level != model.RiskLow {
		t.Errorf("calls = %d, risks = %v", next.calls, risks)
	}
}

// TestDefaultPipelineSteps tests the default step order.
func TestDefaultPipelineSteps(t *testing.T) {
	t.Parallel()

	t.Run("without store", func(t *testing.T) {
		t.Parallel()
		p := DefaultPipeline(&browsertest.Launcher{}, oracle.NewStatic(), nil, []Option{WithLogger(quiet)})
		got := strings.Join(p.StepNames(), ",")
		if got != "crawl,classify,verdict,assemble" {
			t.Errorf("StepNames() = %s", got)
		}
	})

	t.Run("with store", func(t *testing.T) {
		t.Parallel()
		p := DefaultPipeline(&browsertest.Launcher{}, oracle.NewStatic(), failingStore{}, []Option{WithLogger(quiet)})
		if names := p.StepNames(); names[len(names)-1] != "save" {
			t.Errorf("StepNames() = %v", names)
		}
	})
}

// TestDefaultPipelineEndToEnd scans a one-page site that sets an analytics
// cookie before any consent choice.
func TestDefaultPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	page := browsertest.NewPage()
	page.Documents["https://www.example.com/"] = &browsertest.Document{HTML: `<p>shop</p>`}
	page.Image = []byte("png")
	page.EvalFunc = func(js string, args []any) (any, error) {
		switch {
		case strings.Contains(js, "el.click()"):
			return true, nil
		case strings.Contains(js, "querySelectorAll(sel)).map"):
			return []string{"reject all", "accept all"}, nil
		case strings.Contains(js, "localStorage"):
			return map[string]any{"origin": "https://www.example.com", "href": "https://www.example.com/"}, nil
		default:
			return nil, nil
		}
	}
	page.AfterLoad = func(p *browsertest.Page, _ string) {
		p.SetCookie(browser.Cookie{Name: "_ga", Domain: ".example.com", Path: "/", Expires: float64(time.Now().Add(400 * 24 * time.Hour).Unix())})
	}
	launcher := &browsertest.Launcher{Page: page}

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var stages []string
	p := DefaultPipeline(launcher, oracle.NewStatic(), db,
		[]Option{WithLogger(quiet)},
		WithPipelineMaxPages(1),
		WithPipelineTimeouts(5*time.Second, 0, 0),
		WithPipelineOracle(5*time.Second, 1, time.Millisecond, 0),
		WithPipelineSitemap(false),
		WithPipelineProgress(func(ev crawler.Event) error {
			if ev.Kind == crawler.EventStage {
				stages = append(stages, ev.Stage)
			}
			return nil
		}),
	)

	scan := NewScan("https://www.example.com/")
	if err := p.Execute(context.Background(), scan); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	report := scan.Report
	if report == nil {
		t.Fatal("no report")
	}
	if report.ID != scan.ID || report.RootDomain != "example.com" {
		t.Errorf("report identity = (%q, %q)", report.ID, report.RootDomain)
	}
	if !report.ConsentBannerDetected || report.PagesScanned != 1 {
		t.Errorf("banner = %v, pages = %d", report.ConsentBannerDetected, report.PagesScanned)
	}
	if len(report.Cookies) != 1 {
		t.Fatalf("Cookies = %+v", report.Cookies)
	}
	ga := report.Cookies[0]
	if ga.Category != model.CategoryAnalytics || ga.Status != model.StatusPreConsentViolation {
		t.Errorf("_ga = %v / %v", ga.Category, ga.Status)
	}
	if ga.Party != model.PartyFirst {
		t.Errorf("Party = %v", ga.Party)
	}
	if report.Summary.PreConsentViolations != 1 {
		t.Errorf("Summary = %+v", report.Summary)
	}
	for _, reg := range assemble.Regulations {
		if _, ok := report.Regulations[reg]; !ok {
			t.Errorf("missing %s assessment", reg)
		}
	}
	if len(stages) == 0 || stages[0] != "INIT" {
		t.Errorf("stages = %v", stages)
	}

	if scan.ReportID == 0 {
		t.Error("report was not saved")
	}
	stored, err := db.GetLatestScanReport(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("GetLatestScanReport: %v", err)
	}
	if stored.ID != scan.ID {
		t.Errorf("stored ID = %q", stored.ID)
	}
	if !launcher.Sessions()[0].Closed() {
		t.Error("browser session was not closed")
	}
}
