package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/consentscan/internal/retry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Logger: quiet}
}

func cookieRecord(name string, states ...model.ConsentState) model.CanonicalRecord {
	rec := model.NewCanonicalRecord(model.NewCookieObservation(model.CookiePayload{Name: name, Domain: ".example.com", Path: "/"}))
	for _, s := range states {
		rec.Observe(s, "https://example.com/")
	}
	return rec.Clone()
}

// recordingOracle answers every item with category and counts calls.
type recordingOracle struct {
	mu       sync.Mutex
	sizes    []int
	category model.Category
}

func (o *recordingOracle) Classify(_ context.Context, items []Item) ([]Result, error) {
	o.mu.Lock()
	o.sizes = append(o.sizes, len(items))
	o.mu.Unlock()
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{ID: it.ID, Category: o.category, Purpose: "measures " + it.Name}
	}
	return out, nil
}

func TestClassifyBatches(t *testing.T) {
	t.Parallel()

	records := make([]model.CanonicalRecord, 85)
	for i := range records {
		records[i] = cookieRecord(fmt.Sprintf("c%02d", i), model.StatePreConsent)
	}
	oracle := &recordingOracle{category: model.CategoryAnalytics}
	c := New(oracle, WithBatchDelay(0), WithRetryPolicy(fastPolicy(1)), WithLogger(quiet))

	got := c.Classify(context.Background(), records)

	if len(oracle.sizes) != 3 || oracle.sizes[0] != 40 || oracle.sizes[1] != 40 || oracle.sizes[2] != 5 {
		t.Errorf("batch sizes = %v, expected [40 40 5]", oracle.sizes)
	}
	if len(got) != len(records) {
		t.Fatalf("len = %d", len(got))
	}
	for i, rec := range got {
		if rec.Key != records[i].Key {
			t.Fatalf("record %d out of order", i)
		}
		if rec.Category != model.CategoryAnalytics || rec.Purpose != "measures "+rec.Observation.Name() {
			t.Errorf("record %d = %v %q", i, rec.Category, rec.Purpose)
		}
	}
}

func TestClassifyBatchSizeCapped(t *testing.T) {
	t.Parallel()

	records := make([]model.CanonicalRecord, 45)
	for i := range records {
		records[i] = cookieRecord(fmt.Sprintf("c%02d", i))
	}
	oracle := &recordingOracle{}
	New(oracle, WithBatchSize(500), WithBatchDelay(0), WithLogger(quiet)).Classify(context.Background(), records)
	if len(oracle.sizes) != 2 || oracle.sizes[0] != MaxBatchSize {
		t.Errorf("batch sizes = %v", oracle.sizes)
	}
}

func TestClassifyAllowlistPrecedence(t *testing.T) {
	t.Parallel()

	records := []model.CanonicalRecord{
		cookieRecord("OptanonConsent", model.StatePreConsent),
		cookieRecord("_ga", model.StatePreConsent),
	}
	var seen []string
	oracle := OracleFunc(func(_ context.Context, items []Item) ([]Result, error) {
		out := make([]Result, 0, len(items))
		for _, it := range items {
			seen = append(seen, it.Name)
			out = append(out, Result{ID: it.ID, Category: model.CategoryMarketing, Purpose: "ads"})
		}
		return out, nil
	})
	got := New(oracle, WithBatchDelay(0), WithLogger(quiet)).Classify(context.Background(), records)

	if len(seen) != 1 || seen[0] != "_ga" {
		t.Errorf("oracle saw %v, expected only _ga", seen)
	}
	if got[0].Category != model.CategoryNecessary {
		t.Errorf("OptanonConsent = %v, expected NECESSARY", got[0].Category)
	}
	if got[1].Category != model.CategoryMarketing {
		t.Errorf("_ga = %v", got[1].Category)
	}
}

func TestClassifyAllAllowlistedSkipsOracle(t *testing.T) {
	t.Parallel()

	oracle := OracleFunc(func(context.Context, []Item) ([]Result, error) {
		t.Error("oracle should not be called")
		return nil, nil
	})
	got := New(oracle, WithLogger(quiet)).Classify(context.Background(), []model.CanonicalRecord{cookieRecord("euconsent-v2")})
	if got[0].Category != model.CategoryNecessary {
		t.Errorf("Category = %v", got[0].Category)
	}
}

func TestClassifyGarbledResponsesDegrade(t *testing.T) {
	t.Parallel()

	records := make([]model.CanonicalRecord, 3)
	for i := range records {
		records[i] = cookieRecord(fmt.Sprintf("c%d", i), model.StatePreConsent)
	}
	var calls int
	oracle := OracleFunc(func(_ context.Context, items []Item) ([]Result, error) {
		calls++
		if items[0].Name == "c2" {
			return []Result{{ID: items[0].ID, Category: model.CategoryFunctional, Purpose: "prefs"}}, nil
		}
		return nil, fmt.Errorf("%w: not json", ErrMalformedResponse)
	})
	c := New(oracle, WithBatchSize(2), WithBatchDelay(0), WithRetryPolicy(fastPolicy(3)), WithLogger(quiet))

	got := c.Classify(context.Background(), records)

	if calls != 4 {
		t.Errorf("calls = %d, expected 3 attempts for the first batch and 1 for the second", calls)
	}
	for _, rec := range got[:2] {
		if rec.Category != model.CategoryUnknown || rec.Purpose != UnknownPurpose {
			t.Errorf("%s = %v %q, expected UNKNOWN", rec.Observation.Name(), rec.Category, rec.Purpose)
		}
	}
	if got[2].Category != model.CategoryFunctional {
		t.Errorf("second batch = %v, expected FUNCTIONAL", got[2].Category)
	}
}

func TestClassifyRetriesUnmatchedAnswers(t *testing.T) {
	t.Parallel()

	records := []model.CanonicalRecord{cookieRecord("_fbp")}
	var calls int
	oracle := OracleFunc(func(_ context.Context, items []Item) ([]Result, error) {
		calls++
		if calls == 1 {
			return []Result{{ID: "made-up", Category: model.CategoryNecessary}}, nil
		}
		return []Result{{ID: " " + items[0].ID + " ", Category: model.CategoryMarketing}}, nil
	})
	got := New(oracle, WithBatchDelay(0), WithRetryPolicy(fastPolicy(3)), WithLogger(quiet)).Classify(context.Background(), records)

	if calls != 2 {
		t.Errorf("calls = %d, expected 2", calls)
	}
	if got[0].Category != model.CategoryMarketing || got[0].Purpose != UnknownPurpose {
		t.Errorf("got %v %q", got[0].Category, got[0].Purpose)
	}
}

func TestClassifyOmittedItemsUnknown(t *testing.T) {
	t.Parallel()

	records := []model.CanonicalRecord{cookieRecord("a"), cookieRecord("b")}
	oracle := OracleFunc(func(_ context.Context, items []Item) ([]Result, error) {
		return []Result{{ID: items[1].ID, Category: model.CategoryAnalytics, Purpose: "stats"}}, nil
	})
	got := New(oracle, WithBatchDelay(0), WithLogger(quiet)).Classify(context.Background(), records)
	if got[0].Category != model.CategoryUnknown || got[1].Category != model.CategoryAnalytics {
		t.Errorf("got %v, %v", got[0].Category, got[1].Category)
	}
}

func TestClassifyCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	oracle := OracleFunc(func(context.Context, []Item) ([]Result, error) {
		return nil, errors.New("unreachable")
	})
	got := New(oracle, WithLogger(quiet)).Classify(ctx, []model.CanonicalRecord{cookieRecord("_ga")})
	if len(got) != 1 || got[0].Category != model.CategoryUnknown {
		t.Errorf("got %+v", got)
	}
}

func TestClassifyNilOracle(t *testing.T) {
	t.Parallel()

	got := New(nil, WithLogger(quiet)).Classify(context.Background(), []model.CanonicalRecord{cookieRecord("_ga")})
	if got[0].Category != model.CategoryUnknown {
		t.Errorf("Category = %v", got[0].Category)
	}
}

func TestItemOf(t *testing.T) {
	t.Parallel()

	rec := model.NewCanonicalRecord(model.NewRequestObservation(model.RequestPayload{
		URL:      "https://www.google-analytics.com/g/collect?v=2",
		Hostname: "www.google-analytics.com",
	}))
	rec.Observe(model.StatePostAcceptance, "https://example.com/")
	rec.Observe(model.StatePreConsent, "https://example.com/")

	item := ItemOf(rec.Clone())
	if item.Kind != model.KindRequest.String() || item.Name != "www.google-analytics.com" || item.URL == "" {
		t.Errorf("item = %+v", item)
	}
	if len(item.States) != 2 || item.States[0] != "PRE_CONSENT" {
		t.Errorf("States = %v", item.States)
	}
	if item.ID != rec.Key.ID() {
		t.Errorf("ID = %q", item.ID)
	}
}

func TestConsentInfrastructure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		obs  model.Observation
		want bool
	}{
		{"onetrust cookie", model.NewCookieObservation(model.CookiePayload{Name: "OptanonAlertBoxClosed"}), true},
		{"complianz prefix", model.NewCookieObservation(model.CookiePayload{Name: "cmplz_marketing"}), true},
		{"tcf storage", model.NewStorageObservation(model.StoragePayload{Key: "euconsent-v2"}), true},
		{"cmp host", model.NewRequestObservation(model.RequestPayload{Hostname: "cdn.cookielaw.org"}), true},
		{"lookalike host", model.NewRequestObservation(model.RequestPayload{Hostname: "notcookielaw.org"}), false},
		{"analytics cookie", model.NewCookieObservation(model.CookiePayload{Name: "_ga"}), false},
		{"empty", model.Observation{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			purpose, ok := ConsentInfrastructure(tt.obs)
			if ok != tt.want {
				t.Errorf("ConsentInfrastructure() = %v, expected %v", ok, tt.want)
			}
			if ok && purpose == "" {
				t.Error("matched without a purpose")
			}
		})
	}
}
