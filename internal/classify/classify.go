package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/consentscan/internal/model"
	"github.com/nao1215/consentscan/internal/retry"
)

// MaxBatchSize is the largest batch handed to an oracle in one call.
const MaxBatchSize = 40

// UnknownPurpose is the neutral purpose of records the oracle could not
// classify.
const UnknownPurpose = "Purpose could not be determined."

// ErrMalformedResponse is returned by oracles, and by the batch validation,
// when an answer cannot be used. It is retried like any transient failure.
var ErrMalformedResponse = errors.New("malformed oracle response")

// Item is one technology as presented to an oracle.
type Item struct {
	// ID is echoed back in the Result.
	ID string `json:"id"`

	// Kind is "cookie", "request" or "storage".
	Kind string `json:"kind"`

	// Name is the cookie name, the request hostname or the storage key.
	Name string `json:"name"`

	// Domain is the cookie domain, the request hostname or the storage origin.
	Domain string `json:"domain"`

	// URL is the full request URL. Empty for other kinds.
	URL string `json:"url,omitempty"`

	// States lists the consent states the technology was observed in.
	States []string `json:"states"`
}

// Result is an oracle's answer for one Item.
type Result struct {
	ID       string
	Category model.Category
	Purpose  string
}

// Oracle classifies a batch of items.
//
// Implementations may return results in any order and may omit items. An
// error or an unusable answer should be reported as an error so the caller
// can retry.
type Oracle interface {
	Classify(ctx context.Context, items []Item) ([]Result, error)
}

// ItemOf converts a canonical record to its oracle representation.
func ItemOf(rec model.CanonicalRecord) Item {
	obs := rec.Observation
	item := Item{
		ID:   rec.Key.ID(),
		Kind: obs.Kind.String(),
		Name: obs.Name(),
	}
	switch {
	case obs.Cookie != nil:
		item.Domain = obs.Cookie.Domain
	case obs.Request != nil:
		item.Domain = obs.Request.Hostname
		item.URL = obs.Request.URL
	case obs.Storage != nil:
		item.Domain = obs.Storage.Origin
	}
	for _, s := range rec.States.States() {
		item.States = append(item.States, s.String())
	}
	return item
}

// BatchClassifier classifies records through an Oracle.
type BatchClassifier struct {
	oracle    Oracle
	batchSize int
	policy    retry.Policy
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Option configures a BatchClassifier.
type Option func(*BatchClassifier)

// WithBatchSize sets the batch size, capped at MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(c *BatchClassifier) {
		c.batchSize = n
	}
}

// WithRetryPolicy sets the per-batch retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *BatchClassifier) {
		c.policy = p
	}
}

// WithBatchDelay sets the minimum interval between two oracle batches.
// Zero disables pacing.
func WithBatchDelay(d time.Duration) Option {
	return func(c *BatchClassifier) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *BatchClassifier) {
		c.logger = logger
	}
}

// New creates a BatchClassifier. The defaults are batches of MaxBatchSize,
// retry.DefaultPolicy and 500ms between batches.
func New(oracle Oracle, opts ...Option) *BatchClassifier {
	c := &BatchClassifier{
		oracle:    oracle,
		batchSize: MaxBatchSize,
		policy:    retry.DefaultPolicy(),
		limiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batchSize < 1 || c.batchSize > MaxBatchSize {
		c.batchSize = MaxBatchSize
	}
	if c.policy.Logger == nil {
		c.policy.Logger = c.logger
	}
	return c
}

// Classify returns one ClassifiedRecord per input record, in input order.
//
// It never fails: batches are processed sequentially and independently, and
// a batch whose oracle call keeps failing yields UNKNOWN records. A canceled
// ctx degrades the remaining batches the same way.
func (c *BatchClassifier) Classify(ctx context.Context, records []model.CanonicalRecord) []model.ClassifiedRecord {
	out := make([]model.ClassifiedRecord, len(records))
	var pending []int
	for i, rec := range records {
		out[i] = model.ClassifiedRecord{CanonicalRecord: rec, Category: model.CategoryUnknown, Purpose: UnknownPurpose}
		if purpose, ok := ConsentInfrastructure(rec.Observation); ok {
			out[i].Category = model.CategoryNecessary
			out[i].Purpose = purpose
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out
	}
	if c.oracle == nil {
		c.logger.Warn("no classification oracle configured", "records", len(pending))
		return out
	}

	batches := (len(pending) + c.batchSize - 1) / c.batchSize
	for b := 0; b < batches; b++ {
		lo := b * c.batchSize
		hi := min(lo+c.batchSize, len(pending))
		idx := pending[lo:hi]

		if err := c.wait(ctx); err != nil {
			c.logger.Warn("classification interrupted", "batch", b+1, "batches", batches, "error", err)
			return out
		}

		items := make([]Item, len(idx))
		for j, i := range idx {
			items[j] = ItemOf(records[i])
		}
		results, err := c.classifyBatch(ctx, items)
		if err != nil {
			c.logger.Warn("classification batch failed, marking items unknown",
				"batch", b+1,
				"batches", batches,
				"items", len(items),
				"error", err,
			)
			continue
		}
		for j, i := range idx {
			if r, ok := results[items[j].ID]; ok {
				out[i].Category = r.Category
				out[i].Purpose = r.Purpose
			}
		}
	}
	return out
}

func (c *BatchClassifier) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

// classifyBatch calls the oracle with retries and rejoins the answers by ID.
func (c *BatchClassifier) classifyBatch(ctx context.Context, items []Item) (map[string]Result, error) {
	want := make(map[string]bool, len(items))
	for _, it := range items {
		want[it.ID] = true
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) (map[string]Result, error) {
		results, err := c.oracle.Classify(ctx, items)
		if err != nil {
			return nil, err
		}
		joined := make(map[string]Result, len(results))
		for _, r := range results {
			id := strings.TrimSpace(r.ID)
			if !want[id] {
				continue
			}
			if _, dup := joined[id]; dup {
				continue
			}
			r.ID = id
			if strings.TrimSpace(r.Purpose) == "" {
				r.Purpose = UnknownPurpose
			}
			joined[id] = r
		}
		if len(joined) == 0 {
			return nil, fmt.Errorf("%w: no result matches the %d requested items", ErrMalformedResponse, len(items))
		}
		if missing := len(items) - len(joined); missing > 0 {
			c.logger.Debug("oracle omitted items", "missing", missing, "items", len(items))
		}
		return joined, nil
	})
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, items []Item) ([]Result, error)

// Classify calls f.
func (f OracleFunc) Classify(ctx context.Context, items []Item) ([]Result, error) {
	return f(ctx, items)
}
