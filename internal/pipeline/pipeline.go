package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/consentscan/internal/crawler"
	"github.com/nao1215/consentscan/internal/model"
)

// Scan is the state of one scan as it moves through the pipeline.
// Every step reads what earlier steps produced and adds its own output.
type Scan struct {
	// ID uniquely identifies the scan. It becomes the report ID.
	ID string

	// Target is the URL the scan was requested for.
	Target string

	// StartedAt is when the scan was created.
	StartedAt time.Time

	// Crawl is the crawl outcome, set by CrawlStep.
	Crawl *crawler.Result

	// Classified holds the categorized records, set by ClassifyStep.
	Classified []model.ClassifiedRecord

	// Verdicts holds the resolved records, set by VerdictStep.
	Verdicts []model.VerdictRecord

	// Report is the final report, set by AssembleStep.
	Report *model.ScanReport

	// ReportID is the history database ID, set by SaveStep.
	ReportID int64

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string

	// Err is the error that stopped the scan, if any.
	Err error
}

// NewScan creates the state for a scan of target with a fresh random ID.
func NewScan(target string) *Scan {
	return &Scan{
		ID:             uuid.NewString(),
		Target:         target,
		StartedAt:      time.Now(),
		PerformedSteps: make([]string, 0),
	}
}

// Failed reports whether the scan stopped with an error.
func (s *Scan) Failed() bool {
	return s.Err != nil
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the scan state
// accumulated by previous steps.
//
// Design decision: We use an interface rather than function types because
// steps carry their own collaborators (launcher, classifier, store) and the
// Name() method keeps logging uniform.
type Step interface {
	// Do executes the pipeline step.
	// It returns an error only if the scan cannot go on; recoverable
	// problems are handled inside the step.
	Do(ctx context.Context, scan *Scan) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is kept in Scan.Err.
//
// Design decision: The default is to stop, because every later step needs
// the output of the failed one. The option exists for custom pipelines
// whose steps are independent.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
// It respects context cancellation and logs each step's execution.
//
// Design decision: We check ctx.Done() before each step rather than during,
// because steps handle their own timeouts and release their own resources.
//
// Returns the first error encountered if continueOnError is false,
// or nil if all steps complete.
func (p *Pipeline) Execute(ctx context.Context, scan *Scan) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"target", scan.Target,
				"reason", ctx.Err(),
			)
			scan.Err = ctx.Err()
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"target", scan.Target,
		)

		if err := step.Do(ctx, scan); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"target", scan.Target,
				"error", err,
			)

			if scan.Err == nil {
				scan.Err = err
			}
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"target", scan.Target,
			)
		}

		scan.PerformedSteps = append(scan.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
