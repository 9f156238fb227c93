// Package assemble turns verdict records into the final scan report.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/consentscan/internal/domain"
	"github.com/nao1215/consentscan/internal/model"
)

// ErrRiskAssessment is returned when the aggregate risk call fails.
// The scan cannot produce a complete report without it.
var ErrRiskAssessment = errors.New("regulation risk assessment failed")

// NoTrackingAssessment is the assessment of a scan that observed nothing.
const NoTrackingAssessment = "No tracking technologies detected."

// Regulations are the regulations every report carries a risk for.
var Regulations = []string{"GDPR", "ePrivacy", "CCPA"}

// Violation is one violating technology as presented to a RiskAssessor.
type Violation struct {
	Kind     string                 `json:"kind"`
	Name     string                 `json:"name"`
	Domain   string                 `json:"domain"`
	Category model.Category         `json:"category"`
	Status   model.ComplianceStatus `json:"compliance_status"`
}

// RiskInput is what the aggregate risk assessment is computed from.
type RiskInput struct {
	Target         string        `json:"target"`
	PagesScanned   int           `json:"pages_scanned"`
	BannerDetected bool          `json:"consent_banner_detected"`
	Summary        model.Summary `json:"summary"`
	Violations     []Violation   `json:"violations"`
}

// RiskAssessor produces per-regulation risk from violation counts.
type RiskAssessor interface {
	AssessRisk(ctx context.Context, in RiskInput) (map[string]model.RegulationRisk, error)
}

// BaselineLevel maps violation counts to a risk level without an oracle.
// Pre-consent violations weigh double because they affect every visitor.
func BaselineLevel(s model.Summary) model.RiskLevel {
	score := s.PreConsentViolations*2 + s.PostRejectionViolations
	switch {
	case score == 0:
		return model.RiskNone
	case score <= 2:
		return model.RiskLow
	case score <= 6:
		return model.RiskMedium
	case score <= 14:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

// Input is the crawl outcome joined with its verdicts.
type Input struct {
	ID             string
	Target         string
	RootDomain     string
	StartedAt      time.Time
	PagesScanned   int
	VisitedPages   []string
	BannerDetected bool
	Frameworks     []string
	Screenshot     []byte
	Records        []model.VerdictRecord
}

// Assembler builds scan reports.
type Assembler struct {
	assessor RiskAssessor
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock sets the time source used for expiry bucketing and durations.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// New creates an Assembler.
func New(assessor RiskAssessor, opts ...Option) *Assembler {
	a := &Assembler{
		assessor: assessor,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the report. Technologies keep the order of in.Records.
//
// A scan without records gets a "no technology detected" assessment for every
// regulation without consulting the assessor. Otherwise an assessor failure
// is returned as ErrRiskAssessment.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*model.ScanReport, error) {
	now := a.now()
	report := model.NewScanReport(in.ID, in.Target)
	if !in.StartedAt.IsZero() {
		report.DateScanned = in.StartedAt
		report.Duration = now.Sub(in.StartedAt)
	}
	report.RootDomain = in.RootDomain
	report.PagesScanned = in.PagesScanned
	report.VisitedPages = append(report.VisitedPages, in.VisitedPages...)
	report.ConsentBannerDetected = in.BannerDetected
	report.ConsentFrameworks = append(report.ConsentFrameworks, in.Frameworks...)
	report.Screenshot = in.Screenshot

	var violations []Violation
	for _, rec := range in.Records {
		assessment := assessmentOf(rec)
		report.Summary.Add(rec.Category, rec.Status)
		obs := rec.Observation

		switch {
		case obs.Cookie != nil:
			c := obs.Cookie
			expiry, bucket := ExpiryOf(c.Expires, c.Session, now)
			report.Cookies = append(report.Cookies, model.CookieEntry{
				Name:         c.Name,
				Domain:       c.Domain,
				Path:         c.Path,
				Party:        domain.Party(c.Domain, in.RootDomain),
				Expiry:       expiry,
				ExpiryBucket: bucket,
				Secure:       c.Secure,
				HTTPOnly:     c.HTTPOnly,
				SameSite:     c.SameSite,
				Assessment:   assessment,
			})
		case obs.Request != nil:
			r := obs.Request
			report.Trackers = append(report.Trackers, model.TrackerEntry{
				URL:          r.URL,
				Hostname:     r.Hostname,
				ResourceType: r.ResourceType,
				Assessment:   assessment,
			})
		case obs.Storage != nil:
			s := obs.Storage
			report.Storage = append(report.Storage, model.StorageEntry{
				Area:       s.Area,
				Origin:     s.Origin,
				Key:        s.Key,
				Value:      s.Value,
				PageURL:    s.PageURL,
				Assessment: assessment,
			})
		default:
			continue
		}

		if rec.Status.IsViolation() {
			violations = append(violations, Violation{
				Kind:     obs.Kind.String(),
				Name:     obs.Name(),
				Domain:   scopeOf(obs),
				Category: rec.Category,
				Status:   rec.Status,
			})
		}
	}

	risks, err := a.assess(ctx, in, report, violations)
	if err != nil {
		return nil, err
	}
	report.Regulations = risks
	return report, nil
}

func (a *Assembler) assess(ctx context.Context, in Input, report *model.ScanReport, violations []Violation) (map[string]model.RegulationRisk, error) {
	risks := make(map[string]model.RegulationRisk, len(Regulations))
	if report.Summary.Total == 0 {
		for _, reg := range Regulations {
			risks[reg] = model.RegulationRisk{Level: model.RiskNone, Assessment: NoTrackingAssessment}
		}
		return risks, nil
	}
	if a.assessor == nil {
		return nil, fmt.Errorf("%w: no assessor configured", ErrRiskAssessment)
	}

	got, err := a.assessor.AssessRisk(ctx, RiskInput{
		Target:         in.Target,
		PagesScanned:   in.PagesScanned,
		BannerDetected: in.BannerDetected,
		Summary:        report.Summary,
		Violations:     violations,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRiskAssessment, err)
	}
	if len(got) == 0 {
		return nil, fmt.Errorf("%w: empty assessment", ErrRiskAssessment)
	}

	for _, reg := range Regulations {
		risk, ok := got[reg]
		if !ok || risk.Level == "" {
			level := BaselineLevel(report.Summary)
			a.logger.Debug("regulation missing from assessment, using baseline", "regulation", reg, "level", string(level))
			risk = model.RegulationRisk{Level: level, Assessment: baselineText(report.Summary)}
		}
		risks[reg] = risk
	}
	return risks, nil
}

func baselineText(s model.Summary) string {
	return fmt.Sprintf("%d pre-consent and %d post-rejection violations across %d technologies.",
		s.PreConsentViolations, s.PostRejectionViolations, s.Total)
}

func assessmentOf(rec model.VerdictRecord) model.Assessment {
	return model.Assessment{
		Category:       rec.Category,
		Purpose:        rec.Purpose,
		Status:         rec.Status,
		Remediation:    rec.Remediation,
		StatesObserved: rec.States,
		PagesFound:     rec.PageList(),
	}
}

func scopeOf(obs model.Observation) string {
	switch {
	case obs.Cookie != nil:
		return obs.Cookie.Domain
	case obs.Request != nil:
		return obs.Request.Hostname
	case obs.Storage != nil:
		return obs.Storage.Origin
	}
	return ""
}
