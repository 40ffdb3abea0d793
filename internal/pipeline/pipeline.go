// Package pipeline orchestrates batch lead enrichment: evidence gathering,
// status resolution, classification, scoring, and checkpointing.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banyan-labs/lead-optimizer/internal/classify"
	"github.com/banyan-labs/lead-optimizer/internal/config"
	"github.com/banyan-labs/lead-optimizer/internal/model"
	"github.com/banyan-labs/lead-optimizer/internal/nonprofit"
	"github.com/banyan-labs/lead-optimizer/internal/resilience"
	"github.com/banyan-labs/lead-optimizer/internal/scorer"
	"github.com/banyan-labs/lead-optimizer/internal/scrape"
	"github.com/banyan-labs/lead-optimizer/internal/store"
)

// Resolver is the nonprofit status dependency.
type Resolver interface {
	Resolve(ctx context.Context, lead model.LeadRecord, corpus string) model.NonprofitResult
}

var _ Resolver = (*nonprofit.Resolver)(nil)

// Summary reports what a batch run did.
type Summary struct {
	Total     int
	Processed int
	Resumed   int
	Done      int
	Failed    int
	Skipped   int // not started before cancellation
}

// Pipeline runs leads through the enrichment state machine.
type Pipeline struct {
	cfg        config.PipelineConfig
	store      store.Store
	resolver   Resolver
	classifier *classify.Classifier
	scorer     *scorer.Scorer
	fetcher    scrape.Fetcher
	retry      resilience.RetryConfig

	// Per-run caches: websiteCache deduplicates fetches when several leads
	// share a company website, resolverCache deduplicates registry traffic
	// when several leads name the same organization.
	mu            sync.Mutex
	websiteCache  map[string]*model.WebsiteSignals
	resolverCache map[string]model.NonprofitResult
}

// New creates a Pipeline with all dependencies.
func New(
	cfg config.PipelineConfig,
	st store.Store,
	resolver Resolver,
	classifier *classify.Classifier,
	sc *scorer.Scorer,
	fetcher scrape.Fetcher,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		resolver:   resolver,
		classifier: classifier,
		scorer:     sc,
		fetcher:    fetcher,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: time.Duration(cfg.BackoffMillis) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.MaxBackoffSecs) * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
		websiteCache:  make(map[string]*model.WebsiteSignals),
		resolverCache: make(map[string]model.NonprofitResult),
	}
}

// Run enriches a batch. Every input lead yields exactly one checkpoint,
// except leads not yet started when the context is canceled; those stay
// pending and a resumed run picks them up. Leads already checkpointed from
// a prior run are skipped.
func (p *Pipeline) Run(ctx context.Context, batch []model.LeadRecord) (*Summary, error) {
	log := zap.L()
	log.Info("pipeline: starting batch",
		zap.Int("leads", len(batch)),
		zap.Int("concurrency", p.cfg.Concurrency))

	summary := &Summary{Total: len(batch)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, lead := range batch {
		lead := lead
		if err := ctx.Err(); err != nil {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			// A canceled context means leave this lead pending; an
			// in-flight lead below still finishes and checkpoints.
			if err := ctx.Err(); err != nil {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}

			has, err := p.store.Has(gctx, lead.ID)
			if err != nil {
				return eris.Wrapf(err, "pipeline: checkpoint lookup %s", lead.ID)
			}
			if has {
				mu.Lock()
				summary.Resumed++
				mu.Unlock()
				log.Debug("pipeline: resuming past checkpoint", zap.String("lead_id", lead.ID))
				return nil
			}

			enriched := p.processLead(context.WithoutCancel(gctx), lead)

			if err := p.store.Save(context.WithoutCancel(gctx), enriched); err != nil {
				return eris.Wrapf(err, "pipeline: save checkpoint %s", lead.ID)
			}

			mu.Lock()
			summary.Processed++
			if enriched.State == model.LeadStateFailed {
				summary.Failed++
			} else {
				summary.Done++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	log.Info("pipeline: batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("resumed", summary.Resumed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// processLead walks one lead through the state machine. It always returns a
// terminal record; per-lead failures land in the record, never in an error.
func (p *Pipeline) processLead(ctx context.Context, lead model.LeadRecord) (enriched model.EnrichedLead) {
	log := zap.L().With(zap.String("lead_id", lead.ID), zap.String("company", lead.Company))

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: lead processing panicked", zap.Any("panic", r))
			enriched.State = model.LeadStateFailed
			enriched.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	enriched = model.EnrichedLead{
		Lead:       lead,
		State:      model.LeadStatePending,
		EnrichedAt: time.Now().UTC(),
	}

	if strings.TrimSpace(lead.Company) == "" {
		enriched.State = model.LeadStateDone
		enriched.InsufficientData = true
		enriched.Nonprofit.Status = model.StatusUnverified
		enriched.OrgType.Type = model.OrgUnknown
		enriched.QualityChecks, enriched.DataQuality = qualityReport(enriched)
		log.Warn("pipeline: lead missing company name")
		return enriched
	}

	enriched.State = model.LeadStateFetchingEvidence
	website := p.fetchWebsite(ctx, lead)
	if website != nil {
		enriched.Website = *website
	}

	corpus := strings.ToLower(strings.TrimSpace(lead.Company))
	if website != nil && website.Corpus != "" {
		corpus += " " + website.Corpus
	}

	enriched.State = model.LeadStateResolving
	enriched.Nonprofit = p.resolveStatus(ctx, lead, corpus)
	enriched.Website.Indicators = indicatorDetails(enriched.Nonprofit.Evidence)

	enriched.State = model.LeadStateScoring
	enriched.OrgType = p.classifier.Classify(lead.Company, websiteCorpus(website))

	evidence := model.LeadEvidence{
		Nonprofit:       enriched.Nonprofit,
		OrgType:         enriched.OrgType,
		Website:         enriched.Website,
		Corpus:          corpus,
		RevenueEstimate: enriched.Nonprofit.Revenue,
		FoundingYear:    enriched.Nonprofit.RulingYear,
	}
	enriched.Scores = p.scorer.ScoreAll(evidence)
	enriched.BestFit = p.scorer.BestFit(enriched.Scores)

	enriched.State = model.LeadStateDone
	enriched.QualityChecks, enriched.DataQuality = qualityReport(enriched)

	log.Debug("pipeline: lead enriched",
		zap.String("status", string(enriched.Nonprofit.Status)),
		zap.String("org_type", string(enriched.OrgType.Type)),
		zap.Strings("best_fit", enriched.BestFit))
	return enriched
}

// resolveStatus resolves nonprofit status, reusing the per-run result when
// several leads name the same organization.
func (p *Pipeline) resolveStatus(ctx context.Context, lead model.LeadRecord, corpus string) model.NonprofitResult {
	key := nonprofit.NormalizeName(lead.Company)
	if ein := nonprofit.NormalizeEIN(lead.EIN); ein != "" {
		key += "|" + ein
	}

	p.mu.Lock()
	cached, ok := p.resolverCache[key]
	p.mu.Unlock()
	if ok {
		return cached
	}

	res := p.resolver.Resolve(ctx, lead, corpus)

	p.mu.Lock()
	p.resolverCache[key] = res
	p.mu.Unlock()
	return res
}

// fetchWebsite retrieves website signals, using the per-run cache and
// falling back to the lead's email domain when no website is listed. A dead
// or missing website is empty evidence, not a failure.
func (p *Pipeline) fetchWebsite(ctx context.Context, lead model.LeadRecord) *model.WebsiteSignals {
	target := strings.TrimSpace(lead.Website)
	if target == "" {
		target = websiteFromEmail(lead.Email)
	}
	if target == "" {
		return nil
	}

	key := strings.ToLower(scrape.NormalizeURL(target))

	p.mu.Lock()
	cached, ok := p.websiteCache[key]
	p.mu.Unlock()
	if ok {
		return cached
	}

	signals, err := resilience.DoVal(ctx, p.retry, "website fetch", func(ctx context.Context) (*model.WebsiteSignals, error) {
		return p.fetcher.Fetch(ctx, target)
	})
	if err != nil {
		zap.L().Warn("pipeline: website unavailable",
			zap.String("lead_id", lead.ID),
			zap.String("url", target),
			zap.Error(err))
		signals = &model.WebsiteSignals{Reachable: false, FinalURL: scrape.NormalizeURL(target)}
	}

	p.mu.Lock()
	p.websiteCache[key] = signals
	p.mu.Unlock()
	return signals
}

// websiteFromEmail derives a candidate URL from a corporate email domain.
// Freemail domains carry no organization signal and are ignored.
var freemailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"aol.com":     true,
	"icloud.com":  true,
}

func websiteFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if domain == "" || freemailDomains[domain] || !strings.Contains(domain, ".") {
		return ""
	}
	return domain
}

func websiteCorpus(w *model.WebsiteSignals) string {
	if w == nil {
		return ""
	}
	return w.Corpus
}

// indicatorDetails lifts the website keyword categories out of the evidence
// list for reporting.
func indicatorDetails(evidence []model.Evidence) []string {
	var out []string
	for _, e := range evidence {
		if e.Source == model.EvidenceWebsiteKeyword {
			out = append(out, e.Detail)
		}
	}
	return out
}

// qualityReport runs the completeness checks and averages them into a
// [0,1] quality figure.
func qualityReport(lead model.EnrichedLead) ([]model.QualityCheck, float64) {
	checks := []model.QualityCheck{
		{Name: "has_company", Passed: strings.TrimSpace(lead.Lead.Company) != ""},
		{Name: "has_contact", Passed: lead.Lead.Email != "" || lead.Lead.Phone != ""},
		{Name: "website_reachable", Passed: lead.Website.Reachable},
		{Name: "status_established", Passed: lead.Nonprofit.Status != model.StatusUnverified},
		{Name: "classified", Passed: lead.OrgType.Type != model.OrgUnknown},
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return checks, float64(passed) / float64(len(checks))
}
