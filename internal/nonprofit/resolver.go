// Package nonprofit resolves a lead's tax-exempt status from registry
// lookups, identifier format checks, and website text evidence.
package nonprofit

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/banyan-labs/lead-optimizer/internal/config"
	"github.com/banyan-labs/lead-optimizer/internal/model"
	"github.com/banyan-labs/lead-optimizer/internal/resilience"
	"github.com/banyan-labs/lead-optimizer/pkg/propublica"
)

// DefaultKeywordWeights maps indicator category to confidence weight.
// Each category counts at most once no matter how often it appears.
func DefaultKeywordWeights() map[string]float64 {
	return map[string]float64{
		"501c3":      0.30,
		"nonprofit":  0.20,
		"charity":    0.15,
		"donation":   0.15,
		"tax_exempt": 0.20,
		"foundation": 0.10,
		"volunteer":  0.05,
	}
}

// categoryPhrases lists the lowercase phrases that trigger each indicator
// category in website text.
var categoryPhrases = map[string][]string{
	"501c3":      {"501(c)(3)", "501c3", "501(c)3"},
	"nonprofit":  {"nonprofit", "non-profit", "not-for-profit"},
	"charity":    {"charity", "charitable"},
	"donation":   {"donation", "donate", "donor"},
	"tax_exempt": {"tax-exempt", "tax exempt"},
	"foundation": {"foundation"},
	"volunteer":  {"volunteer"},
}

var commercialSuffixRe = regexp.MustCompile(`(?i)[,\s]+(inc\.?|llc|l\.l\.c\.|corp\.?|corporation|ltd\.?|co\.)\s*$`)

// registryOutcome records what the registry lookup produced.
type registryOutcome int

const (
	registryNoMatch registryOutcome = iota
	registryMatch
	registryUnavailable
	registrySkipped // no company name and no EIN to look up with
)

// Resolver determines nonprofit status for leads.
type Resolver struct {
	registry    propublica.Client
	weights     map[string]float64
	einWt       float64
	likelyAt    float64
	retry       resilience.RetryConfig
	fetchDetail bool
}

// Option adjusts resolver behavior beyond the weight configuration.
type Option func(*Resolver)

// WithDetailFetch controls whether a name-search match triggers a follow-up
// lookup by EIN. Search hits carry no revenue or ruling date, so without the
// follow-up those fields stay empty for name-matched organizations.
func WithDetailFetch(enabled bool) Option {
	return func(r *Resolver) { r.fetchDetail = enabled }
}

// NewResolver builds a resolver from configuration. Nil keyword weights fall
// back to the built-in defaults.
func NewResolver(registry propublica.Client, cfg config.ResolverConfig, retry resilience.RetryConfig, opts ...Option) *Resolver {
	weights := cfg.KeywordWeights
	if len(weights) == 0 {
		weights = DefaultKeywordWeights()
	}
	r := &Resolver{
		registry: registry,
		weights:  weights,
		einWt:    cfg.EINWeight,
		likelyAt: cfg.LikelyAt,
		retry:    retry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks the lead up in the registry and aggregates all available
// evidence into a status determination. A registry failure degrades to
// website-only evidence; it never fails the lead.
func (r *Resolver) Resolve(ctx context.Context, lead model.LeadRecord, corpus string) model.NonprofitResult {
	org, outcome := r.lookupRegistry(ctx, lead)

	if outcome == registryMatch {
		return r.registryResult(org)
	}

	return r.aggregate(lead, corpus, outcome)
}

func (r *Resolver) lookupRegistry(ctx context.Context, lead model.LeadRecord) (*propublica.Organization, registryOutcome) {
	ein := NormalizeEIN(lead.EIN)

	if ein != "" {
		org, err := resilience.DoVal(ctx, r.retry, "registry lookup", func(ctx context.Context) (*propublica.Organization, error) {
			return r.registry.Lookup(ctx, ein)
		})
		if err != nil {
			zap.L().Warn("registry lookup unavailable",
				zap.String("lead_id", lead.ID),
				zap.Error(err))
			return nil, registryUnavailable
		}
		if org != nil {
			return org, registryMatch
		}
		// Fall through to a name search; a stale EIN should not hide a
		// registration under the current name.
	}

	name := strings.TrimSpace(lead.Company)
	if name == "" {
		if ein == "" {
			return nil, registrySkipped
		}
		return nil, registryNoMatch
	}

	orgs, err := resilience.DoVal(ctx, r.retry, "registry search", func(ctx context.Context) ([]propublica.Organization, error) {
		return r.registry.Search(ctx, name)
	})
	if err != nil {
		zap.L().Warn("registry search unavailable",
			zap.String("lead_id", lead.ID),
			zap.Error(err))
		return nil, registryUnavailable
	}

	for i := range orgs {
		if namesMatch(name, orgs[i].Name) {
			org := &orgs[i]
			if detail := r.fetchFullRecord(ctx, lead.ID, org); detail != nil {
				org = detail
			}
			return org, registryMatch
		}
	}
	return nil, registryNoMatch
}

// fetchFullRecord upgrades a slim search hit to the full filing record.
// Failures keep the search hit; a match stays a match.
func (r *Resolver) fetchFullRecord(ctx context.Context, leadID string, hit *propublica.Organization) *propublica.Organization {
	if !r.fetchDetail || hit.EIN == 0 {
		return nil
	}
	org, err := resilience.DoVal(ctx, r.retry, "registry detail", func(ctx context.Context) (*propublica.Organization, error) {
		return r.registry.Lookup(ctx, hit.FormattedEIN())
	})
	if err != nil {
		zap.L().Warn("registry detail unavailable",
			zap.String("lead_id", leadID),
			zap.Error(err))
		return nil
	}
	return org
}

func (r *Resolver) registryResult(org *propublica.Organization) model.NonprofitResult {
	confidence := 0.95
	if org.EIN != 0 {
		confidence += 0.05
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	res := model.NonprofitResult{
		Status:       model.StatusVerifiedNonprofit,
		Confidence:   confidence,
		RegistryName: org.Name,
		City:         org.City,
		State:        org.State,
		NTEECode:     org.NTEECode,
		Revenue:      org.TotalRevenue,
		Evidence: []model.Evidence{{
			Source: model.EvidenceRegistry,
			Weight: confidence,
			Detail: org.Name,
		}},
	}
	if org.EIN != 0 {
		res.EIN = org.FormattedEIN()
	}
	if len(org.RulingDate) >= 4 {
		fmt.Sscanf(org.RulingDate[:4], "%d", &res.RulingYear)
	}
	return res
}

// aggregate combines the non-registry evidence into a confidence score.
func (r *Resolver) aggregate(lead model.LeadRecord, corpus string, outcome registryOutcome) model.NonprofitResult {
	var evidence []model.Evidence
	var confidence float64

	if outcome == registryUnavailable {
		evidence = append(evidence, model.Evidence{
			Source: model.EvidenceRegistryUnavailable,
			Weight: 0,
			Detail: "registry could not be checked",
		})
	}

	if ValidEIN(lead.EIN) {
		evidence = append(evidence, model.Evidence{
			Source: model.EvidenceEINFormat,
			Weight: r.einWt,
			Detail: NormalizeEIN(lead.EIN),
		})
		confidence += r.einWt
	}

	indicators := matchCategories(corpus)
	for _, cat := range indicators {
		w := r.weights[cat]
		evidence = append(evidence, model.Evidence{
			Source: model.EvidenceWebsiteKeyword,
			Weight: w,
			Detail: cat,
		})
		confidence += w
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	res := model.NonprofitResult{Confidence: confidence, Evidence: evidence}
	if ein := NormalizeEIN(lead.EIN); ein != "" {
		res.EIN = ein
	}

	switch {
	case confidence >= r.likelyAt:
		res.Status = model.StatusLikelyNonprofit
	case outcome == registryNoMatch && len(indicators) == 0 && hasCommercialSignal(lead.Company):
		// All three negative conditions hold: checked registry with no
		// match, zero website indicators, explicit commercial marker.
		res.Status = model.StatusForProfit
		res.Evidence = append(res.Evidence, model.Evidence{
			Source: model.EvidenceCommercialSignal,
			Weight: 0,
			Detail: strings.TrimSpace(commercialSuffixRe.FindString(lead.Company)),
		})
	default:
		res.Status = model.StatusUnverified
	}
	return res
}

// matchCategories returns the distinct indicator categories present in the
// corpus, sorted for deterministic evidence ordering.
func matchCategories(corpus string) []string {
	if corpus == "" {
		return nil
	}
	var cats []string
	for cat, phrases := range categoryPhrases {
		for _, p := range phrases {
			if strings.Contains(corpus, p) {
				cats = append(cats, cat)
				break
			}
		}
	}
	sort.Strings(cats)
	return cats
}

func hasCommercialSignal(company string) bool {
	return commercialSuffixRe.MatchString(strings.TrimSpace(company))
}

var nameNoiseRe = regexp.MustCompile(`[^A-Z0-9 ]+`)

// namesMatch compares organization names loosely: uppercase, strip
// punctuation and entity suffixes, then require equality or containment.
func namesMatch(a, b string) bool {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// NormalizeName canonicalizes an organization name for comparison and for
// keying caches of per-company results.
func NormalizeName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = commercialSuffixRe.ReplaceAllString(s, "")
	s = nameNoiseRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
