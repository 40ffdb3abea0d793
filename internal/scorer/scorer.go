// Package scorer computes per-product fit scores from aggregated lead
// evidence. Rules are data: each product carries an ordered rule list, so
// new products are added by configuration rather than new branching.
package scorer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banyan-labs/lead-optimizer/internal/config"
	"github.com/banyan-labs/lead-optimizer/internal/model"
)

const maxScore = 10.0

// Rule is one scoring signal: a name for reporting and an evaluation
// returning the points it contributes. Zero points means no contribution
// entry is recorded.
type Rule struct {
	Name string
	Eval func(ev model.LeadEvidence) float64
}

type productScorer struct {
	name  string
	cfg   config.ProductConfig
	rules []Rule
	// gate short-circuits the whole product when it returns a reason.
	gate func(ev model.LeadEvidence) (string, bool)
}

// Scorer scores leads against every configured product.
type Scorer struct {
	products []productScorer
}

// NewScorer builds per-product rule sets from configuration. Product names
// are kept sorted so output ordering is deterministic.
func NewScorer(products map[string]config.ProductConfig) *Scorer {
	names := make([]string, 0, len(products))
	for name := range products {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &Scorer{}
	for _, name := range names {
		s.products = append(s.products, buildProduct(name, products[name]))
	}
	return s
}

// ScoreAll evaluates every product for the lead.
func (s *Scorer) ScoreAll(ev model.LeadEvidence) map[string]model.ProductScore {
	out := make(map[string]model.ProductScore, len(s.products))
	for _, p := range s.products {
		out[p.name] = p.score(ev)
	}
	return out
}

// BestFit returns the products sharing the highest positive score. Ties
// produce a multi-fit list; an all-zero board produces none.
func (s *Scorer) BestFit(scores map[string]model.ProductScore) []string {
	var best float64
	for _, ps := range scores {
		if ps.Score > best {
			best = ps.Score
		}
	}
	if best == 0 {
		return nil
	}

	var fits []string
	for name, ps := range scores {
		if ps.Score == best {
			fits = append(fits, name)
		}
	}
	sort.Strings(fits)
	return fits
}

// score runs the gate, then the rule list, then clips to [0,10]. When
// clipping engages, a final adjustment entry keeps the contribution sum
// equal to the reported score.
func (p *productScorer) score(ev model.LeadEvidence) model.ProductScore {
	ps := model.ProductScore{Product: p.name, Tier: model.TierNone}

	if p.gate != nil {
		if reason, gated := p.gate(ev); gated {
			ps.Contributions = []model.Contribution{{Reason: reason, Points: 0}}
			return ps
		}
	}

	var sum float64
	for _, r := range p.rules {
		pts := r.Eval(ev)
		if pts == 0 {
			continue
		}
		ps.Contributions = append(ps.Contributions, model.Contribution{Reason: r.Name, Points: pts})
		sum += pts
	}

	if sum > maxScore {
		ps.Contributions = append(ps.Contributions, model.Contribution{
			Reason: "score capped",
			Points: maxScore - sum,
		})
		sum = maxScore
	}
	if sum < 0 {
		sum = 0
	}

	ps.Score = sum
	switch {
	case sum >= p.cfg.HighPriority && sum > 0:
		ps.Tier = model.TierHighPriority
	case sum >= p.cfg.Qualified && sum > 0:
		ps.Tier = model.TierQualified
	}
	return ps
}

func buildProduct(name string, cfg config.ProductConfig) productScorer {
	switch name {
	case "compass":
		return productScorer{name: name, cfg: cfg, rules: compassRules()}
	case "upcurve":
		return productScorer{
			name: name,
			cfg:  cfg,
			gate: func(ev model.LeadEvidence) (string, bool) {
				if !ev.Nonprofit.Status.AtLeastLikely() {
					return "nonprofit status not established", true
				}
				return "", false
			},
			rules: upcurveRules(cfg),
		}
	default:
		// Unknown products score on generic nonprofit affinity only.
		return productScorer{name: name, cfg: cfg, rules: []Rule{nonprofitBonus()}}
	}
}

var compassKeywords = []string{
	"halfway house", "recovery", "sober living", "residential",
	"group home", "transitional", "reentry", "treatment center",
	"therapeutic community", "oxford house",
}

var upcurveKeywords = []string{
	"nonprofit", "501c3", "charity", "foundation", "fundraising",
	"donation", "giving", "philanthropic", "tax-exempt", "ngo",
}

var residentialPhrases = []string{
	"residential program", "beds", "live-in", "housing program", "residents",
}

func compassRules() []Rule {
	return []Rule{
		keywordRule("program keywords", compassKeywords),
		{
			Name: "high-value organization type",
			Eval: typePoints(3.0,
				model.OrgHalfwayHouse, model.OrgRecoveryCenter,
				model.OrgSoberLiving, model.OrgGroupHome),
		},
		{
			Name: "medium-value organization type",
			Eval: typePoints(1.5,
				model.OrgTransitionalHousing, model.OrgShelter, model.OrgMentalHealth),
		},
		{
			Name: "residential language",
			Eval: func(ev model.LeadEvidence) float64 {
				for _, p := range residentialPhrases {
					if strings.Contains(ev.Corpus, p) {
						return 1.0
					}
				}
				return 0
			},
		},
		{
			Name: "multiple locations",
			Eval: func(ev model.LeadEvidence) float64 {
				if ev.Website.MultiLocation {
					return 0.5
				}
				return 0
			},
		},
		nonprofitBonus(),
	}
}

func upcurveRules(cfg config.ProductConfig) []Rule {
	return []Rule{
		keywordRule("fundraising keywords", upcurveKeywords),
		{
			Name: "donation page",
			Eval: func(ev model.LeadEvidence) float64 {
				if ev.Website.HasDonationPage {
					return 1.5
				}
				return 0
			},
		},
		{
			Name: fmt.Sprintf("revenue under $%dM", cfg.RevenueCutoff/1_000_000),
			Eval: func(ev model.LeadEvidence) float64 {
				if cfg.RevenueCutoff > 0 && ev.RevenueEstimate > 0 && ev.RevenueEstimate < cfg.RevenueCutoff {
					return 1.0
				}
				return 0
			},
		},
		{
			Name: fmt.Sprintf("founded after %d", cfg.FoundedAfterYear),
			Eval: func(ev model.LeadEvidence) float64 {
				if cfg.FoundedAfterYear > 0 && ev.FoundingYear > cfg.FoundedAfterYear {
					return 0.5
				}
				return 0
			},
		},
		{
			Name: "registry verified",
			Eval: func(ev model.LeadEvidence) float64 {
				if ev.Nonprofit.Status == model.StatusVerifiedNonprofit {
					return 1.0
				}
				return 0
			},
		},
	}
}

// keywordRule contributes 0.5 per distinct keyword hit, capped at 3.0.
func keywordRule(name string, keywords []string) Rule {
	return Rule{
		Name: name,
		Eval: func(ev model.LeadEvidence) float64 {
			var pts float64
			for _, kw := range keywords {
				if strings.Contains(ev.Corpus, kw) {
					pts += 0.5
				}
			}
			if pts > 3.0 {
				pts = 3.0
			}
			return pts
		},
	}
}

func typePoints(points float64, types ...model.OrgType) func(model.LeadEvidence) float64 {
	return func(ev model.LeadEvidence) float64 {
		for _, t := range types {
			if ev.OrgType.Type == t {
				return points
			}
		}
		return 0
	}
}

func nonprofitBonus() Rule {
	return Rule{
		Name: "nonprofit status",
		Eval: func(ev model.LeadEvidence) float64 {
			if ev.Nonprofit.Status.AtLeastLikely() {
				return 1.0
			}
			return 0
		},
	}
}
