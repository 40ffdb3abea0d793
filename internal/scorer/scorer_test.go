package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banyan-labs/lead-optimizer/internal/config"
	"github.com/banyan-labs/lead-optimizer/internal/model"
)

func testProducts() map[string]config.ProductConfig {
	return map[string]config.ProductConfig{
		"compass": {Qualified: 6.0, HighPriority: 8.0},
		"upcurve": {
			Qualified:        6.0,
			HighPriority:     8.0,
			RevenueCutoff:    5_000_000,
			FoundedAfterYear: 2018,
		},
	}
}

func contributionSum(ps model.ProductScore) float64 {
	var sum float64
	for _, c := range ps.Contributions {
		sum += c.Points
	}
	return sum
}

func TestCompass_ResidentialLead(t *testing.T) {
	s := NewScorer(testProducts())

	ev := model.LeadEvidence{
		Corpus:    "hope recovery house sober living residential program beds available",
		OrgType:   model.Classification{Type: model.OrgRecoveryCenter, Score: 2},
		Nonprofit: model.NonprofitResult{Status: model.StatusUnverified},
	}

	got := s.ScoreAll(ev)["compass"]

	// keywords: recovery, sober living, residential = 1.5
	// high-value type 3.0, residential language 1.0
	assert.InDelta(t, 5.5, got.Score, 1e-9)
	assert.Equal(t, model.TierNone, got.Tier)
	assert.InDelta(t, got.Score, contributionSum(got), 1e-9)
}

func TestCompass_NonprofitBonusAndTier(t *testing.T) {
	s := NewScorer(testProducts())

	ev := model.LeadEvidence{
		Corpus:    "halfway house recovery sober living residential program beds",
		OrgType:   model.Classification{Type: model.OrgHalfwayHouse},
		Website:   model.WebsiteSignals{MultiLocation: true},
		Nonprofit: model.NonprofitResult{Status: model.StatusLikelyNonprofit},
	}

	got := s.ScoreAll(ev)["compass"]

	// keywords: halfway house, recovery, sober living, residential = 2.0
	// high-value type 3.0, residential 1.0, multi-location 0.5, nonprofit 1.0
	assert.InDelta(t, 7.5, got.Score, 1e-9)
	assert.Equal(t, model.TierQualified, got.Tier)
}

func TestUpcurve_GateForcesZero(t *testing.T) {
	s := NewScorer(testProducts())

	// Strong fundraising evidence must not leak past the gate.
	ev := model.LeadEvidence{
		Corpus:          "nonprofit charity fundraising donation giving 501c3",
		Website:         model.WebsiteSignals{HasDonationPage: true},
		RevenueEstimate: 1_000_000,
		FoundingYear:    2022,
		Nonprofit:       model.NonprofitResult{Status: model.StatusUnverified},
	}

	got := s.ScoreAll(ev)["upcurve"]

	assert.Zero(t, got.Score)
	assert.Equal(t, model.TierNone, got.Tier)
	require.Len(t, got.Contributions, 1)
	assert.Equal(t, "nonprofit status not established", got.Contributions[0].Reason)

	ev.Nonprofit.Status = model.StatusForProfit
	got = s.ScoreAll(ev)["upcurve"]
	assert.Zero(t, got.Score)
}

func TestUpcurve_VerifiedSmallOrg(t *testing.T) {
	s := NewScorer(testProducts())

	ev := model.LeadEvidence{
		Corpus:          "nonprofit charity foundation donation fundraising",
		Website:         model.WebsiteSignals{HasDonationPage: true},
		RevenueEstimate: 2_000_000,
		FoundingYear:    2020,
		Nonprofit:       model.NonprofitResult{Status: model.StatusVerifiedNonprofit},
	}

	got := s.ScoreAll(ev)["upcurve"]

	// keywords: nonprofit, charity, foundation, donation, fundraising = 2.5
	// donation page 1.5, revenue 1.0, founded 0.5, verified 1.0
	assert.InDelta(t, 6.5, got.Score, 1e-9)
	assert.Equal(t, model.TierQualified, got.Tier)
	assert.InDelta(t, got.Score, contributionSum(got), 1e-9)
}

func TestUpcurve_FoundedCutoffYearGetsNoBonus(t *testing.T) {
	s := NewScorer(testProducts())

	base := model.LeadEvidence{
		Nonprofit: model.NonprofitResult{Status: model.StatusLikelyNonprofit},
	}

	// The recency bonus requires founding strictly after the cutoff year.
	atCutoff := base
	atCutoff.FoundingYear = 2018
	assert.InDelta(t, 0.0, s.ScoreAll(atCutoff)["upcurve"].Score, 1e-9)

	after := base
	after.FoundingYear = 2019
	assert.InDelta(t, 0.5, s.ScoreAll(after)["upcurve"].Score, 1e-9)
}

func TestCompass_AllRulesFire(t *testing.T) {
	s := NewScorer(map[string]config.ProductConfig{
		"compass": {Qualified: 6.0, HighPriority: 8.0},
	})

	ev := model.LeadEvidence{
		Corpus: "halfway house recovery sober living residential group home " +
			"transitional reentry treatment center therapeutic community oxford house " +
			"residential program beds",
		OrgType:   model.Classification{Type: model.OrgHalfwayHouse},
		Website:   model.WebsiteSignals{MultiLocation: true},
		Nonprofit: model.NonprofitResult{Status: model.StatusVerifiedNonprofit},
	}

	got := s.ScoreAll(ev)["compass"]

	// keywords capped at 3.0 + type 3.0 + residential 1.0 + multi 0.5 + nonprofit 1.0
	assert.InDelta(t, 8.5, got.Score, 1e-9)
	assert.Equal(t, model.TierHighPriority, got.Tier)
	assert.InDelta(t, got.Score, contributionSum(got), 1e-9)
}

func TestScore_ContributionSumMatchesClippedScore(t *testing.T) {
	p := productScorer{
		name: "test",
		cfg:  config.ProductConfig{Qualified: 6, HighPriority: 8},
		rules: []Rule{
			{Name: "a", Eval: func(model.LeadEvidence) float64 { return 7 }},
			{Name: "b", Eval: func(model.LeadEvidence) float64 { return 6 }},
		},
	}

	got := p.score(model.LeadEvidence{})

	// 7 + 6 = 13, clipped to 10 with a -3 adjustment entry.
	assert.Equal(t, 10.0, got.Score)
	require.Len(t, got.Contributions, 3)
	assert.Equal(t, "score capped", got.Contributions[2].Reason)
	assert.InDelta(t, -3.0, got.Contributions[2].Points, 1e-9)
	assert.InDelta(t, got.Score, contributionSum(got), 1e-9)
}

func TestBestFit(t *testing.T) {
	s := NewScorer(testProducts())

	fits := s.BestFit(map[string]model.ProductScore{
		"compass": {Score: 7.5},
		"upcurve": {Score: 3.0},
	})
	assert.Equal(t, []string{"compass"}, fits)

	// Ties produce a multi-fit list.
	fits = s.BestFit(map[string]model.ProductScore{
		"compass": {Score: 6.0},
		"upcurve": {Score: 6.0},
	})
	assert.Equal(t, []string{"compass", "upcurve"}, fits)

	// An all-zero board fits nothing.
	fits = s.BestFit(map[string]model.ProductScore{
		"compass": {Score: 0},
		"upcurve": {Score: 0},
	})
	assert.Nil(t, fits)
}

func TestUnknownProductScoresNonprofitAffinityOnly(t *testing.T) {
	s := NewScorer(map[string]config.ProductConfig{
		"jona": {Qualified: 1.0, HighPriority: 2.0},
	})

	got := s.ScoreAll(model.LeadEvidence{
		Nonprofit: model.NonprofitResult{Status: model.StatusVerifiedNonprofit},
	})["jona"]

	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, model.TierQualified, got.Tier)
}
