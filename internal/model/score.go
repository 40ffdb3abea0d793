package model

import "time"

// Tier is the qualification bucket derived from a product score.
type Tier string

const (
	TierNone         Tier = "none"
	TierQualified    Tier = "qualified"
	TierHighPriority Tier = "high_priority"
)

// Contribution is one rule's effect on a product score.
type Contribution struct {
	Reason string  `json:"reason"`
	Points float64 `json:"points"`
}

// ProductScore is the scorer output for one product.
type ProductScore struct {
	Product       string         `json:"product"`
	Score         float64        `json:"score"`
	Tier          Tier           `json:"tier"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// WebsiteSignals are the structured facts extracted from a lead's website.
type WebsiteSignals struct {
	Reachable       bool     `json:"reachable"`
	FinalURL        string   `json:"final_url,omitempty"`
	Title           string   `json:"title,omitempty"`
	Corpus          string   `json:"-"`
	Indicators      []string `json:"indicators,omitempty"`
	HasDonationPage bool     `json:"has_donation_page"`
	DonationURL     string   `json:"donation_url,omitempty"`
	MultiLocation   bool     `json:"multi_location"`
}

// LeadEvidence bundles everything the scorer consumes for one lead.
type LeadEvidence struct {
	Nonprofit NonprofitResult
	OrgType   Classification
	Website   WebsiteSignals
	Corpus    string // combined lowercase text: company name + website text

	RevenueEstimate int64 // 0 when unknown
	FoundingYear    int   // 0 when unknown
}

// QualityCheck is one named boolean completeness check.
type QualityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// EnrichedLead is the terminal artifact: the input lead plus everything the
// engine derived. Exactly one is produced per input LeadRecord.
type EnrichedLead struct {
	Lead      LeadRecord              `json:"lead"`
	State     LeadState               `json:"state"`
	Nonprofit NonprofitResult         `json:"nonprofit"`
	OrgType   Classification          `json:"org_type"`
	Scores    map[string]ProductScore `json:"scores"`

	// BestFit holds the winning product, or several on a tie (multi-fit).
	BestFit []string `json:"best_fit,omitempty"`

	Website          WebsiteSignals `json:"website"`
	DataQuality      float64        `json:"data_quality"`
	QualityChecks    []QualityCheck `json:"quality_checks,omitempty"`
	InsufficientData bool           `json:"insufficient_data,omitempty"`
	Error            string         `json:"error,omitempty"`
	EnrichedAt       time.Time      `json:"enriched_at"`
}
