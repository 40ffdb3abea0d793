package model

// NonprofitStatus is the resolver's determination for a lead.
type NonprofitStatus string

const (
	StatusUnverified        NonprofitStatus = "unverified"
	StatusForProfit         NonprofitStatus = "for_profit"
	StatusLikelyNonprofit   NonprofitStatus = "likely_nonprofit"
	StatusVerifiedNonprofit NonprofitStatus = "verified_nonprofit"
)

// AtLeastLikely reports whether the status carries enough certainty to be
// treated as nonprofit by downstream scoring.
func (s NonprofitStatus) AtLeastLikely() bool {
	return s == StatusLikelyNonprofit || s == StatusVerifiedNonprofit
}

// EvidenceSource identifies where a piece of resolver evidence came from.
type EvidenceSource string

const (
	EvidenceRegistry            EvidenceSource = "registry"
	EvidenceRegistryUnavailable EvidenceSource = "registry_unavailable"
	EvidenceEINFormat           EvidenceSource = "ein_format"
	EvidenceWebsiteKeyword      EvidenceSource = "website_keyword"
	EvidenceCommercialSignal    EvidenceSource = "commercial_signal"
)

// Evidence is a discrete fact contributing to a status determination.
type Evidence struct {
	Source EvidenceSource `json:"source"`
	Weight float64        `json:"weight"`
	Detail string         `json:"detail,omitempty"`
}

// NonprofitResult is the resolver output: status, confidence, and the
// evidence list that produced them.
type NonprofitResult struct {
	Status     NonprofitStatus `json:"status"`
	Confidence float64         `json:"confidence"`
	Evidence   []Evidence      `json:"evidence,omitempty"`

	// Registry detail, populated only on a registry match.
	EIN          string `json:"ein,omitempty"`
	RegistryName string `json:"registry_name,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	NTEECode     string `json:"ntee_code,omitempty"`
	RulingYear   int    `json:"ruling_year,omitempty"`
	Revenue      int64  `json:"revenue,omitempty"`
}
