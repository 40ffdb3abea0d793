// Package model holds the domain types shared across the enrichment engine.
package model

// LeadState represents a lead's position in the enrichment pipeline.
type LeadState string

const (
	LeadStatePending          LeadState = "pending"
	LeadStateFetchingEvidence LeadState = "fetching_evidence"
	LeadStateResolving        LeadState = "resolving"
	LeadStateScoring          LeadState = "scoring"
	LeadStateDone             LeadState = "done"
	LeadStateFailed           LeadState = "failed"
)

// LeadRecord is a raw lead as exported from the CRM.
type LeadRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	Website  string `json:"website,omitempty"`
	EIN      string `json:"ein,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	Address  string `json:"address,omitempty"`

	// Enrichment holds arbitrary evidence collected during processing.
	// Owned by a single worker for the lead's lifetime; never shared.
	Enrichment map[string]any `json:"enrichment,omitempty"`
}

// SetEvidence records a key/value pair in the lead's enrichment bag.
func (l *LeadRecord) SetEvidence(key string, value any) {
	if l.Enrichment == nil {
		l.Enrichment = make(map[string]any)
	}
	l.Enrichment[key] = value
}
