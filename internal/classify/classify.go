// Package classify assigns leads to a closed organization taxonomy by
// matching keyword tables against the lead's name and website text.
package classify

import (
	"strings"

	"github.com/banyan-labs/lead-optimizer/internal/model"
)

// Classifier maps text to a taxonomy label. Classification is a pure
// function of its inputs.
type Classifier struct {
	tables   Tables
	minScore float64
}

// NewClassifier builds a classifier. Nil tables fall back to the built-in
// taxonomy; minScore below matches stays unknown.
func NewClassifier(tables Tables, minScore float64) *Classifier {
	if len(tables) == 0 {
		tables = DefaultTables()
	}
	return &Classifier{tables: tables, minScore: minScore}
}

// Classify scores the combined name and corpus text against every taxonomy
// label. The highest score wins; ties break by taxonomy priority order. An
// empty corpus and name always yields unknown.
func (c *Classifier) Classify(name, corpus string) model.Classification {
	text := strings.ToLower(name) + " " + corpus
	if strings.TrimSpace(text) == "" {
		return model.Classification{Type: model.OrgUnknown}
	}

	scores := make(map[model.OrgType]float64)
	keywords := make(map[model.OrgType][]string)

	for orgType, patterns := range c.tables {
		for _, kw := range patterns {
			if strings.Contains(text, kw.Phrase) {
				scores[orgType] += kw.Weight
				keywords[orgType] = append(keywords[orgType], kw.Phrase)
			}
		}
	}

	// Walk in priority order so ties resolve to the more specific label.
	best := model.OrgUnknown
	var bestScore float64
	for _, orgType := range model.TaxonomyOrder {
		if s := scores[orgType]; s > bestScore {
			best = orgType
			bestScore = s
		}
	}

	if bestScore < c.minScore {
		return model.Classification{Type: model.OrgUnknown}
	}

	return model.Classification{
		Type:     best,
		Score:    bestScore,
		Keywords: keywords[best],
	}
}
