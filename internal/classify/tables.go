package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/banyan-labs/lead-optimizer/internal/model"
)

// Keyword is a single weighted phrase in a taxonomy table.
type Keyword struct {
	Phrase string  `yaml:"phrase"`
	Weight float64 `yaml:"weight"`
}

// Tables maps each taxonomy label to its keyword list.
type Tables map[model.OrgType][]Keyword

// DefaultTables returns the built-in taxonomy keyword tables. Every phrase
// carries weight 1.0; classification strength comes from distinct hits.
func DefaultTables() Tables {
	raw := map[model.OrgType][]string{
		model.OrgHalfwayHouse:        {"halfway house", "reentry", "re-entry", "transitional living", "second chance"},
		model.OrgRecoveryCenter:      {"recovery", "rehab", "addiction", "substance abuse", "detox", "treatment"},
		model.OrgSoberLiving:         {"sober living", "sober house", "recovery residence", "oxford house"},
		model.OrgTransitionalHousing: {"transitional housing", "temporary housing", "bridge housing"},
		model.OrgShelter:             {"shelter", "safe house", "emergency housing", "crisis housing"},
		model.OrgGroupHome:           {"group home", "residential care", "assisted living", "adult family home"},
		model.OrgMentalHealth:        {"mental health", "psychiatric", "behavioral health", "psych"},
		model.OrgFaithBased:          {"church", "ministry", "christian", "catholic", "baptist", "methodist"},
		model.OrgCommunityService:    {"community", "ymca", "ywca", "boys girls club", "community center"},
		model.OrgOtherNonprofit:      {"nonprofit", "non-profit", "501c3", "charity", "foundation"},
	}

	tables := make(Tables, len(raw))
	for orgType, phrases := range raw {
		kws := make([]Keyword, 0, len(phrases))
		for _, p := range phrases {
			kws = append(kws, Keyword{Phrase: p, Weight: 1.0})
		}
		tables[orgType] = kws
	}
	return tables
}

// LoadTables reads taxonomy keyword tables from a YAML file. Labels outside
// the taxonomy, empty phrases, and non-positive weights are rejected;
// missing tables are fatal rather than silently defaulted.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read tables %s", path)
	}

	var wrapper struct {
		Taxonomy map[string][]Keyword `yaml:"taxonomy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "classify: parse tables")
	}
	if len(wrapper.Taxonomy) == 0 {
		return nil, eris.Errorf("classify: no taxonomy tables in %s", path)
	}

	known := make(map[model.OrgType]bool, len(model.TaxonomyOrder))
	for _, t := range model.TaxonomyOrder {
		known[t] = true
	}

	tables := make(Tables, len(wrapper.Taxonomy))
	for label, kws := range wrapper.Taxonomy {
		orgType := model.OrgType(label)
		if !known[orgType] {
			return nil, eris.Errorf("classify: unknown taxonomy label %q", label)
		}
		for i, kw := range kws {
			if kw.Phrase == "" {
				return nil, eris.Errorf("classify: %s keyword %d has empty phrase", label, i)
			}
			if kw.Weight <= 0 {
				return nil, eris.Errorf("classify: %s keyword %q has non-positive weight", label, kw.Phrase)
			}
		}
		tables[orgType] = kws
	}
	return tables, nil
}
