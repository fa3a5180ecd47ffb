package tier

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var tableValidate = validator.New()

// Table is the on-disk form of a source table.
type Table struct {
	Sources    []Entry  `yaml:"sources" validate:"required,min=1,dive"`
	LLMVendors []string `yaml:"llm_vendors,omitempty" validate:"dive,required"`
}

// LoadRegistry reads a YAML source table and builds a registry from it.
// The file has a top-level "tiers" key:
//
//	tiers:
//	  sources:
//	    - { key: stellar-mls, tier: 1, reliability: 100 }
//	  llm_vendors: [gpt, claude]
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tier: read table %s", path)
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a registry from YAML table data.
func ParseRegistry(data []byte) (*Registry, error) {
	var wrapper struct {
		Tiers Table `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "tier: parse table")
	}

	tbl := wrapper.Tiers
	if err := tableValidate.Struct(tbl); err != nil {
		return nil, eris.Wrap(err, "tier: invalid table")
	}
	seen := make(map[string]bool, len(tbl.Sources))
	for i, e := range tbl.Sources {
		key := Normalize(e.Key)
		if seen[key] {
			return nil, eris.Errorf("tier: duplicate source key %q", e.Key)
		}
		seen[key] = true
		tbl.Sources[i].Key = key
	}

	r := NewRegistry(tbl.Sources)
	if len(tbl.LLMVendors) > 0 {
		vendors := make([]string, len(tbl.LLMVendors))
		for i, v := range tbl.LLMVendors {
			vendors[i] = Normalize(v)
		}
		r.llmVendors = vendors
	}
	return r, nil
}
