// Package tier classifies data sources into trust tiers.
package tier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/sells-group/arbiter/internal/model"
)

// DefaultReliability is reported for sources missing from the table.
const DefaultReliability = 50

// Entry maps a normalized source key to its tier and reliability score.
type Entry struct {
	Key         string     `json:"key" yaml:"key" validate:"required"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Tier        model.Tier `json:"tier" yaml:"tier" validate:"min=1,max=4"`
	Reliability int        `json:"reliability" yaml:"reliability" validate:"min=0,max=100"`
}

// Classification is the outcome of looking up a source name.
type Classification struct {
	Source      string     `json:"source"`
	Key         string     `json:"key"`
	Tier        model.Tier `json:"tier"`
	Reliability int        `json:"reliability"`
	// Matched is the table key that matched, empty on fallback.
	Matched string `json:"matched,omitempty"`
	// Fallback names the rule used when no table key matched:
	// "google", "llm-vendor" or "default".
	Fallback string `json:"fallback,omitempty"`
}

// Registry is an immutable, ordered source table. The first entry whose key
// is contained in the normalized source name, or that contains a name of at
// least MinReverseMatch runes, wins, so order matters.
type Registry struct {
	entries    []Entry
	llmVendors []string
}

// MinReverseMatch is the shortest normalized name matched against the inside
// of a table key ("mls" finds "stellar-mls").
const MinReverseMatch = 3

// DefaultLLMVendors are the tokens that identify a generative-model source
// missing from the table.
var DefaultLLMVendors = []string{"perplexity", "grok", "claude", "gpt", "gemini", "anthropic", "openai"}

// NewRegistry builds a registry over a copy of entries.
func NewRegistry(entries []Entry) *Registry {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	vendors := make([]string, len(DefaultLLMVendors))
	copy(vendors, DefaultLLMVendors)
	return &Registry{entries: cp, llmVendors: vendors}
}

// Default returns a registry over DefaultEntries.
func Default() *Registry {
	return NewRegistry(DefaultEntries())
}

// DefaultEntries returns the built-in source table.
func DefaultEntries() []Entry {
	return []Entry{
		// Tier 1: MLS system of record and values derived from it.
		{Key: "stellar-mls", Name: "Stellar MLS", Description: "Primary MLS data source", Tier: model.TierMLS, Reliability: 100},
		{Key: "backend-calculation", Name: "Backend Calculation", Description: "Math-derived fields (price/sqft, tax rate)", Tier: model.TierMLS, Reliability: 100},
		{Key: "backend-logic", Name: "Backend Logic", Description: "Smart defaults and conditional N/A fields", Tier: model.TierMLS, Reliability: 100},

		// Tier 2: structured Google APIs.
		{Key: "google-geocode", Name: "Google Geocode", Description: "Address geocoding", Tier: model.TierAPI, Reliability: 95},
		{Key: "google-places", Name: "Google Places", Description: "Nearby amenities", Tier: model.TierAPI, Reliability: 95},
		{Key: "google-distance", Name: "Google Distance Matrix", Description: "Commute times", Tier: model.TierAPI, Reliability: 95},

		// Tier 3: specialized APIs and targeted web search.
		{Key: "walkscore", Name: "WalkScore", Description: "Walkability scores", Tier: model.TierSpecialized, Reliability: 90},
		{Key: "schooldigger", Name: "SchoolDigger", Description: "School ratings", Tier: model.TierSpecialized, Reliability: 85},
		{Key: "fema", Name: "FEMA NFHL", Description: "Flood zones", Tier: model.TierSpecialized, Reliability: 95},
		{Key: "airnow", Name: "AirNow", Description: "Air quality", Tier: model.TierSpecialized, Reliability: 90},
		{Key: "howloud", Name: "HowLoud", Description: "Noise levels", Tier: model.TierSpecialized, Reliability: 85},
		{Key: "weather", Name: "Weather API", Description: "Climate data", Tier: model.TierSpecialized, Reliability: 85},
		{Key: "fbi-crime", Name: "FBI Crime", Description: "Crime statistics", Tier: model.TierSpecialized, Reliability: 90},
		{Key: "tavily", Name: "Tavily Web Search", Description: "Targeted searches for AVMs, schools, crime", Tier: model.TierSpecialized, Reliability: 85},

		// Tier 4: generative models.
		{Key: "perplexity", Name: "Perplexity", Description: "Deep web search", Tier: model.TierLLM, Reliability: 90},
		{Key: "gemini", Name: "Gemini", Description: "On-demand only", Tier: model.TierLLM, Reliability: 85},
		{Key: "gpt", Name: "GPT", Description: "Web evidence mode", Tier: model.TierLLM, Reliability: 80},
		{Key: "claude-sonnet", Name: "Claude Sonnet", Description: "Web search beta", Tier: model.TierLLM, Reliability: 75},
		{Key: "grok", Name: "Grok", Description: "Real-time social data", Tier: model.TierLLM, Reliability: 70},
		{Key: "claude-opus", Name: "Claude Opus", Description: "Deep reasoning, no web search", Tier: model.TierLLM, Reliability: 65},
	}
}

// Entries returns a copy of the table in lookup order.
func (r *Registry) Entries() []Entry {
	cp := make([]Entry, len(r.entries))
	copy(cp, r.entries)
	return cp
}

var whitespace = regexp.MustCompile(`\s+`)

// Normalize maps a display source name onto the key space of the table:
// case-folded, whitespace runs replaced by "-", and the first "maps"
// rewritten to "geocode".
func Normalize(source string) string {
	key := cases.Fold().String(strings.TrimSpace(source))
	key = whitespace.ReplaceAllString(key, "-")
	return strings.Replace(key, "maps", "geocode", 1)
}

// Lookup classifies source. It never fails: unknown sources land in tier 4.
func (r *Registry) Lookup(source string) Classification {
	key := Normalize(source)
	c := Classification{Source: source, Key: key}

	if key != "" {
		reverse := utf8.RuneCountInString(key) >= MinReverseMatch
		for _, e := range r.entries {
			if strings.Contains(key, e.Key) || (reverse && strings.Contains(e.Key, key)) {
				c.Tier = e.Tier
				c.Reliability = e.Reliability
				c.Matched = e.Key
				return c
			}
		}
	}

	c.Reliability = DefaultReliability
	switch {
	case strings.Contains(key, "google"):
		c.Tier = model.TierAPI
		c.Fallback = "google"
	case r.isLLMVendor(key):
		c.Tier = model.TierLLM
		c.Fallback = "llm-vendor"
	default:
		c.Tier = model.TierLLM
		c.Fallback = "default"
	}
	return c
}

// TierOf returns the tier of source.
func (r *Registry) TierOf(source string) model.Tier {
	return r.Lookup(source).Tier
}

// ReliabilityOf returns the 0-100 reliability score of source.
func (r *Registry) ReliabilityOf(source string) int {
	return r.Lookup(source).Reliability
}

func (r *Registry) isLLMVendor(key string) bool {
	for _, v := range r.llmVendors {
		if strings.Contains(key, v) {
			return true
		}
	}
	return false
}
