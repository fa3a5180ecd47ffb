package tier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arbiter/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Stellar MLS", "stellar-mls"},
		{"  Google   Maps ", "google-geocode"},
		{"Google Maps maps", "google-geocode-maps"},
		{"FBI\tCrime", "fbi-crime"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Normalize(tc.in), tc.in)
	}
}

func TestLookup_Table(t *testing.T) {
	t.Parallel()
	reg := Default()

	tests := []struct {
		source      string
		tier        model.Tier
		reliability int
		matched     string
	}{
		{"Stellar MLS", model.TierMLS, 100, "stellar-mls"},
		{"Backend Calculation", model.TierMLS, 100, "backend-calculation"},
		{"Google Maps", model.TierAPI, 95, "google-geocode"},
		{"Google Places", model.TierAPI, 95, "google-places"},
		{"WalkScore", model.TierSpecialized, 90, "walkscore"},
		{"FEMA NFHL", model.TierSpecialized, 95, "fema"},
		{"FBI Crime", model.TierSpecialized, 90, "fbi-crime"},
		{"Tavily", model.TierSpecialized, 85, "tavily"},
		{"Perplexity Sonar", model.TierLLM, 90, "perplexity"},
		{"GPT-4o", model.TierLLM, 80, "gpt"},
		{"Claude Sonnet", model.TierLLM, 75, "claude-sonnet"},
		{"Claude Opus", model.TierLLM, 65, "claude-opus"},
		// short names found inside a table key
		{"MLS", model.TierMLS, 100, "stellar-mls"},
		{"Stellar", model.TierMLS, 100, "stellar-mls"},
		{"Google", model.TierAPI, 95, "google-geocode"},
		{"Claude", model.TierLLM, 75, "claude-sonnet"},
	}

	for _, tc := range tests {
		c := reg.Lookup(tc.source)
		assert.Equal(t, tc.tier, c.Tier, tc.source)
		assert.Equal(t, tc.reliability, c.Reliability, tc.source)
		assert.Equal(t, tc.matched, c.Matched, tc.source)
		assert.Empty(t, c.Fallback, tc.source)
	}
}

func TestLookup_Fallbacks(t *testing.T) {
	t.Parallel()
	reg := Default()

	c := reg.Lookup("Google Street View")
	assert.Equal(t, model.TierAPI, c.Tier)
	assert.Equal(t, "google", c.Fallback)
	assert.Equal(t, DefaultReliability, c.Reliability)

	c = reg.Lookup("Claude Haiku")
	assert.Equal(t, model.TierLLM, c.Tier)
	assert.Equal(t, "llm-vendor", c.Fallback)

	c = reg.Lookup("OpenAI o3")
	assert.Equal(t, model.TierLLM, c.Tier)
	assert.Equal(t, "llm-vendor", c.Fallback)

	c = reg.Lookup("Zillow")
	assert.Equal(t, model.TierLLM, c.Tier)
	assert.Equal(t, "default", c.Fallback)
	assert.Equal(t, DefaultReliability, c.Reliability)
}

func TestLookup_EmptySourceIsLowestTrust(t *testing.T) {
	t.Parallel()

	c := Default().Lookup("   ")
	assert.Equal(t, model.TierLLM, c.Tier)
	assert.Equal(t, "default", c.Fallback)
}

func TestLookup_ShortNamesStayUnmatched(t *testing.T) {
	t.Parallel()

	// "ai" sits inside "airnow" but is too short to match in reverse
	c := Default().Lookup("AI")
	assert.Empty(t, c.Matched)
	assert.Equal(t, model.TierLLM, c.Tier)
	assert.Equal(t, "default", c.Fallback)
}

func TestLookup_FirstMatchWins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry([]Entry{
		{Key: "mls", Tier: model.TierSpecialized, Reliability: 10},
		{Key: "stellar-mls", Tier: model.TierMLS, Reliability: 100},
	})
	assert.Equal(t, model.TierSpecialized, reg.TierOf("Stellar MLS"))
	assert.Equal(t, 10, reg.ReliabilityOf("Stellar MLS"))
}

func TestRegistry_EntriesIsCopy(t *testing.T) {
	t.Parallel()

	reg := Default()
	entries := reg.Entries()
	entries[0].Tier = model.TierLLM
	assert.Equal(t, model.TierMLS, reg.TierOf("Stellar MLS"))
}

func TestParseRegistry(t *testing.T) {
	t.Parallel()

	data := []byte(`
tiers:
  sources:
    - { key: County Records, tier: 1, reliability: 99 }
    - { key: redfin, tier: 3, reliability: 70 }
  llm_vendors: [mistral]
`)
	reg, err := ParseRegistry(data)
	require.NoError(t, err)

	assert.Equal(t, model.TierMLS, reg.TierOf("Pinellas County Records"))
	assert.Equal(t, model.TierSpecialized, reg.TierOf("Redfin"))
	c := reg.Lookup("Mistral Large")
	assert.Equal(t, "llm-vendor", c.Fallback)
	c = reg.Lookup("GPT")
	assert.Equal(t, "default", c.Fallback)
}

func TestParseRegistry_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"tier out of range":   "tiers:\n  sources:\n    - { key: x, tier: 5, reliability: 1 }\n",
		"reliability too high": "tiers:\n  sources:\n    - { key: x, tier: 1, reliability: 101 }\n",
		"missing key":          "tiers:\n  sources:\n    - { tier: 1, reliability: 1 }\n",
		"empty table":          "tiers:\n  sources: []\n",
		"duplicate key":        "tiers:\n  sources:\n    - { key: a b, tier: 1, reliability: 1 }\n    - { key: A B, tier: 2, reliability: 1 }\n",
		"bad yaml":             "tiers: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRegistry([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tiers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers:\n  sources:\n    - { key: mls, tier: 1, reliability: 100 }\n"), 0o644))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, model.TierMLS, reg.TierOf("Some MLS"))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
