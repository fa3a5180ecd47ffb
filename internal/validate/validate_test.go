package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/arbiter/internal/model"
)

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return Default().WithNow(func() time.Time { return fixedNow })
}

func TestValidate(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	tests := []struct {
		name    string
		field   string
		value   model.Value
		valid   bool
		message string
	}{
		{"price ok", "10_listing_price", model.Number(525000), true, ""},
		{"price string with symbols", "market_value_estimate", model.String("$1,250,000"), true, ""},
		{"price too low", "price", model.Number(999), false, "Price too low (<$1,000)"},
		{"price too high", "sale_price", model.Number(100_000_001), false, "Price too high (>$100M)"},
		{"price not numeric", "assessed_value", model.String("call agent"), false, "Price must be a number"},
		{"price bool", "price", model.Bool(true), false, "Price must be a number"},
		{"year ok", "25_year_built", model.Number(1987), true, ""},
		{"year as text", "tax_year", model.String("2024"), true, ""},
		{"year too old", "year_built", model.Number(1699), false, "Year too old (<1700)"},
		{"year limit", "year_built", model.Number(2028), true, ""},
		{"year future", "year_built", model.Number(2029), false, "Year in future"},
		{"year garbage", "year_built", model.String("circa"), false, "Year must be a number"},
		{"latitude ok", "latitude", model.Number(27.77), true, ""},
		{"lat suffix", "coord_lat", model.Number(-91), false, "Latitude out of range (-90 to 90)"},
		{"longitude ok", "longitude", model.String("-82.64"), true, ""},
		{"lng suffix", "geo_lng", model.Number(181), false, "Longitude out of range (-180 to 180)"},
		{"lon suffix", "geo_lon", model.String("east"), false, "Longitude must be a number"},
		{"bedrooms ok", "17_bedrooms", model.Number(3), true, ""},
		{"bedrooms out of range", "bedrooms", model.Number(75), false, "Bedrooms out of range (0-50)"},
		{"bedrooms negative", "bedrooms", model.Number(-1), false, "Bedrooms out of range (0-50)"},
		{"bathrooms ok", "total_bathrooms", model.String("2.5 baths"), true, ""},
		{"half bath", "half_bath", model.Number(31), false, "Bathrooms out of range (0-30)"},
		{"full bath", "full_bath", model.Number(2), true, ""},
		{"sqft ok", "21_living_sqft", model.String("1,850"), true, ""},
		{"sqft small", "square_feet", model.Number(99), false, "Square footage too small (<100)"},
		{"sqft large", "living_area", model.Number(100_001), false, "Square footage too large (>100,000)"},
		{"walk score ok", "74_walk_score", model.Number(88), true, ""},
		{"transit score too high", "transit_score", model.Number(101), false, "Score out of range (0-100)"},
		{"bike score text", "bike_score", model.String("n/a"), false, "Score must be a number"},
		{"no rule", "flood_zone", model.String("AE"), true, ""},
		{"no rule object", "schools", model.FromAny(map[string]any{"elementary": "Lakewood"}), true, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := v.Validate(tc.field, tc.value)
			assert.Equal(t, tc.valid, got.Valid)
			assert.Equal(t, tc.message, got.Message)
		})
	}
}

func TestValidate_FirstMatchWins(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	// Matches both price and sqft patterns; price range applies.
	r, ok := v.Match("sale_price_sqft")
	assert.True(t, ok)
	assert.Equal(t, "price", r.Name)

	got := v.Validate("sale_price_sqft", model.Number(250))
	assert.False(t, got.Valid)
	assert.Equal(t, "Price too low (<$1,000)", got.Message)
}

func TestValidate_CaseInsensitivePatterns(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	got := v.Validate("Bedrooms", model.Number(99))
	assert.False(t, got.Valid)
}

func TestNew_CustomRules(t *testing.T) {
	t.Parallel()

	v := New(RangeRule("hoa fee", `(?i)hoa_fee`, 0, 5000))
	assert.True(t, v.Validate("hoa_fee", model.String("1,200")).Valid)

	got := v.Validate("hoa_fee", model.Number(6000))
	assert.False(t, got.Valid)
	assert.Equal(t, "hoa fee out of range (0 to 5000)", got.Message)

	got = v.Validate("hoa_fee", model.String("none listed"))
	assert.Equal(t, "hoa fee must be a number", got.Message)

	// Default rules are not included.
	assert.True(t, v.Validate("bedrooms", model.Number(99)).Valid)
	assert.Len(t, v.Rules(), 1)
}
