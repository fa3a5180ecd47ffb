// Package validate holds the domain range checks applied to candidate field
// values before they reach arbitration.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/arbiter/internal/model"
)

// Outcome is the verdict on one candidate value.
type Outcome struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Check inspects a value. now is supplied by the validator so that
// date-relative checks stay deterministic under test.
type Check func(v model.Value, now time.Time) Outcome

// Rule binds a field-key pattern to a check.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Check   Check
}

// Validator applies the first rule whose pattern matches a field key.
// Rules are evaluated in order; patterns may overlap.
type Validator struct {
	rules []Rule
	now   func() time.Time
}

// New creates a validator over rules, evaluated in the given order.
func New(rules ...Rule) *Validator {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Validator{rules: cp, now: time.Now}
}

// Default returns a validator over DefaultRules.
func Default() *Validator {
	return New(DefaultRules()...)
}

// WithNow fixes the clock used by date-relative checks.
func (v *Validator) WithNow(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Rules returns a copy of the rule list in evaluation order.
func (v *Validator) Rules() []Rule {
	cp := make([]Rule, len(v.rules))
	copy(cp, v.rules)
	return cp
}

// Match returns the first rule applying to fieldKey.
func (v *Validator) Match(fieldKey string) (Rule, bool) {
	for _, r := range v.rules {
		if r.Pattern.MatchString(fieldKey) {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate checks value against the first rule matching fieldKey. Fields no
// rule matches are always valid.
func (v *Validator) Validate(fieldKey string, value model.Value) Outcome {
	r, ok := v.Match(fieldKey)
	if !ok {
		return Outcome{Valid: true}
	}
	return r.Check(value, v.now())
}

// DefaultRules returns the built-in rule families. Order is significant:
// price is checked before square footage so that "price_per_sqft" is held to
// the price range.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "price",
			Pattern: regexp.MustCompile(`(?i)price|sale_price|listing_price|market_value|assessed_value`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toFloat(v, "$,")
				switch {
				case !ok:
					return invalid("Price must be a number")
				case n < 1000:
					return invalid("Price too low (<$1,000)")
				case n > 100_000_000:
					return invalid("Price too high (>$100M)")
				}
				return valid()
			},
		},
		{
			Name:    "year",
			Pattern: regexp.MustCompile(`(?i)year_built|tax_year`),
			Check: func(v model.Value, now time.Time) Outcome {
				year, ok := toInt(v)
				switch {
				case !ok:
					return invalid("Year must be a number")
				case year < 1700:
					return invalid("Year too old (<1700)")
				case year > float64(now.Year()+2):
					return invalid("Year in future")
				}
				return valid()
			},
		},
		{
			Name:    "latitude",
			Pattern: regexp.MustCompile(`(?i)latitude|lat$`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toFloat(v, "")
				switch {
				case !ok:
					return invalid("Latitude must be a number")
				case n < -90 || n > 90:
					return invalid("Latitude out of range (-90 to 90)")
				}
				return valid()
			},
		},
		{
			Name:    "longitude",
			Pattern: regexp.MustCompile(`(?i)longitude|lon$|lng$`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toFloat(v, "")
				switch {
				case !ok:
					return invalid("Longitude must be a number")
				case n < -180 || n > 180:
					return invalid("Longitude out of range (-180 to 180)")
				}
				return valid()
			},
		},
		{
			Name:    "bedrooms",
			Pattern: regexp.MustCompile(`(?i)bedrooms`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toInt(v)
				switch {
				case !ok:
					return invalid("Bedrooms must be a number")
				case n < 0 || n > 50:
					return invalid("Bedrooms out of range (0-50)")
				}
				return valid()
			},
		},
		{
			Name:    "bathrooms",
			Pattern: regexp.MustCompile(`(?i)bathrooms|full_bath|half_bath`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toFloat(v, "")
				switch {
				case !ok:
					return invalid("Bathrooms must be a number")
				case n < 0 || n > 30:
					return invalid("Bathrooms out of range (0-30)")
				}
				return valid()
			},
		},
		{
			Name:    "sqft",
			Pattern: regexp.MustCompile(`(?i)sqft|square_feet|living_area`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toFloat(v, ",")
				switch {
				case !ok:
					return invalid("Square footage must be a number")
				case n < 100:
					return invalid("Square footage too small (<100)")
				case n > 100_000:
					return invalid("Square footage too large (>100,000)")
				}
				return valid()
			},
		},
		{
			Name:    "score",
			Pattern: regexp.MustCompile(`(?i)walk_score|transit_score|bike_score`),
			Check: func(v model.Value, _ time.Time) Outcome {
				n, ok := toInt(v)
				switch {
				case !ok:
					return invalid("Score must be a number")
				case n < 0 || n > 100:
					return invalid("Score out of range (0-100)")
				}
				return valid()
			},
		},
	}
}

// RangeRule builds a numeric bounds rule, for callers extending the defaults.
func RangeRule(name, pattern string, lo, hi float64) Rule {
	return Rule{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),
		Check: func(v model.Value, _ time.Time) Outcome {
			n, ok := toFloat(v, ",")
			switch {
			case !ok:
				return invalid(fmt.Sprintf("%s must be a number", name))
			case n < lo || n > hi:
				return invalid(fmt.Sprintf("%s out of range (%s to %s)", name, fmtNum(lo), fmtNum(hi)))
			}
			return valid()
		},
	}
}

func valid() Outcome { return Outcome{Valid: true} }

func invalid(msg string) Outcome { return Outcome{Valid: false, Message: msg} }

func fmtNum(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

var (
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

// toFloat reads a number the lenient way sources report them: numeric values
// pass through, text is stripped of the characters in strip and parsed from
// its leading numeric prefix ("3.5 baths" reads as 3.5).
func toFloat(v model.Value, strip string) (float64, bool) {
	if n, ok := v.AsNumber(); ok {
		return n, true
	}
	s := coerceText(v)
	for _, r := range strip {
		s = strings.ReplaceAll(s, string(r), "")
	}
	s = strings.TrimSpace(s)
	m := floatPrefix.FindString(s)
	if m == "" {
		return math.NaN(), false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN(), false
	}
	return n, true
}

// toInt reads an integer from the leading digits of text; numeric values pass
// through unchanged.
func toInt(v model.Value) (float64, bool) {
	if n, ok := v.AsNumber(); ok {
		return n, true
	}
	m := intPrefix.FindString(strings.TrimSpace(coerceText(v)))
	if m == "" {
		return math.NaN(), false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN(), false
	}
	return n, true
}

func coerceText(v model.Value) string {
	switch v.Kind() {
	case model.KindString:
		s, _ := v.AsString()
		return s
	case model.KindObject, model.KindNull, model.KindBool:
		// Never numeric.
		return ""
	}
	return v.String()
}
