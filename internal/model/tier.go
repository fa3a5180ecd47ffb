package model

import "strconv"

// Tier ranks a data source's trust level. Lower is more trusted.
type Tier int

const (
	TierMLS Tier = iota + 1 // authoritative system of record
	TierAPI                 // high-trust structured APIs (geocoding, places)
	TierSpecialized         // specialized APIs (walkability, flood, crime, weather)
	TierLLM                 // generative model output
)

// Valid reports whether t is one of the four defined tiers.
func (t Tier) Valid() bool { return t >= TierMLS && t <= TierLLM }

// Label returns the short display label for a tier.
func (t Tier) Label() string {
	switch t {
	case TierMLS:
		return "MLS"
	case TierAPI:
		return "Google"
	case TierSpecialized:
		return "API"
	case TierLLM:
		return "LLM"
	}
	return "Unknown"
}

func (t Tier) String() string { return strconv.Itoa(int(t)) }

// Confidence is the coarse trust grade stamped on an accepted value.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ConfidenceForTier grades a freshly set value: High for tiers 1-2, Medium
// for tier 3, Low for tier 4.
func ConfidenceForTier(t Tier) Confidence {
	switch {
	case t <= TierAPI:
		return ConfidenceHigh
	case t == TierSpecialized:
		return ConfidenceMedium
	}
	return ConfidenceLow
}
