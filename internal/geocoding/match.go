package geocoding

import "strings"

// matchThreshold is the score at which a free-text address is considered to
// agree with the geocoded result.
const matchThreshold = 0.3

// MatchResult scores free-text address agreement against a geocoded address.
// Advisory only: used for display and triage hints, never as a gate.
type MatchResult struct {
	Matches           bool    `json:"matches"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
	GeocodedAddress   string  `json:"geocoded_address"`
	StreetMatch       bool    `json:"street_match"`
	NeighborhoodMatch bool    `json:"neighborhood_match"`
	CityMatch         bool    `json:"city_match"`
	StateMatch        bool    `json:"state_match"`
}

// ValidateAddressMatch compares a user-provided address against the geocoded
// one using weighted component matches with a fuzzy word-overlap fallback.
func ValidateAddressMatch(provided string, geocoded Address) MatchResult {
	provided = strings.ToLower(strings.TrimSpace(provided))
	if provided == "" {
		return MatchResult{
			Matches:         true,
			Confidence:      0.5,
			Reason:          "No address provided",
			GeocodedAddress: geocoded.FormattedAddress,
		}
	}

	// A fallback address carries no real components to compare against;
	// never penalize the reporter for a provider outage.
	if geocoded.IsFallback || geocoded.Error != "" {
		return MatchResult{
			Matches:         true,
			Confidence:      0.5,
			Reason:          "Geocoding unavailable",
			GeocodedAddress: geocoded.FormattedAddress,
		}
	}

	formatted := strings.ToLower(geocoded.FormattedAddress)

	res := MatchResult{GeocodedAddress: geocoded.FormattedAddress}
	res.StreetMatch = componentMatch(provided, geocoded.Street)
	res.NeighborhoodMatch = componentMatch(provided, geocoded.Neighborhood)
	res.CityMatch = componentMatch(provided, geocoded.City) ||
		(geocoded.City != "" && strings.Contains(formatted, provided))
	res.StateMatch = componentMatch(provided, geocoded.State)

	score := 0.0
	if res.StreetMatch {
		score += 0.4
	}
	if res.NeighborhoodMatch {
		score += 0.3
	}
	if res.CityMatch {
		score += 0.2
	}
	if res.StateMatch {
		score += 0.1
	}

	if score == 0 {
		score = fuzzyOverlap(provided, formatted)
	}

	res.Confidence = min(score, 1.0)
	res.Matches = score >= matchThreshold
	switch {
	case score >= 0.5:
		res.Reason = "Strong address match"
	case score >= matchThreshold:
		res.Reason = "Partial address match"
	default:
		res.Reason = "Address does not match GPS location"
	}
	return res
}

func componentMatch(provided, component string) bool {
	return component != "" && strings.Contains(provided, strings.ToLower(component))
}

// fuzzyOverlap scores the share of significant words (longer than three
// characters) the two strings have in common, capped at 0.5.
func fuzzyOverlap(provided, geocoded string) float64 {
	pw := significantWords(provided)
	gw := significantWords(geocoded)
	if len(pw) == 0 {
		return 0
	}

	common := 0
	for _, p := range pw {
		for _, g := range gw {
			if strings.Contains(g, p) || strings.Contains(p, g) {
				common++
				break
			}
		}
	}

	return min(float64(common)/float64(len(pw))*0.5, 0.5)
}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}
