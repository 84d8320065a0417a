package fuzzy

import (
	"math"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
)

// NoMatch is the distance reported when no trusted plate qualifies.
const NoMatch = math.MaxInt

// DefaultThreshold is the edit budget used when none is configured.
const DefaultThreshold = 2

// Match finds the trusted plate that best explains text.
//
// Every window of text whose length lies in [max(1, L-threshold), L+threshold] is compared
// against each plate of length L. Plates are visited in the given order, window lengths
// ascending, start offsets ascending; only a strictly smaller distance replaces the current
// best, so among equally close plates the first one visited wins. A distance of zero ends
// the search immediately.
//
// Cost is O(len(plates) * threshold * len(text) * L) per call. That is fine for a registry
// of tens to low hundreds of plate-length strings; larger registries would need an index.
func Match(text string, plates []string, threshold int) anpr.MatchResult {
	none := anpr.MatchResult{Distance: NoMatch}
	if text == "" || threshold < 0 || len(plates) == 0 {
		return none
	}

	runes := []rune(text)
	best := none

	for _, plate := range plates {
		target := []rune(plate)
		if len(target) == 0 {
			continue
		}

		for w := max(1, len(target)-threshold); w <= len(target)+threshold; w++ {
			for start := 0; start+w <= len(runes); start++ {
				d := distanceRunes(runes[start:start+w], target)
				if d <= threshold && d < best.Distance {
					best = anpr.MatchResult{Plate: plate, Distance: d, Found: true}
					if d == 0 {
						return best
					}
				}
			}
		}
	}
	return best
}

// Matcher binds a threshold so callers don't carry it around.
type Matcher struct {
	threshold int
}

func NewMatcher(threshold int) *Matcher {
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() int {
	return m.threshold
}

func (m *Matcher) Match(text string, plates []string) anpr.MatchResult {
	return Match(text, plates, m.threshold)
}
