// Package similarity provides the geodesic distance and token-overlap
// primitives used by duplicate detection. All functions are pure and safe
// for concurrent use.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// earthRadiusMeters is the mean Earth radius used by the spherical model.
const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two
// coordinates. Symmetric; zero iff the coordinates are identical.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// Normalizer tokenizes free-text names and addresses for set comparison.
// The stopword list is configurable so locale-specific address prefixes
// ("calle", "avenida") and descriptive suffixes ("coffee", "shop") can be
// dropped without a rebuild.
type Normalizer struct {
	stopwords map[string]struct{}
}

// NewNormalizer builds a Normalizer. Stopwords are themselves normalized so
// accented entries match de-accented tokens.
func NewNormalizer(stopwords []string) *Normalizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		for _, tok := range strings.Fields(normalizeText(w)) {
			set[tok] = struct{}{}
		}
	}
	return &Normalizer{stopwords: set}
}

// Tokens returns the normalized token set for s: lowercased, diacritics
// stripped, punctuation removed, stopwords dropped.
func (n *Normalizer) Tokens(s string) map[string]struct{} {
	fields := strings.Fields(normalizeText(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, skip := n.stopwords[f]; skip {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// Similarity computes Jaccard similarity over the normalized token sets of
// a and b. Returns 0 when either token set is empty, 1 iff the sets are
// identical. Symmetric and independent of token order.
func (n *Normalizer) Similarity(a, b string) float64 {
	setA := n.Tokens(a)
	setB := n.Tokens(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// normalizeText lowercases s, strips diacritics, and replaces punctuation
// with spaces so "Calle Mayor, 5" and "calle mayor 5" tokenize identically.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = stripDiacritics(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
}

var diacriticsRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsRemover, s)
	if err != nil {
		return s
	}
	return out
}
