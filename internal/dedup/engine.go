// Package dedup classifies fetched candidates against existing datasets.
// Two distinct comparisons live here: fuzzy geospatial/text matching, which
// answers "does the dataset already have this place from another source",
// and exact natural-key matching, which answers "have I already ingested
// this exact upstream record". They must not be conflated.
package dedup

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/config"
	"github.com/wanderset/places-cli/internal/model"
	"github.com/wanderset/places-cli/internal/similarity"
)

// Tier is the confidence level of a match.
type Tier string

const (
	// TierStrong is confident enough to auto-merge without review.
	TierStrong Tier = "strong"
	// TierBorderline needs a human accept/reject decision.
	TierBorderline Tier = "borderline"
	// TierNone means no plausible match was found.
	TierNone Tier = "none"
)

// Target is a unified fuzzy comparison target. Reference dataset rows and
// Place Store projections both convert into it; the matching algorithm is
// identical for both.
type Target struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// ReferenceTargets converts reference dataset rows to comparison targets.
func ReferenceTargets(refs []model.Reference) []Target {
	targets := make([]Target, len(refs))
	for i, r := range refs {
		targets[i] = Target{Name: r.Name, Address: r.Address, Lat: r.Lat, Lon: r.Lon}
	}
	return targets
}

// MatchResult describes how a candidate compares to its best match.
// Ephemeral: recomputed each run, never persisted as its own entity.
type MatchResult struct {
	IsDuplicate    bool    `json:"is_duplicate"`
	Tier           Tier    `json:"tier"`
	MatchedName    string  `json:"matched_name,omitempty"`
	MatchedAddress string  `json:"matched_address,omitempty"`
	DistanceMeters float64 `json:"distance_meters"`
	NameScore      float64 `json:"name_score"`
	AddressScore   float64 `json:"address_score"`
}

// Classified pairs a candidate with its match result.
type Classified struct {
	Candidate model.Candidate `json:"candidate"`
	Match     MatchResult     `json:"match"`
}

// Partition is the engine's three-way split of a candidate list.
type Partition struct {
	Duplicates []Classified
	Borderline []Classified
	New        []Classified
}

// Decision is the outcome of human review of a borderline match.
type Decision string

const (
	// DecisionAccept confirms the match: the candidate is a duplicate.
	DecisionAccept Decision = "accept"
	// DecisionReject denies the match: the candidate is genuinely new.
	DecisionReject Decision = "reject"
)

// Resolver adjudicates one borderline candidate. Injected so the engine has
// no I/O dependency; the CLI wires a console prompt, tests wire a script.
type Resolver func(ctx context.Context, c Classified) (Decision, error)

// Engine classifies candidates using tiered proximity + text thresholds.
// Pure function of its inputs and the configured thresholds.
type Engine struct {
	cfg      config.DedupConfig
	nameNorm *similarity.Normalizer
	addrNorm *similarity.Normalizer
}

// NewEngine creates an Engine with the given thresholds.
func NewEngine(cfg config.DedupConfig) *Engine {
	return &Engine{
		cfg:      cfg,
		nameNorm: similarity.NewNormalizer(cfg.NameStopwords),
		addrNorm: similarity.NewNormalizer(cfg.AddressStopwords),
	}
}

// Match compares one candidate against every target and returns the best
// result. Proximity and text similarity jointly determine the tier: pure
// proximity misclassifies adjacent-but-distinct businesses, and pure text
// similarity misclassifies chains. At most one borderline match is kept,
// the highest name score within the review band.
func (e *Engine) Match(c model.Candidate, targets []Target) MatchResult {
	best := MatchResult{Tier: TierNone}

	for _, t := range targets {
		d := similarity.Haversine(c.Lat, c.Lon, t.Lat, t.Lon)
		if d > e.cfg.BorderlineDistanceM {
			continue
		}

		nameScore := e.nameNorm.Similarity(c.Name, t.Name)
		addrScore := e.addrNorm.Similarity(c.Address, t.Address)

		r := MatchResult{
			MatchedName:    t.Name,
			MatchedAddress: t.Address,
			DistanceMeters: d,
			NameScore:      nameScore,
			AddressScore:   addrScore,
		}

		switch {
		case d <= e.cfg.StrongDistanceM && (addrScore >= e.cfg.AddressSimilarity || nameScore >= e.cfg.NameSimilarityNear):
			r.Tier = TierStrong
			r.IsDuplicate = true
		case d > e.cfg.StrongDistanceM && nameScore >= e.cfg.NameSimilarityFar:
			// Tight name match compensates for looser proximity.
			r.Tier = TierStrong
			r.IsDuplicate = true
		case d > e.cfg.StrongDistanceM && nameScore > e.cfg.BorderlineNameFloor:
			// Review only applies in the band between the radii. Inside the
			// strong radius, a name this weak is a distinct neighbor.
			r.Tier = TierBorderline
		default:
			continue
		}

		if betterMatch(r, best) {
			best = r
		}
	}

	return best
}

// betterMatch ranks candidates for the single retained match: any strong
// beats any borderline; within a tier, higher name score wins, then
// shorter distance.
func betterMatch(a, b MatchResult) bool {
	if b.Tier == TierNone {
		return true
	}
	if a.Tier != b.Tier {
		return a.Tier == TierStrong
	}
	if a.NameScore != b.NameScore {
		return a.NameScore > b.NameScore
	}
	return a.DistanceMeters < b.DistanceMeters
}

// Classify partitions candidates into duplicates, borderline, and new.
// The borderline list is sorted by ascending distance for review.
func (e *Engine) Classify(candidates []model.Candidate, targets []Target) Partition {
	var p Partition

	for _, c := range candidates {
		r := e.Match(c, targets)
		cl := Classified{Candidate: c, Match: r}
		switch r.Tier {
		case TierStrong:
			p.Duplicates = append(p.Duplicates, cl)
		case TierBorderline:
			p.Borderline = append(p.Borderline, cl)
		default:
			p.New = append(p.New, cl)
		}
	}

	sort.SliceStable(p.Borderline, func(i, j int) bool {
		return p.Borderline[i].Match.DistanceMeters < p.Borderline[j].Match.DistanceMeters
	})

	zap.L().Info("classified candidates",
		zap.Int("total", len(candidates)),
		zap.Int("duplicates", len(p.Duplicates)),
		zap.Int("borderline", len(p.Borderline)),
		zap.Int("new", len(p.New)),
	)

	return p
}

// Resolve runs the injected decision callback over every borderline
// candidate. Accepted candidates are reclassified as duplicates, rejected
// ones join the new set. The borderline list is emptied.
func (e *Engine) Resolve(ctx context.Context, p *Partition, resolve Resolver) error {
	for _, cl := range p.Borderline {
		decision, err := resolve(ctx, cl)
		if err != nil {
			return eris.Wrap(err, "dedup: resolve borderline")
		}

		switch decision {
		case DecisionAccept:
			cl.Match.IsDuplicate = true
			p.Duplicates = append(p.Duplicates, cl)
		case DecisionReject:
			p.New = append(p.New, cl)
		default:
			return eris.Errorf("dedup: unknown decision %q", decision)
		}
	}
	p.Borderline = nil
	return nil
}

// FilterKnown splits candidates by exact natural-key membership in the
// given key set, typically the Place Store's active projection. This is the
// cheap incremental-sync comparison, separate from fuzzy matching.
func FilterKnown(candidates []model.Candidate, known map[model.Key]bool) (fresh, seen []model.Candidate) {
	for _, c := range candidates {
		if known[c.Key()] {
			seen = append(seen, c)
		} else {
			fresh = append(fresh, c)
		}
	}
	return fresh, seen
}
