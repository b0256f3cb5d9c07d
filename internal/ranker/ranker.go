package ranker

import (
	"sort"

	"github.com/alvmarrod/steam-weaver/internal/config"
	"github.com/alvmarrod/steam-weaver/internal/graph"
	"github.com/alvmarrod/steam-weaver/internal/model"
)

// Score is a candidate's composite score with its components
type Score struct {
	Candidate    model.ID `json:"candidate"`
	Score        float64  `json:"score"`
	Mutual       int      `json:"mutual_count"`
	Jaccard      float64  `json:"jaccard_with_seed"`
	SharedGroups int      `json:"shared_groups"`
	SharedGames  int      `json:"shared_games"`
}

// Ranker scores probable associates of the seed
type Ranker struct {
	weights config.Weights
}

// New creates a ranker with the given per-signal weights
func New(weights config.Weights) *Ranker {
	return &Ranker{weights: weights}
}

// SeedNeighbors returns the seed's friend neighbourhood in snap
func SeedNeighbors(snap *graph.Snapshot) []model.ID {
	return snap.Neighbors(snap.Seed(), model.EdgeFriend)
}

// Rank scores every non-seed node against seedNeighbors and returns the ones
// with a positive score, highest first, ties by id ascending.
// Neighbourhoods are friend edges only.
func (r *Ranker) Rank(snap *graph.Snapshot, seedNeighbors []model.ID) []Score {
	seed := snap.Seed()
	seedSet := toSet(seedNeighbors)

	seedProfile, seedKnown := snap.Profile(seed)
	seedPublic := seedKnown && seedProfile.Public()
	seedGroups := toSet(snap.Groups(seed))
	seedGames := gameSet(seedProfile.Games)

	scores := make([]Score, 0)
	for _, id := range snap.NodeIDs() {
		if id == seed {
			continue
		}

		neighbors := snap.Neighbors(id, model.EdgeFriend)
		mutual := 0
		for _, n := range neighbors {
			if seedSet[n] {
				mutual++
			}
		}
		union := len(neighbors) + len(seedSet) - mutual

		s := Score{Candidate: id, Mutual: mutual}
		if union > 0 {
			s.Jaccard = float64(mutual) / float64(union)
		}

		// Private data is an absence, never a zero-similarity signal
		if p, ok := snap.Profile(id); ok && p.Public() && seedPublic {
			for _, g := range snap.Groups(id) {
				if seedGroups[g] {
					s.SharedGroups++
				}
			}
			for _, game := range p.Games {
				if seedGames[game] {
					s.SharedGames++
				}
			}
		}

		s.Score = r.weights.Mutual*float64(s.Mutual) +
			r.weights.Jaccard*s.Jaccard +
			r.weights.Groups*float64(s.SharedGroups) +
			r.weights.Games*float64(s.SharedGames)

		if s.Score > 0 {
			scores = append(scores, s)
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Candidate < scores[j].Candidate
	})
	return scores
}

func toSet(ids []model.ID) map[model.ID]bool {
	set := make(map[model.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func gameSet(games []uint32) map[uint32]bool {
	set := make(map[uint32]bool, len(games))
	for _, g := range games {
		set[g] = true
	}
	return set
}
