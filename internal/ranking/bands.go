package ranking

import (
	"sort"
)

type Level string

const (
	LevelSure           Level = "SURE"
	LevelLikely         Level = "LIKELY"
	LevelPossible       Level = "POSSIBLE"
	LevelChallenge      Level = "CHALLENGE"
	LevelBelowChallenge Level = "BELOW_CHALLENGE"
)

// Thresholds are the last ranks of the sure, likely and possible bands.
type Thresholds struct {
	Recruit      int     `json:"recruit_count"`
	PassMultiple float64 `json:"pass_multiple"`
	Sure         int     `json:"sure"`
	Likely       int     `json:"likely"`
	Possible     int     `json:"possible"`
}

// BandThresholds derives the band boundaries from a recruit count.
func BandThresholds(recruit int) (Thresholds, bool) {
	m, ok := PassMultiple(recruit)
	if !ok {
		return Thresholds{}, false
	}
	possible, _ := PassCount(recruit)
	return Thresholds{
		Recruit:      recruit,
		PassMultiple: m,
		Sure:         recruit,
		Likely:       stableFloor(float64(recruit) * m * 0.8),
		Possible:     possible,
	}, true
}

// Classify maps a rank to its band. Submissions with a cutoff subject are
// outside the clean population and always land below the challenge band.
func Classify(rank int, hasCutoff bool, th Thresholds) Level {
	switch {
	case hasCutoff:
		return LevelBelowChallenge
	case rank <= th.Sure:
		return LevelSure
	case rank <= th.Likely:
		return LevelLikely
	case rank <= th.Possible:
		return LevelPossible
	}
	return LevelChallenge
}

// Bucket is one distinct score and how many submissions hold it.
type Bucket struct {
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

// Distribution is a score histogram sorted from the highest score down.
type Distribution struct {
	buckets []Bucket
	total   int
	sum     float64
}

func NewDistribution(scores []float64) Distribution {
	counts := map[float64]int{}
	var d Distribution
	for _, s := range scores {
		counts[s]++
		d.sum += s
	}
	d.total = len(scores)
	for s, n := range counts {
		d.buckets = append(d.buckets, Bucket{Score: s, Count: n})
	}
	sort.Slice(d.buckets, func(i, j int) bool { return d.buckets[i].Score > d.buckets[j].Score })
	return d
}

func (d Distribution) Total() int { return d.total }

func (d Distribution) Buckets() []Bucket { return d.buckets }

func (d Distribution) Average() float64 {
	if d.total == 0 {
		return 0
	}
	return round2(d.sum / float64(d.total))
}

// CountAt is the number of submissions holding exactly score.
func (d Distribution) CountAt(score float64) int {
	for _, b := range d.buckets {
		if b.Score == score {
			return b.Count
		}
	}
	return 0
}

// ScoreAtRank walks the histogram from the top, accumulating counts until
// rank is covered, and returns the score held at that rank.
func (d Distribution) ScoreAtRank(rank int) (float64, bool) {
	if rank < 1 || rank > d.total {
		return 0, false
	}
	acc := 0
	for _, b := range d.buckets {
		acc += b.Count
		if acc >= rank {
			return b.Score, true
		}
	}
	return 0, false
}

// Cut is the score at rank threshold, or at the last rank when fewer
// submissions exist than the threshold.
func (d Distribution) Cut(threshold int) (float64, bool) {
	if threshold > d.total {
		threshold = d.total
	}
	return d.ScoreAtRank(threshold)
}

// BandRange is the score span covered by one band.
type BandRange struct {
	Level    Level    `json:"level"`
	FromRank int      `json:"from_rank"`
	ToRank   int      `json:"to_rank"`
	MaxScore *float64 `json:"max_score,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"`
}

// BandRanges reports min/max scores of each band over a clean population.
// A band whose first rank lies past the population has no scores.
func BandRanges(d Distribution, th Thresholds) []BandRange {
	spans := []BandRange{
		{Level: LevelSure, FromRank: 1, ToRank: th.Sure},
		{Level: LevelLikely, FromRank: th.Sure + 1, ToRank: th.Likely},
		{Level: LevelPossible, FromRank: th.Likely + 1, ToRank: th.Possible},
		{Level: LevelChallenge, FromRank: th.Possible + 1, ToRank: d.total},
	}
	for i := range spans {
		sp := &spans[i]
		if sp.FromRank > sp.ToRank || sp.FromRank > d.total {
			continue
		}
		if hi, ok := d.ScoreAtRank(sp.FromRank); ok {
			sp.MaxScore = &hi
		}
		if lo, ok := d.Cut(sp.ToRank); ok {
			sp.MinScore = &lo
		}
	}
	return spans
}
