package rescore

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-passcut/internal/exam"
	"github.com/mind-engage/mindengage-passcut/internal/ranking"
)

type NotifierStore interface {
	Population(ctx context.Context, f exam.PopulationFilter) ([]exam.PopulationEntry, error)
	RescoreDetails(ctx context.Context, eventID string) ([]exam.RescoreDetail, error)
	SetRescoreDetailRanks(ctx context.Context, details []exam.RescoreDetail) error
}

// Notifier fills the old and new ranks of an event's RescoreDetail rows.
// The old rank is computed on the current population with every score the
// event moved rolled back, so running it again after a resumed rescore
// gives the same answer.
type Notifier struct {
	Store NotifierStore
}

func NewNotifier(st NotifierStore) *Notifier {
	return &Notifier{Store: st}
}

type popKey struct {
	region int64
	track  exam.Track
}

// Rank recomputes the ranks of every detail row of the event and returns
// how many rows it updated.
func (n *Notifier) Rank(ctx context.Context, examID int64, eventID string) (int, error) {
	all, err := n.Store.RescoreDetails(ctx, eventID)
	if err != nil {
		return 0, err
	}
	groups := map[popKey][]exam.RescoreDetail{}
	var order []popKey
	for _, d := range all {
		k := popKey{d.RegionID, d.Track}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], d)
	}

	ranked := make([]exam.RescoreDetail, 0, len(all))
	for _, k := range order {
		cur, err := n.Store.Population(ctx, exam.PopulationFilter{ExamID: examID, RegionID: k.region, Track: k.track})
		if err != nil {
			return 0, err
		}
		group := groups[k]
		reverted := make(map[int64]exam.RescoreDetail, len(group))
		for _, d := range group {
			reverted[d.SubmissionID] = d
		}
		prev := make([]exam.PopulationEntry, len(cur))
		for i, e := range cur {
			if d, ok := reverted[e.SubmissionID]; ok {
				e.FinalScore, e.HasCutoff = d.OldFinal, d.OldCutoff
			}
			prev[i] = e
		}

		for _, d := range group {
			oldSelf := exam.PopulationEntry{SubmissionID: d.SubmissionID, RegionID: k.region, Track: k.track, FinalScore: d.OldFinal, HasCutoff: d.OldCutoff}
			newSelf := exam.PopulationEntry{SubmissionID: d.SubmissionID, RegionID: k.region, Track: k.track, FinalScore: d.NewFinal, HasCutoff: d.NewCutoff}
			if d.OldRank, err = rankOrNil(prev, oldSelf); err != nil {
				return 0, err
			}
			if d.NewRank, err = rankOrNil(cur, newSelf); err != nil {
				return 0, err
			}
			ranked = append(ranked, d)
		}
	}
	if err := n.Store.SetRescoreDetailRanks(ctx, ranked); err != nil {
		return 0, err
	}
	return len(ranked), nil
}

func rankOrNil(pop []exam.PopulationEntry, self exam.PopulationEntry) (*int, error) {
	st, err := ranking.StandingOf(pop, self)
	if errors.Is(err, ranking.ErrNoPopulation) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st.Rank, nil
}
