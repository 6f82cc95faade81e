package analysis

import (
	"github.com/mauv0809/concession-impact/internal/models"
)

// ExtractEpisodes run-length encodes each drug's dense timeline and returns
// one Episode per run of concession months, ordered by (drug, first month).
// The timeline is expected to be gap-free per drug, as BuildTimeline
// produces; months are mapped back from run indices positionally.
func ExtractEpisodes(timeline []models.ConcessionFlag) []models.Episode {
	sorted, groups := groupByDrug(timeline,
		func(f models.ConcessionFlag) string { return f.DrugID },
		func(f models.ConcessionFlag) models.Month { return f.Month },
	)

	var episodes []models.Episode
	for _, g := range groups {
		rows := sorted[g[0]:g[1]]
		values := make([]bool, len(rows))
		for i, r := range rows {
			values[i] = r.IsConcession
		}

		for _, run := range RunLengths(values) {
			if !run.Value {
				continue
			}
			episodes = append(episodes, models.Episode{
				DrugID:         rows[run.Start].DrugID,
				FirstMonth:     rows[run.Start].Month,
				LastMonth:      rows[run.End()].Month,
				DurationMonths: run.Length,
			})
		}
	}
	return episodes
}

// EvaluableEpisodes drops episodes whose post-concession window would run
// past latest: an episode is kept only when LastMonth+window <= latest.
// latest is the last month of the whole dataset, computed once by the caller.
func EvaluableEpisodes(episodes []models.Episode, latest models.Month, window int) []models.Episode {
	out := make([]models.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.LastMonth.AddMonths(window) > latest {
			continue
		}
		out = append(out, ep)
	}
	return out
}
