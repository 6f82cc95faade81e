package analysis

import (
	"cmp"
	"slices"

	"github.com/mauv0809/concession-impact/internal/models"
)

type drugMonth struct {
	drugID string
	month  models.Month
}

// DedupeFlags keeps the first record seen for each (drug, month) pair and
// preserves input order otherwise.
func DedupeFlags(flags []models.ConcessionFlag) []models.ConcessionFlag {
	seen := make(map[drugMonth]struct{}, len(flags))
	out := make([]models.ConcessionFlag, 0, len(flags))
	for _, f := range flags {
		key := drugMonth{f.DrugID, f.Month}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// BuildTimeline densifies sparse concession flags onto a single global
// monthly calendar: every drug gets one row for every month between the
// earliest and latest month seen for any drug. Months without a record are
// "no concession". Output is sorted by (drug, month).
func BuildTimeline(flags []models.ConcessionFlag) []models.ConcessionFlag {
	flags = DedupeFlags(flags)
	if len(flags) == 0 {
		return nil
	}

	first, last := flags[0].Month, flags[0].Month
	observed := make(map[drugMonth]bool, len(flags))
	known := make(map[string]struct{})
	var drugs []string
	for _, f := range flags {
		first = min(first, f.Month)
		last = max(last, f.Month)
		if _, ok := known[f.DrugID]; !ok {
			known[f.DrugID] = struct{}{}
			drugs = append(drugs, f.DrugID)
		}
		observed[drugMonth{f.DrugID, f.Month}] = f.IsConcession
	}
	slices.Sort(drugs)

	calendar := models.MonthRange(first, last)
	timeline := make([]models.ConcessionFlag, 0, len(drugs)*len(calendar))
	for _, drug := range drugs {
		for _, m := range calendar {
			timeline = append(timeline, models.ConcessionFlag{
				DrugID:       drug,
				Month:        m,
				IsConcession: observed[drugMonth{drug, m}],
			})
		}
	}
	return timeline
}

// LatestMonth returns the latest month present in the timeline.
func LatestMonth(timeline []models.ConcessionFlag) (models.Month, bool) {
	if len(timeline) == 0 {
		return 0, false
	}
	latest := timeline[0].Month
	for _, f := range timeline[1:] {
		latest = max(latest, f.Month)
	}
	return latest, true
}

// groupByDrug returns contiguous [start, end) index ranges of rows sharing a
// drug, after sorting a copy of rows by (drug, month).
func groupByDrug[T any](rows []T, drug func(T) string, month func(T) models.Month) ([]T, [][2]int) {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b T) int {
		if c := cmp.Compare(drug(a), drug(b)); c != 0 {
			return c
		}
		return cmp.Compare(month(a), month(b))
	})

	var groups [][2]int
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && drug(sorted[end]) == drug(sorted[start]) {
			end++
		}
		groups = append(groups, [2]int{start, end})
		start = end
	}
	return sorted, groups
}
