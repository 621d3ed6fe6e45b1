// Package progress resolves externally-owned completion percentages for
// the work-items referenced by timeline schedules.
package progress

import (
	"context"

	"timeline/api/internal/timeline"
)

// Source is the work-item progress collaborator: given a set of ids it
// returns a percentage per id it recognizes. Absent entries mean
// "unknown", never an error.
type Source interface {
	DoneRatios(ctx context.Context, ids []int64) (map[int64]int, error)
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// CollectIssueIDs walks the whole document once and returns the
// deduplicated issue ids, in first-seen order.
func CollectIssueIDs(doc timeline.Document) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, category := range doc.Categories {
		for _, event := range category.Events {
			for _, schedule := range event.Schedules {
				id, ok := timeline.IssueID(schedule.Issue)
				if !ok {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Resolve batches every referenced work-item into a single source
// lookup. An empty reference set short-circuits without calling the
// source at all.
func (r *Resolver) Resolve(ctx context.Context, doc timeline.Document) (map[int64]int, error) {
	ids := CollectIssueIDs(doc)
	if len(ids) == 0 {
		return map[int64]int{}, nil
	}
	return r.source.DoneRatios(ctx, ids)
}
