package source

import (
	"context"

	"walter-bot/internal/model"
)

// StopSource is the narrow surface the bot and the daily job consume.
//
// GetStops never fails: network and parse errors degrade to an empty slice,
// visible only through logs and metrics. Callers cannot tell "no outages"
// from "fetch failed" by the return value alone; that is deliberate, the
// scheduled job must never break on a flaky portal.
type StopSource interface {
	Name() string
	GetStops(ctx context.Context) []model.OutageRecord
}

// dedup collapses records sharing the same identity tuple, keeping the first
// occurrence and its position.
func dedup(records []model.OutageRecord) []model.OutageRecord {
	seen := make(map[string]bool, len(records))
	out := make([]model.OutageRecord, 0, len(records))
	for _, r := range records {
		k := r.DedupKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
