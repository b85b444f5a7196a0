// Package ledger persists the append-only cloud cost ledger and the alert
// log. Two backends exist: line-delimited JSON files (default) and SQLite.
package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"llmvisor/internal/common/fsutil"
	"llmvisor/pkg/types"
)

// Backend names accepted by Open.
const (
	KindJSONL  = "jsonl"
	KindSQLite = "sqlite"
)

// Store is the persistence capability used by cloud fallback and the guardian.
type Store interface {
	AppendCost(ctx context.Context, e types.CostEntry) error
	// Costs returns entries with Timestamp >= since, oldest first.
	Costs(ctx context.Context, since time.Time) ([]types.CostEntry, error)
	AppendAlert(ctx context.Context, a types.Alert) error
	// Alerts returns up to limit alerts, newest first. limit <= 0 means all.
	Alerts(ctx context.Context, limit int) ([]types.Alert, error)
	Close() error
}

// Open returns the store selected by kind rooted at dataDir. An empty kind
// selects JSONL.
func Open(kind, dataDir string) (Store, error) {
	dir, err := fsutil.ExpandHome(dataDir)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "", KindJSONL:
		return NewJSONL(dir), nil
	case KindSQLite:
		return OpenSQLite(filepath.Join(dir, "llmvisor.db"))
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q (want jsonl or sqlite)", kind)
	}
}

// Summarize aggregates entries into a per-provider, per-model report. date
// labels the report and is not used for filtering.
func Summarize(date string, entries []types.CostEntry) types.CostReport {
	rep := types.CostReport{Date: date, ByProvider: map[string]types.ProviderCost{}}
	for _, e := range entries {
		pc := rep.ByProvider[e.Provider]
		if pc.Models == nil {
			pc.Models = map[string]types.ModelCost{}
		}
		mc := pc.Models[e.Model]
		mc.Requests++
		mc.InputTokens += e.InputTokens
		mc.OutputTokens += e.OutputTokens
		mc.CostUSD += e.CostUSD
		pc.Models[e.Model] = mc

		pc.Requests++
		pc.InputTokens += e.InputTokens
		pc.OutputTokens += e.OutputTokens
		pc.CostUSD += e.CostUSD
		rep.ByProvider[e.Provider] = pc

		rep.Requests++
		rep.TotalUSD += e.CostUSD
	}
	return rep
}

// StartOfDay returns local midnight for t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
