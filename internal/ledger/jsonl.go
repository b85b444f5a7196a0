package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"llmvisor/internal/common/fsutil"
	"llmvisor/pkg/types"
)

const (
	costsFile  = "costs.jsonl"
	alertsFile = "alerts.jsonl"
	// maxLine bounds a single JSONL record when scanning.
	maxLine = 1 << 20
)

// JSONL stores one JSON object per line in files under dir. Each append is
// fsynced before returning.
type JSONL struct {
	dir string
}

func NewJSONL(dir string) *JSONL { return &JSONL{dir: dir} }

func (j *JSONL) AppendCost(_ context.Context, e types.CostEntry) error {
	return appendRecord(filepath.Join(j.dir, costsFile), e)
}

func (j *JSONL) AppendAlert(_ context.Context, a types.Alert) error {
	return appendRecord(filepath.Join(j.dir, alertsFile), a)
}

func (j *JSONL) Costs(ctx context.Context, since time.Time) ([]types.CostEntry, error) {
	var out []types.CostEntry
	err := scanRecords(ctx, filepath.Join(j.dir, costsFile), func(line []byte) {
		var e types.CostEntry
		if json.Unmarshal(line, &e) != nil {
			return
		}
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	})
	return out, err
}

func (j *JSONL) Alerts(ctx context.Context, limit int) ([]types.Alert, error) {
	var all []types.Alert
	err := scanRecords(ctx, filepath.Join(j.dir, alertsFile), func(line []byte) {
		var a types.Alert
		if json.Unmarshal(line, &a) == nil {
			all = append(all, a)
		}
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.Alert, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (j *JSONL) Close() error { return nil }

func appendRecord(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return fsutil.AppendLine(path, b)
}

// scanRecords calls fn for every non-empty line. A missing file is empty.
// Malformed lines are left to fn to skip so one torn write cannot hide the
// rest of the ledger.
func scanRecords(ctx context.Context, path string, fn func([]byte)) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		fn(sc.Bytes())
	}
	return sc.Err()
}
