package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
)

// WriteCSV writes leads as a CSV file with a header row.
func WriteCSV(path string, leads []model.Lead) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, l := range leads {
		if err := w.Write(Row(l)); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}

// RegionCSV appends leads to one CSV file per region as they are found.
// The header is written once, when a file is first created.
type RegionCSV struct {
	dir   string
	stamp string

	mu    sync.Mutex
	names map[model.Region]string
	taken map[string]bool
}

// NewRegionCSV creates an appender writing into dir.
func NewRegionCSV(dir string, ts time.Time) *RegionCSV {
	return &RegionCSV{
		dir:   dir,
		stamp: ts.Format(TimestampLayout),
		names: make(map[model.Region]string),
		taken: make(map[string]bool),
	}
}

// Path returns the file a region's leads are appended to. Regions without a
// usable name are called "region", and a region whose name is already used
// by a different region gets a numeric suffix, so a region file never
// collides with another region's or with the final export.
func (r *RegionCSV) Path(region model.Region) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path(region)
}

func (r *RegionCSV) path(region model.Region) string {
	name, ok := r.names[region]
	if !ok {
		base := region.SafeName()
		if base == "" {
			base = "region"
		}
		name = base
		for n := 2; r.taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		r.names[region] = name
		r.taken[name] = true
	}
	return filepath.Join(r.dir, "violations_leads_"+name+"_"+r.stamp+".csv")
}

// Append writes one lead row to its region's file.
func (r *RegionCSV) Append(l model.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", r.dir)
	}
	path := r.path(l.Business.Region)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "export: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "export: stat %s", path)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return eris.Wrap(err, "export: write header")
		}
	}
	if err := w.Write(Row(l)); err != nil {
		return eris.Wrap(err, "export: write row")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}
