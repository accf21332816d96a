// Package export writes leads to CSV, JSON and XLSX files.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
)

// TimestampLayout formats the timestamp embedded in output file names.
const TimestampLayout = "2006-01-02_15-04"

// MaxReviewSlots is the number of flagged reviews flattened into a row.
const MaxReviewSlots = 3

// Columns is the ordered lead row layout.
var Columns = func() []string {
	cols := []string{
		"business_name", "website_url", "email", "phone", "address",
		"rating", "review_count", "violations_count", "region", "category", "maps_url",
	}
	for i := 1; i <= MaxReviewSlots; i++ {
		p := "review_" + strconv.Itoa(i) + "_"
		cols = append(cols, p+"text", p+"reason", p+"confidence", p+"rating", p+"reviewer", p+"date")
	}
	return cols
}()

// Row flattens a lead into Columns order. Missing review slots are empty strings.
func Row(l model.Lead) []string {
	b := l.Business
	row := make([]string, 0, len(Columns))
	row = append(row,
		b.Name,
		b.Website,
		b.Email,
		b.Phone,
		b.Address,
		strconv.FormatFloat(b.Rating, 'f', -1, 64),
		strconv.Itoa(b.ReviewCount),
		strconv.Itoa(l.ViolationsCount()),
		b.Region.PostalCode,
		b.Category,
		b.SourceURL,
	)
	for i := 0; i < MaxReviewSlots; i++ {
		if i >= len(l.FlaggedReviews) {
			row = append(row, "", "", "", "", "", "")
			continue
		}
		fr := l.FlaggedReviews[i]
		row = append(row,
			fr.Text,
			fr.Classification.Reasoning,
			strconv.FormatFloat(fr.Classification.Confidence, 'f', 2, 64),
			strconv.Itoa(fr.Rating),
			fr.ReviewerName,
			fr.Date,
		)
	}
	return row
}

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormats parses a list like "csv,json". Unknown entries are an error;
// an empty list means csv and json.
func ParseFormats(list []string) ([]Format, error) {
	var out []Format
	seen := make(map[Format]bool)
	for _, item := range list {
		for _, part := range strings.Split(item, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(part)))
			if f == "" {
				continue
			}
			switch f {
			case FormatCSV, FormatJSON, FormatXLSX:
			default:
				return nil, eris.Errorf("export: unknown format %q", part)
			}
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		out = []Format{FormatCSV, FormatJSON}
	}
	return out, nil
}

// Paths returns the final output file path for each format.
func Paths(dir string, ts time.Time, formats []Format) map[Format]string {
	stamp := ts.Format(TimestampLayout)
	out := make(map[Format]string, len(formats))
	for _, f := range formats {
		switch f {
		case FormatCSV:
			out[f] = filepath.Join(dir, "violations_leads_"+stamp+".csv")
		case FormatJSON:
			out[f] = filepath.Join(dir, "violations_details_"+stamp+".json")
		case FormatXLSX:
			out[f] = filepath.Join(dir, "violations_leads_"+stamp+".xlsx")
		}
	}
	return out
}

// WriteAll writes leads in every format and returns the written paths in
// format order. No leads writes nothing.
func WriteAll(dir string, ts time.Time, leads []model.Lead, formats []Format) ([]string, error) {
	if len(leads) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}

	paths := Paths(dir, ts, formats)
	var written []string
	for _, f := range formats {
		path := paths[f]
		var err error
		switch f {
		case FormatCSV:
			err = WriteCSV(path, leads)
		case FormatJSON:
			err = WriteJSON(path, leads)
		case FormatXLSX:
			err = WriteXLSX(path, leads)
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteJSON writes the full lead records, flagged reviews included.
func WriteJSON(path string, leads []model.Lead) error {
	if leads == nil {
		leads = []model.Lead{}
	}
	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal leads")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
