package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadscout/internal/model"
)

// numericColumns are written as numbers rather than text.
var numericColumns = map[string]bool{
	"rating":           true,
	"review_count":     true,
	"violations_count": true,
}

// WriteXLSX writes leads to a single "Leads" sheet.
func WriteXLSX(path string, leads []model.Lead) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}

	for _, l := range leads {
		row := sheet.AddRow()
		for i, v := range Row(l) {
			cell := row.AddCell()
			if numericColumns[Columns[i]] {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					cell.SetFloat(f)
					continue
				}
			}
			cell.SetString(v)
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}
