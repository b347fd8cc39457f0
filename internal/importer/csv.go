package importer

import (
	"io"

	"github.com/gocarina/gocsv"
)

// csvRow maps the header row of an upload; unknown columns are ignored
type csvRow struct {
	Title      string `csv:"title"`
	Link       string `csv:"link"`
	Topic      string `csv:"topic"`
	SubTopic   string `csv:"subTopic"`
	Difficulty string `csv:"difficulty"`
	SheetType  string `csv:"sheetType"`
}

func (r *csvRow) toRow() Row {
	return Row{
		"title":      r.Title,
		"link":       r.Link,
		"topic":      r.Topic,
		"subTopic":   r.SubTopic,
		"difficulty": r.Difficulty,
		"sheetType":  r.SheetType,
	}
}

// ParseCSV reads a headed CSV upload. Blank lines are skipped. A malformed file
// yields a single parsing error and no data.
func (v *Validator) ParseCSV(r io.Reader) Result {
	var records []*csvRow
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return failed("CSV parsing error: " + err.Error())
	}

	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = rec.toRow()
	}
	return v.Validate(rows, "Row")
}
