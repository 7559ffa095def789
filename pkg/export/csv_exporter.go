package export

import (
	"fmt"

	"github.com/gocarina/gocsv"
)

// TimetableRow is the flat CSV projection of one published assignment.
type TimetableRow struct {
	ActivityID  string `csv:"activity_id"`
	Subject     string `csv:"subject"`
	Day         string `csv:"day"`
	StartPeriod string `csv:"start_period"`
	EndPeriod   string `csv:"end_period"`
	Space       string `csv:"space"`
}

// CSVExporter renders timetable rows into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the rows.
func (e *CSVExporter) Render(rows []TimetableRow) ([]byte, error) {
	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal timetable csv: %w", err)
	}
	return data, nil
}
