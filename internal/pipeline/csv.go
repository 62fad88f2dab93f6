package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

// WriteCSV writes readings as the flattened table: one header row of dotted
// column names, then one row per reading.
func WriteCSV(w io.Writer, readings []domain.TowerReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.Columns()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range readings {
		if err := cw.Write(readings[i].Row()); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
