// Package export renders the history stores into interchange formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/tanksense/tanksense/internal/storage/record"
)

// WriteCSV writes records as CSV rows, oldest first. Empty slots are
// skipped; a missing temperature leaves its cell blank.
func WriteCSV(w io.Writer, recs []record.Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"datetime", "level_pct", "volume_liters", "temp_c"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range recs {
		if rec.Empty() {
			continue
		}
		temp := ""
		if rec.TemperatureC != nil {
			temp = fmt.Sprintf("%.1f", *rec.TemperatureC)
		}
		row := []string{
			time.Unix(int64(rec.Timestamp), 0).UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.1f", rec.LevelPct),
			fmt.Sprintf("%.1f", rec.VolumeL),
			temp,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
