package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/tanksense/tanksense/internal/storage/record"
)

// HistoryRow is one history record in Parquet column layout.
type HistoryRow struct {
	Timestamp    int64    `parquet:"timestamp"`
	LevelPct     float32  `parquet:"level_pct"`
	VolumeL      float32  `parquet:"volume_liters"`
	TemperatureC *float32 `parquet:"temp_c,optional"`
}

// WriteParquet writes records as a zstd-compressed Parquet file,
// oldest first, skipping empty slots. Returns the number of rows
// written.
func WriteParquet(w io.Writer, recs []record.Record) (int, error) {
	rows := make([]HistoryRow, 0, len(recs))
	for _, rec := range recs {
		if rec.Empty() {
			continue
		}
		rows = append(rows, HistoryRow{
			Timestamp:    int64(rec.Timestamp),
			LevelPct:     rec.LevelPct,
			VolumeL:      rec.VolumeL,
			TemperatureC: rec.TemperatureC,
		})
	}

	pw := parquet.NewGenericWriter[HistoryRow](w, parquet.Compression(&parquet.Zstd))

	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			pw.Close()
			return 0, fmt.Errorf("write rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("close writer: %w", err)
	}
	return len(rows), nil
}
