package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/tanksense/tanksense/internal/storage/record"
)

func TestWriteCSV(t *testing.T) {
	recs := []record.Record{
		{Timestamp: 1_700_000_000, LevelPct: 52.34, VolumeL: 104.68, TemperatureC: record.Temp(18.25)},
		{Timestamp: 1_700_000_060, LevelPct: 52.0, VolumeL: 104.0},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, recs); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "datetime,level_pct,volume_liters,temp_c" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "2023-11-14 22:13,52.3,104.7,18.2" {
		t.Errorf("unexpected row %q", lines[1])
	}
	// Missing temperature leaves the cell blank.
	if !strings.HasSuffix(lines[2], ",") {
		t.Errorf("expected blank temp cell, got %q", lines[2])
	}
}

func TestWriteCSV_SkipsEmptySlots(t *testing.T) {
	recs := []record.Record{
		{},
		{Timestamp: 1_700_000_000, LevelPct: 50, VolumeL: 100},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, recs); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
}

func TestWriteParquet_RoundTrip(t *testing.T) {
	recs := []record.Record{
		{Timestamp: 1_700_000_000, LevelPct: 52.5, VolumeL: 105, TemperatureC: record.Temp(18.5)},
		{Timestamp: 1_700_000_060, LevelPct: 52.0, VolumeL: 104},
		{}, // empty slot, skipped
	}

	var buf bytes.Buffer
	n, err := WriteParquet(&buf, recs)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows written, got %d", n)
	}

	rows, err := parquet.Read[HistoryRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Timestamp != 1_700_000_000 || rows[0].VolumeL != 105 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[0].TemperatureC == nil || *rows[0].TemperatureC != 18.5 {
		t.Errorf("expected temp=18.5, got %v", rows[0].TemperatureC)
	}
	if rows[1].TemperatureC != nil {
		t.Errorf("expected nil temp, got %v", *rows[1].TemperatureC)
	}
}

func TestWriteParquet_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteParquet(&buf, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows, got %d", n)
	}
	// An empty file still carries a valid Parquet footer.
	if buf.Len() == 0 {
		t.Error("expected non-empty output")
	}
}
