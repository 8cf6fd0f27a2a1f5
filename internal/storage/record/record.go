// Package record defines the persisted sample record and its binary codec.
//
// The on-disk layout is fixed and shared with external backup tooling:
//
//	header (4 bytes):  u16 head, u16 count
//	record (16 bytes): u32 ts, f32 level_pct, f32 volume_l, f32 temp_c
//
// All fields are little-endian. A record with ts == 0 is an empty slot.
// Temperature uses a NaN sentinel on disk; in memory it is an optional
// pointer so no arithmetic ever touches the sentinel.
package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// Size is the encoded record width in bytes.
	Size = 16

	// HeaderSize is the encoded ring header width in bytes.
	HeaderSize = 4
)

// Record is one persisted water-level sample.
type Record struct {
	// Timestamp in unix seconds. 0 marks an empty slot.
	Timestamp uint32

	// LevelPct is the fill level in percent [0, 100].
	LevelPct float32

	// VolumeL is the current volume in liters. 0 when the tank
	// geometry is unknown.
	VolumeL float32

	// TemperatureC is the water temperature. Nil when no probe is
	// attached or the reading failed.
	TemperatureC *float32
}

// Header is the ring store header.
type Header struct {
	// Head is the index of the next slot to be written.
	Head uint16

	// Count is the number of logically valid slots (0..capacity).
	Count uint16
}

// Empty reports whether the record marks an unwritten slot.
func (r Record) Empty() bool {
	return r.Timestamp == 0
}

// HasVolume reports whether the record carries a usable volume reading.
func (r Record) HasVolume() bool {
	return r.VolumeL >= 0
}

// AppendTo appends the 16-byte encoding of the record to buf.
func (r Record) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, r.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(r.LevelPct))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(r.VolumeL))

	temp := float32(math.NaN())
	if r.TemperatureC != nil {
		temp = *r.TemperatureC
	}
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(temp))
}

// Encode returns the 16-byte encoding of the record.
func (r Record) Encode() []byte {
	return r.AppendTo(make([]byte, 0, Size))
}

// Decode parses a record from the first 16 bytes of data.
func Decode(data []byte) (Record, error) {
	if len(data) < Size {
		return Record{}, fmt.Errorf("record: %d bytes, need %d", len(data), Size)
	}

	r := Record{
		Timestamp: binary.LittleEndian.Uint32(data[0:4]),
		LevelPct:  math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
		VolumeL:   math.Float32frombits(binary.LittleEndian.Uint32(data[8:12])),
	}

	temp := math.Float32frombits(binary.LittleEndian.Uint32(data[12:16]))
	if !math.IsNaN(float64(temp)) {
		r.TemperatureC = &temp
	}
	return r, nil
}

// AppendTo appends the 4-byte encoding of the header to buf.
func (h Header) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, h.Head)
	return binary.LittleEndian.AppendUint16(buf, h.Count)
}

// Encode returns the 4-byte encoding of the header.
func (h Header) Encode() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// DecodeHeader parses a header from the first 4 bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("header: %d bytes, need %d", len(data), HeaderSize)
	}
	return Header{
		Head:  binary.LittleEndian.Uint16(data[0:2]),
		Count: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// ValidFor reports whether the header fields are in bounds for a store
// of the given capacity.
func (h Header) ValidFor(capacity int) bool {
	return int(h.Head) < capacity && int(h.Count) <= capacity
}

// FileSize returns the exact on-disk size of a store with the given
// capacity. Any other size is structural corruption.
func FileSize(capacity int) int64 {
	return int64(HeaderSize + capacity*Size)
}

// Temp is a convenience helper for building records with a known
// temperature in one expression.
func Temp(v float32) *float32 {
	return &v
}
