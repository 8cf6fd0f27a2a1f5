// Package ring implements a fixed-capacity circular store of sample
// records on a single random-access file.
//
// The store trades durability for availability: any structural mismatch
// between the declared layout and the file on disk (wrong size, header
// fields out of bounds) silently discards the data and reinitializes an
// empty store. I/O failures degrade to empty results; no operation
// panics or returns an error across the package boundary.
//
// Appends write the record before the header. A crash between the two
// writes leaves the stale header in place, so a half-written record is
// never exposed as live data; the cost is losing that one append.
// Do not reorder the writes.
package ring

import (
	"io"
	"os"
	"sync"

	"github.com/tanksense/tanksense/internal/logging"
	"github.com/tanksense/tanksense/internal/storage/record"
)

var log = logging.Component("ring")

// Store is a file-backed circular record store.
//
// All operations are serialized by an internal mutex, so a single Store
// is safe for concurrent use; there is never more than one file
// operation in flight per store.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int

	// onReinit, when set, is called after a corruption-recovery
	// reinitialization. Explicit Clear does not fire it.
	onReinit func()
}

// Open creates a store bound to path with the given slot capacity.
// An existing file is kept only if it passes full structural
// validation; anything else is deleted and recreated blank. Validation
// is all-or-nothing: a file is never partially trusted.
func Open(path string, capacity int) (*Store, error) {
	if capacity <= 0 || capacity > 65535 {
		return nil, os.ErrInvalid
	}

	s := &Store{path: path, capacity: capacity}

	s.mu.Lock()
	defer s.mu.Unlock()

	if hdr, ok := s.validateFile(path); ok {
		log.Info("store opened", "path", path, "capacity", capacity, "count", hdr.Count)
		return s, nil
	}
	s.reinit()
	return s, nil
}

// OnReinit registers a callback fired after every corruption-recovery
// reinitialization. Call before handing the store to other goroutines.
func (s *Store) OnReinit(fn func()) {
	s.mu.Lock()
	s.onReinit = fn
	s.mu.Unlock()
}

// Capacity returns the slot capacity of the store.
func (s *Store) Capacity() int {
	return s.capacity
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ExpectedSize returns the exact on-disk size of the store file.
func (s *Store) ExpectedSize() int64 {
	return record.FileSize(s.capacity)
}

// Append writes rec into the next slot and advances the ring.
// Once the store is full every append overwrites the logically oldest
// record and the count stays pinned at capacity.
// Returns false when the write could not be performed.
func (s *Store) Append(rec record.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, hdr, ok := s.openValidated(os.O_RDWR)
	if !ok {
		return false
	}
	defer f.Close()

	offset := int64(record.HeaderSize) + int64(hdr.Head)*record.Size
	if _, err := f.WriteAt(rec.Encode(), offset); err != nil {
		log.Warn("append write failed", "path", s.path, "error", err)
		return false
	}

	// Header second: a crash here keeps the previous head/count and the
	// new record stays invisible.
	hdr.Head = (hdr.Head + 1) % uint16(s.capacity)
	if int(hdr.Count) < s.capacity {
		hdr.Count++
	}
	if _, err := f.WriteAt(hdr.Encode(), 0); err != nil {
		log.Warn("append header write failed", "path", s.path, "error", err)
		return false
	}
	return true
}

// ReadNewestFirst returns up to maxN records, newest to oldest.
// A structurally corrupt file is reinitialized and yields an empty
// result.
func (s *Store) ReadNewestFirst(maxN int) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, hdr, ok := s.readAll()
	if !ok || hdr.Count == 0 || maxN <= 0 {
		return nil
	}

	n := int(hdr.Count)
	if n > maxN {
		n = maxN
	}

	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (int(hdr.Head) - 1 - i + s.capacity) % s.capacity
		rec, err := record.Decode(data[record.HeaderSize+idx*record.Size:])
		if err != nil {
			return nil
		}
		out = append(out, rec)
	}
	return out
}

// ReadOldestFirst returns up to maxN records in chronological
// (insertion) order, starting at the logically oldest slot.
func (s *Store) ReadOldestFirst(maxN int) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, hdr, ok := s.readAll()
	if !ok || hdr.Count == 0 || maxN <= 0 {
		return nil
	}

	n := int(hdr.Count)
	if n > maxN {
		n = maxN
	}

	start := (int(hdr.Head) - int(hdr.Count) + s.capacity) % s.capacity
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (start + i) % s.capacity
		rec, err := record.Decode(data[record.HeaderSize+idx*record.Size:])
		if err != nil {
			return nil
		}
		out = append(out, rec)
	}
	return out
}

// Count returns the number of stored records. Validation runs as a
// side effect: a corrupt file is reinitialized and reports zero.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, ok := s.validateFile(s.path)
	if !ok {
		s.recoverCorrupt()
		return 0
	}
	return int(hdr.Count)
}

// Head returns the next write index. Exposed for tests and diagnostics.
func (s *Store) Head() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, ok := s.validateFile(s.path)
	if !ok {
		s.recoverCorrupt()
		return 0
	}
	return int(hdr.Head)
}

// Clear deletes the backing file and recreates it blank.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.Remove(s.path)
	return s.reinit()
}

// Snapshot returns a copy of the raw store file bytes, suitable for
// bit-exact backup. The file is validated (and reinitialized when
// corrupt) before reading, so the result always has the expected size.
func (s *Store) Snapshot() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, _, ok := s.readAll()
	if !ok {
		return nil, false
	}
	return data, true
}

// ImportStaged validates the staged file at stagedPath and atomically
// replaces the live store with it. The staged file must pass the same
// full structural validation as a live store; on any failure the live
// store is left untouched. The staged file is always consumed.
func (s *Store) ImportStaged(stagedPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, ok := s.validateFile(stagedPath)
	if !ok {
		log.Warn("staged file rejected", "path", stagedPath)
		os.Remove(stagedPath)
		return false
	}

	if err := os.Rename(stagedPath, s.path); err != nil {
		// Rename can fail across filesystems; fall back to a full copy
		// of the already validated bytes.
		if !s.copyFile(stagedPath, s.path) {
			log.Warn("staged replace failed", "path", stagedPath, "error", err)
			os.Remove(stagedPath)
			return false
		}
		os.Remove(stagedPath)
	}

	log.Info("store replaced from staged file", "path", s.path, "count", hdr.Count)
	return true
}

// validateFile checks that the file at path has the exact expected size
// and an in-bounds header. It never modifies the file.
func (s *Store) validateFile(path string) (record.Header, bool) {
	f, err := os.Open(path)
	if err != nil {
		return record.Header{}, false
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.Size() != record.FileSize(s.capacity) {
		return record.Header{}, false
	}

	buf := make([]byte, record.HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return record.Header{}, false
	}
	hdr, err := record.DecodeHeader(buf)
	if err != nil || !hdr.ValidFor(s.capacity) {
		return record.Header{}, false
	}
	return hdr, true
}

// reinit recreates the backing file blank: header {0,0} followed by
// capacity empty records (timestamp 0, temperature unavailable).
func (s *Store) reinit() bool {
	os.Remove(s.path)

	f, err := os.Create(s.path)
	if err != nil {
		log.Warn("store reinit failed", "path", s.path, "error", err)
		return false
	}
	defer f.Close()

	buf := make([]byte, 0, record.FileSize(s.capacity))
	buf = record.Header{}.AppendTo(buf)
	blank := record.Record{}
	for i := 0; i < s.capacity; i++ {
		buf = blank.AppendTo(buf)
	}

	if _, err := f.Write(buf); err != nil {
		log.Warn("store reinit write failed", "path", s.path, "error", err)
		return false
	}
	log.Info("store reinitialized", "path", s.path, "capacity", s.capacity)
	return true
}

// recoverCorrupt reinitializes after failed validation and fires the
// reinit callback.
func (s *Store) recoverCorrupt() bool {
	ok := s.reinit()
	if ok && s.onReinit != nil {
		s.onReinit()
	}
	return ok
}

// openValidated opens the backing file and re-validates the header,
// reinitializing once on corruption. Callers own the returned file.
func (s *Store) openValidated(flag int) (*os.File, record.Header, bool) {
	hdr, ok := s.validateFile(s.path)
	if !ok {
		if !s.recoverCorrupt() {
			return nil, record.Header{}, false
		}
		hdr = record.Header{}
	}

	f, err := os.OpenFile(s.path, flag, 0644)
	if err != nil {
		log.Warn("store open failed", "path", s.path, "error", err)
		return nil, record.Header{}, false
	}
	return f, hdr, true
}

// readAll returns the full validated file contents and its header.
func (s *Store) readAll() ([]byte, record.Header, bool) {
	hdr, ok := s.validateFile(s.path)
	if !ok {
		s.recoverCorrupt()
		return nil, record.Header{}, false
	}

	data, err := os.ReadFile(s.path)
	if err != nil || int64(len(data)) != record.FileSize(s.capacity) {
		return nil, record.Header{}, false
	}
	return data, hdr, true
}

func (s *Store) copyFile(src, dst string) bool {
	in, err := os.Open(src)
	if err != nil {
		return false
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return false
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return false
	}
	return out.Sync() == nil
}
