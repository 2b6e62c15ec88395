package tracking

import (
	"time"

	"github.com/nvr-ai/go-alarm/images"
)

// Config bounds the history kept per track.
type Config struct {
	// HistoryLength is the number of recent positions kept (2 for speed pairs,
	// 30 for trajectory drawing).
	HistoryLength int
	// SpeedHistoryLength is the number of raw speed estimates kept.
	SpeedHistoryLength int
	// NominalFPS converts the frame counter to seconds: every NominalFPS
	// frames add one second of dwell.
	NominalFPS int
}

// DefaultConfig returns the configuration used by the dwell and congestion rules.
func DefaultConfig() Config {
	return Config{
		HistoryLength:      30,
		SpeedHistoryLength: 10,
		NominalFPS:         30,
	}
}

// Sample is a position observed at a point in time.
type Sample struct {
	Position images.Point
	At       time.Time
}

// Record is the history of one track.
type Record struct {
	ID        int
	Positions *Ring[Sample]
	Speeds    *Ring[int]
	FirstSeen time.Time
	LastSeen  time.Time
	// Frames counts the qualifying frames the track has appeared in.
	Frames int
	// DwellSeconds is Frames converted at the nominal frame rate, rounded down.
	DwellSeconds int
	// Alarmed is set by rules that fire once per track.
	Alarmed bool
}

// Dwell returns the wall-clock time between the first and the latest sighting.
func (r *Record) Dwell() time.Duration {
	return r.LastSeen.Sub(r.FirstSeen)
}

// Previous returns the sample before the latest one, if any.
func (r *Record) Previous() (Sample, bool) {
	if r.Positions.Len() < 2 {
		return Sample{}, false
	}
	return r.Positions.At(r.Positions.Len() - 2), true
}

// Store holds the records of one session. It is not safe for concurrent use:
// a store belongs to exactly one loop.
//
// Records live in an arena of slots indexed by track id. Pruned slots go to a
// free list and the arena is compacted once more than half of it is free.
type Store struct {
	cfg   Config
	slots []*Record
	index map[int]int
	free  []int
}

// NewStore creates an empty store. Zero fields in cfg take DefaultConfig values.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = def.HistoryLength
	}
	if cfg.SpeedHistoryLength <= 0 {
		cfg.SpeedHistoryLength = def.SpeedHistoryLength
	}
	if cfg.NominalFPS <= 0 {
		cfg.NominalFPS = def.NominalFPS
	}
	return &Store{cfg: cfg, index: make(map[int]int)}
}

// Update records a sighting of id at pos. The first sighting creates the record.
//
// Arguments:
//   - id: The track identity.
//   - pos: The box center.
//   - ts: The frame timestamp.
//
// Returns:
//   - *Record: The updated record. It stays valid until the track is pruned.
func (s *Store) Update(id int, pos images.Point, ts time.Time) *Record {
	rec, ok := s.Get(id)
	if !ok {
		rec = &Record{
			ID:        id,
			Positions: NewRing[Sample](s.cfg.HistoryLength),
			Speeds:    NewRing[int](s.cfg.SpeedHistoryLength),
			FirstSeen: ts,
		}
		s.insert(rec)
	}

	rec.Positions.Push(Sample{Position: pos, At: ts})
	rec.LastSeen = ts
	rec.Frames++
	if rec.Frames%s.cfg.NominalFPS == 0 {
		rec.DwellSeconds++
	}
	return rec
}

// Get returns the record for id. Unknown ids return false.
func (s *Store) Get(id int) (*Record, bool) {
	slot, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.slots[slot], true
}

// Len returns the number of live records.
func (s *Store) Len() int {
	return len(s.index)
}

// PruneExpired drops records not seen for longer than maxAge.
//
// Arguments:
//   - now: The reference time.
//   - maxAge: Maximum time since LastSeen. Non-positive values prune nothing.
//
// Returns:
//   - int: Number of records removed.
func (s *Store) PruneExpired(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	removed := 0
	for id, slot := range s.index {
		if now.Sub(s.slots[slot].LastSeen) > maxAge {
			s.slots[slot] = nil
			s.free = append(s.free, slot)
			delete(s.index, id)
			removed++
		}
	}
	if len(s.free) > len(s.slots)/2 {
		s.compact()
	}
	return removed
}

func (s *Store) insert(rec *Record) {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[slot] = rec
		s.index[rec.ID] = slot
		return
	}
	s.slots = append(s.slots, rec)
	s.index[rec.ID] = len(s.slots) - 1
}

func (s *Store) compact() {
	slots := make([]*Record, 0, len(s.index))
	for _, rec := range s.slots {
		if rec == nil {
			continue
		}
		s.index[rec.ID] = len(slots)
		slots = append(slots, rec)
	}
	s.slots = slots
	s.free = s.free[:0]
}
