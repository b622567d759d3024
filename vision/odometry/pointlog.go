package odometry

import (
	"slices"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
)

// PointLogEntry holds the points triangulated from one frame pair.
type PointLogEntry struct {
	Pair       int
	FrameIndex int
	// Points are expressed in the frame of the previous camera of the pair.
	Points []r3.Vector
	// WorldPoints are Points expressed in the frame of the first camera of the session.
	WorldPoints []r3.Vector
}

// PointLog is an append-only log of triangulated points. When it has a capacity, the oldest entries
// are evicted and handed to the eviction callback, if any, so that they can be flushed elsewhere.
type PointLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []PointLogEntry
	onEvict  func(PointLogEntry)
}

// NewPointLog returns a log keeping at most capacity entries, or all of them if capacity is 0.
func NewPointLog(capacity int, onEvict func(PointLogEntry)) *PointLog {
	return &PointLog{capacity: capacity, onEvict: onEvict}
}

// Append adds an entry, evicting the oldest ones past capacity.
func (l *PointLog) Append(entry PointLogEntry) {
	l.flush(l.push(entry))
}

// push adds an entry and returns the entries evicted past capacity.
func (l *PointLog) push(entry PointLogEntry) []PointLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if l.capacity <= 0 || len(l.entries) <= l.capacity {
		return nil
	}
	n := len(l.entries) - l.capacity
	evicted := slices.Clone(l.entries[:n])
	l.entries = slices.Delete(l.entries, 0, n)
	return evicted
}

// flush hands evicted entries to the eviction callback. It must not be called with a lock held.
func (l *PointLog) flush(evicted []PointLogEntry) {
	if l.onEvict == nil {
		return
	}
	for _, e := range evicted {
		l.onEvict(e)
	}
}

// Len returns the number of entries in the log.
func (l *PointLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the entries, oldest first.
func (l *PointLog) Entries() []PointLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.entries)
}

// Latest returns the most recent entry.
func (l *PointLog) Latest() (PointLogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return PointLogEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// WorldPoints returns the points of all entries in the frame of the first camera.
func (l *PointLog) WorldPoints() []r3.Vector {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.FlatMap(l.entries, func(e PointLogEntry, _ int) []r3.Vector {
		return e.WorldPoints
	})
}
