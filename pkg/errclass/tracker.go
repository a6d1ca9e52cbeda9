package errclass

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultTrackerCapacity is the number of records kept before the oldest is evicted.
const DefaultTrackerCapacity = 100

// Record is one tracked error.
type Record struct {
	ID             string
	RecordedAt     time.Time
	Classification Classification
	Resolved       bool
	ResolvedAt     time.Time
}

// Summary aggregates the records currently held by a Tracker.
type Summary struct {
	Total          int
	Unresolved     int
	ByType         map[Type]int
	BySeverity     map[Severity]int
	MostFrequent   Type
	RatePerMinute  float64
	MeanResolution time.Duration
}

// Tracker keeps a bounded history of classified errors. It is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
	logger   *logrus.Logger
	now      func() time.Time
}

// NewTracker creates a tracker holding at most capacity records.
func NewTracker(capacity int, logger *logrus.Logger) *Tracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{
		capacity: capacity,
		records:  make([]Record, 0, capacity),
		logger:   logger,
		now:      time.Now,
	}
}

// Track classifies err and records it. It returns the record id.
func (t *Tracker) Track(err error) (string, Classification) {
	return t.TrackClassification(Classify(err))
}

// TrackClassification records an already classified failure.
func (t *Tracker) TrackClassification(c Classification) (string, Classification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		ID:             uuid.New().String(),
		RecordedAt:     t.now(),
		Classification: c,
	}
	if len(t.records) >= t.capacity {
		copy(t.records, t.records[1:])
		t.records = t.records[:len(t.records)-1]
	}
	t.records = append(t.records, rec)

	t.logger.WithFields(logrus.Fields{
		"error_id":  rec.ID,
		"type":      c.Type,
		"severity":  c.Severity,
		"retryable": c.Retryable,
	}).Debug("Error tracked")

	return rec.ID, c
}

// Resolve marks the record with id as resolved. It reports false when the
// record is unknown (or already evicted) or was already resolved.
func (t *Tracker) Resolve(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.records {
		if t.records[i].ID != id {
			continue
		}
		if t.records[i].Resolved {
			return false
		}
		t.records[i].Resolved = true
		t.records[i].ResolvedAt = t.now()
		return true
	}
	return false
}

// ResolveAll marks every unresolved record as resolved and returns how many changed.
func (t *Tracker) ResolveAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for i := range t.records {
		if !t.records[i].Resolved {
			t.records[i].Resolved = true
			t.records[i].ResolvedAt = now
			n++
		}
	}
	return n
}

// Records returns a copy of the records, oldest first.
func (t *Tracker) Records() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Record(nil), t.records...)
}

// Len returns the number of records held.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// CountByType counts records per Type.
func (t *Tracker) CountByType() map[Type]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[Type]int)
	for _, r := range t.records {
		counts[r.Classification.Type]++
	}
	return counts
}

// CountBySeverity counts records per Severity.
func (t *Tracker) CountBySeverity() map[Severity]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[Severity]int)
	for _, r := range t.records {
		counts[r.Classification.Severity]++
	}
	return counts
}

// MostFrequentType returns the most common Type and false when no records exist.
// Ties go to the type listed first in AllTypes.
func (t *Tracker) MostFrequentType() (Type, bool) {
	counts := t.CountByType()
	var (
		best  Type
		found bool
	)
	for _, typ := range AllTypes {
		if counts[typ] == 0 {
			continue
		}
		if !found || counts[typ] > counts[best] {
			best, found = typ, true
		}
	}
	return best, found
}

// Rate returns the number of errors per minute recorded within window.
func (t *Tracker) Rate(window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.now().Add(-window)
	n := 0
	for _, r := range t.records {
		if !r.RecordedAt.Before(cutoff) {
			n++
		}
	}
	return float64(n) / window.Minutes()
}

// MeanResolutionTime averages ResolvedAt - RecordedAt over resolved records.
func (t *Tracker) MeanResolutionTime() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		sum time.Duration
		n   int
	)
	for _, r := range t.records {
		if r.Resolved {
			sum += r.ResolvedAt.Sub(r.RecordedAt)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// Summary computes every aggregate at once. The rate covers the last minute.
func (t *Tracker) Summary() Summary {
	s := Summary{
		ByType:         t.CountByType(),
		BySeverity:     t.CountBySeverity(),
		RatePerMinute:  t.Rate(time.Minute),
		MeanResolution: t.MeanResolutionTime(),
	}
	s.MostFrequent, _ = t.MostFrequentType()

	t.mu.RLock()
	defer t.mu.RUnlock()
	s.Total = len(t.records)
	for _, r := range t.records {
		if !r.Resolved {
			s.Unresolved++
		}
	}
	return s
}
