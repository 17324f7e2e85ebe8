package cacheengine

import "sync/atomic"

// Statistics tallies Get outcomes, per spec.md §4.6. Counters are
// atomic so they stay meaningful even when Options.EnableThreadSynchronization
// is false and callers are synchronizing Get themselves.
type Statistics struct {
	invalidKey uint64
	absentHit  uint64
	valueHit   uint64
	miss       uint64
}

func (s *Statistics) record(o Outcome) {
	switch o {
	case Invalid:
		atomic.AddUint64(&s.invalidKey, 1)
	case AbsentHit:
		atomic.AddUint64(&s.absentHit, 1)
	case ValueHit:
		atomic.AddUint64(&s.valueHit, 1)
	default:
		atomic.AddUint64(&s.miss, 1)
	}
}

// Snapshot is a point-in-time, non-atomic copy of Statistics for reporting.
type Snapshot struct {
	InvalidKey uint64
	AbsentHit  uint64
	ValueHit   uint64
	Miss       uint64
}

// Total is the number of Get calls tallied.
func (s Snapshot) Total() uint64 {
	return s.InvalidKey + s.AbsentHit + s.ValueHit + s.Miss
}

// HitRate is (AbsentHit+ValueHit)/(AbsentHit+ValueHit+Miss) per spec.md
// §4.6 — InvalidKey accesses never reached the map, so they're excluded
// from both halves of the ratio. 0 for an empty sample.
func (s Snapshot) HitRate() float64 {
	d := s.AbsentHit + s.ValueHit + s.Miss
	if d == 0 {
		return 0
	}
	return float64(s.AbsentHit+s.ValueHit) / float64(d)
}

// SuccessRate is (AbsentHit+ValueHit)/Total per spec.md §4.6 — unlike
// HitRate, the denominator counts every access including InvalidKey, so
// SuccessRate penalizes invalid-key traffic that HitRate ignores. 0 for
// an empty sample.
func (s Snapshot) SuccessRate() float64 {
	t := s.Total()
	if t == 0 {
		return 0
	}
	return float64(s.AbsentHit+s.ValueHit) / float64(t)
}

// Snapshot copies the current counters.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		InvalidKey: atomic.LoadUint64(&s.invalidKey),
		AbsentHit:  atomic.LoadUint64(&s.absentHit),
		ValueHit:   atomic.LoadUint64(&s.valueHit),
		Miss:       atomic.LoadUint64(&s.miss),
	}
}
