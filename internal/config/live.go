package config

import "sync/atomic"

// Live holds the settings that may change while tasks are running
type Live struct {
	maxParallel atomic.Int32
}

// NewLive creates live settings seeded from s
func NewLive(s *Settings) *Live {
	l := &Live{}
	l.SetMaxParallel(s.Downloads.MaxParallel)
	return l
}

// MaxParallel returns the current parallel task limit
func (l *Live) MaxParallel() int {
	return int(l.maxParallel.Load())
}

// SetMaxParallel stores n clamped to [MinParallel, MaxParallel] and returns the stored value
func (l *Live) SetMaxParallel(n int) int {
	if n < MinParallel {
		n = MinParallel
	}
	if n > MaxParallel {
		n = MaxParallel
	}
	l.maxParallel.Store(int32(n))
	return n
}
