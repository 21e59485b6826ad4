package pipeline

import (
	"time"
)

// progressTracker turns poll observations into a monotonic percentage that
// stays at or below the ceiling until the operation reports done.
type progressTracker struct {
	startedAt time.Time
	horizon   time.Duration
	ceiling   int
	last      int
}

// estimate is the synthetic percentage used when the service reports none.
func (p *progressTracker) estimate(now time.Time) int {
	if p.horizon <= 0 {
		return p.ceiling
	}
	pct := int(float64(now.Sub(p.startedAt)) / float64(p.horizon) * 100)
	return min(p.ceiling, max(0, pct))
}

// next folds one observation into the tracker and reports whether the
// visible percentage changed.
func (p *progressTracker) next(now time.Time, explicit *int) (int, bool) {
	var pct int
	if explicit != nil {
		pct = *explicit
	} else {
		pct = p.estimate(now)
	}
	pct = min(p.ceiling, max(p.last, pct))
	if pct == p.last {
		return pct, false
	}
	p.last = pct
	return pct, true
}
