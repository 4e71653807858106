package render

import "time"

// limiter enforces the fps ceiling by vetoing draws, never by sleeping.
// A vetoed tick simply waits for the next compositor callback, so the draw
// rate converges on the largest callback subdivision under the cap.
type limiter struct {
	interval time.Duration // 0 = uncapped
	last     time.Time
}

func newLimiter(fps int) *limiter {
	l := &limiter{}
	if fps > 0 {
		l.interval = time.Second / time.Duration(fps)
	}
	return l
}

// allow reports whether a draw may happen at now, and records it if so.
func (l *limiter) allow(now time.Time) bool {
	if l.interval == 0 {
		return true
	}
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}
