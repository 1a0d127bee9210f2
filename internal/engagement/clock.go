package engagement

import "time"

// DefaultStaleAfter is how long an in-flight foreground segment may run
// before an interaction checkpoints it.
const DefaultStaleAfter = 30 * time.Second

// Clock accumulates active time: wall-clock time during which the session
// was foregrounded.
//
// Every method takes the event's timestamp. Timestamps earlier than the
// latest one already observed are clamped forward, so bursts of duplicate
// or out-of-order focus events can neither double count nor make the total
// go backwards. Active time never exceeds the wall-clock time since start.
type Clock struct {
	start        time.Time
	latest       time.Time
	active       time.Duration
	lastResume   time.Time
	foregrounded bool
	staleAfter   time.Duration
}

// NewClock starts a clock at start. A viewer that mounts in the foreground
// passes foregrounded=true and begins accumulating immediately.
func NewClock(start time.Time, foregrounded bool) *Clock {
	c := &Clock{
		start:      start,
		latest:     start,
		staleAfter: DefaultStaleAfter,
	}
	if foregrounded {
		c.foregrounded = true
		c.lastResume = start
	}
	return c
}

// SetStaleAfter overrides the checkpoint window. Zero disables checkpoints.
func (c *Clock) SetStaleAfter(d time.Duration) {
	c.staleAfter = d
}

func (c *Clock) observe(now time.Time) time.Time {
	if now.Before(c.latest) {
		return c.latest
	}
	c.latest = now
	return now
}

// Foreground resumes accumulation. A no-op if already foregrounded.
func (c *Clock) Foreground(now time.Time) {
	now = c.observe(now)
	if c.foregrounded {
		return
	}
	c.foregrounded = true
	c.lastResume = now
}

// Background flushes the in-flight segment and stops accumulating. A no-op
// if already backgrounded.
func (c *Clock) Background(now time.Time) {
	now = c.observe(now)
	if !c.foregrounded {
		return
	}
	c.active += now.Sub(c.lastResume)
	c.foregrounded = false
}

// Interaction records a pointer/key signal. When the in-flight segment has
// gone stale it is folded into the accumulated total and lastResume moves
// to now; the value Elapsed reports is unchanged either way.
func (c *Clock) Interaction(now time.Time) {
	now = c.observe(now)
	if !c.foregrounded || c.staleAfter <= 0 {
		return
	}
	if now.Sub(c.lastResume) >= c.staleAfter {
		c.active += now.Sub(c.lastResume)
		c.lastResume = now
	}
}

// Elapsed returns accumulated active time plus the in-flight segment.
func (c *Clock) Elapsed(now time.Time) time.Duration {
	now = c.observe(now)
	if !c.foregrounded {
		return c.active
	}
	return c.active + now.Sub(c.lastResume)
}

// Seconds is Elapsed truncated to whole seconds.
func (c *Clock) Seconds(now time.Time) int {
	return int(c.Elapsed(now) / time.Second)
}

// Foregrounded reports whether the clock is accumulating.
func (c *Clock) Foregrounded() bool {
	return c.foregrounded
}

// LastResume returns the start of the in-flight segment.
func (c *Clock) LastResume() time.Time {
	return c.lastResume
}

// Start returns the session start.
func (c *Clock) Start() time.Time {
	return c.start
}
