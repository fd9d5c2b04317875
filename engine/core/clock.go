package core

import "time"

type Clock struct {
	startTime time.Time
	lastTime  time.Time
	elapsed   time.Duration
	delta     time.Duration
	now       func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.startTime.IsZero() {
		return
	}
	t := c.now()
	c.elapsed = t.Sub(c.startTime)
	c.delta = t.Sub(c.lastTime)
	c.lastTime = t
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.now()
	c.lastTime = c.startTime
	c.elapsed = 0
	c.delta = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

// Elapsed is the time since Start, as of the last Update.
func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// Delta is the time between the last two updates.
func (c *Clock) Delta() time.Duration {
	return c.delta
}
