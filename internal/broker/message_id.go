package broker

import "sync/atomic"

// MessageIDCounter hands out process-wide message ids starting at 1. Ids are
// never reused.
type MessageIDCounter struct {
	last atomic.Uint64
}

func (c *MessageIDCounter) Next() uint64 {
	return c.last.Add(1)
}

// Last returns the most recent id, or 0 if none was handed out.
func (c *MessageIDCounter) Last() uint64 {
	return c.last.Load()
}
