package importer

import "sync"

// Channel holds the latest Progress. There is one writer (the orchestrator)
// and any number of subscribers. It is not a queue: a slow subscriber skips
// intermediate values and only ever receives the most recent one.
type Channel struct {
	mu        sync.Mutex
	current   Progress
	subs      map[chan Progress]struct{}
	observers []func(Progress)
}

// NewChannel returns a channel in the idle state.
func NewChannel() *Channel {
	return &Channel{
		current: Idle(),
		subs:    make(map[chan Progress]struct{}),
	}
}

// Current returns the latest value.
func (c *Channel) Current() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Publish reduces e into the current value and notifies subscribers.
func (c *Channel) Publish(e Event) Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := Reduce(c.current, e)
	next.Seq = c.current.Seq + 1
	c.current = next

	for _, fn := range c.observers {
		fn(next)
	}
	for ch := range c.subs {
		offer(ch, next)
	}
	return next
}

// Observe registers fn to be called synchronously with every published
// value, in order. fn runs under the channel lock and must not call back
// into the channel.
func (c *Channel) Observe(fn func(Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// offer replaces whatever is buffered in ch with p.
func offer(ch chan Progress, p Progress) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

// Subscribe returns a channel that immediately holds the current value and
// then always the latest one. Call the returned function to unsubscribe;
// it closes the channel.
func (c *Channel) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 1)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.current
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
