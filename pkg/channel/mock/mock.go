// Package mock provides an in-memory channel implementation for tests.
// The provider records what the session sends and lets tests drive the
// event callbacks as if a real backend were answering.
package mock

import (
	"context"
	"sync"

	"github.com/linguakid/linguakid/pkg/audio"
	"github.com/linguakid/linguakid/pkg/channel"
)

// Provider implements channel.Provider. Zero value is usable.
type Provider struct {
	// OpenErr, when set, makes Open fail with this error.
	OpenErr error

	// OpenDelay, when set, is invoked before Open returns so tests can
	// simulate a slow or cancelled dial.
	OpenDelay func(ctx context.Context) error

	mu       sync.Mutex
	channels []*Channel
}

// Open records the configuration and returns a scriptable channel.
func (p *Provider) Open(ctx context.Context, cfg channel.Config, events channel.Events) (channel.Channel, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if p.OpenDelay != nil {
		if err := p.OpenDelay(ctx); err != nil {
			return nil, err
		}
	}

	c := &Channel{Config: cfg, Events: events}

	p.mu.Lock()
	p.channels = append(p.channels, c)
	p.mu.Unlock()

	return c, nil
}

// Last returns the most recently opened channel, or nil.
func (p *Provider) Last() *Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.channels) == 0 {
		return nil
	}

	return p.channels[len(p.channels)-1]
}

// OpenCount reports how many channels the provider has opened.
func (p *Provider) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.channels)
}

// Channel implements channel.Channel and exposes the registered event
// callbacks so tests can fire them directly.
type Channel struct {
	Config channel.Config
	Events channel.Events

	// SendErr, when set, is returned from Send.
	SendErr error

	mu     sync.Mutex
	sent   []audio.EncodedFrame
	closed bool
}

func (c *Channel) Send(frame audio.EncodedFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, frame)

	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.Events.Closed != nil {
		c.Events.Closed()
	}

	return nil
}

// Sent returns a copy of every frame sent so far.
func (c *Channel) Sent() []audio.EncodedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]audio.EncodedFrame, len(c.sent))
	copy(out, c.sent)

	return out
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
