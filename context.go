package ttce

import (
	"fmt"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// Context records GPU work for one logical batch. Commands go into a
// lazily created encoder that is submitted on Flush, when the backlog
// threshold is exceeded, or before a readback.
//
// A Context must not be used from more than one goroutine at a time.
// Textures, buffers and handlers created through it belong to the Device
// and may outlive it.
type Context struct {
	dev *Device

	encoder gpucore.CommandEncoder
	pending int

	// retired resources are released once the submission holding the
	// current encoder completes; inFlight ones belong to earlier submissions.
	retired  []func()
	inFlight []func()

	flushes    int
	dispatches int
	closed     bool
}

// Stats reports what a Context has done so far.
type Stats struct {
	// Flushes counts queue submissions, explicit and automatic.
	Flushes int
	// Dispatches counts recorded compute dispatches.
	Dispatches int
	// Pending is the number of encoder accesses since the last flush.
	Pending int
}

func newContext(d *Device) *Context {
	return &Context{dev: d}
}

// Device returns the device the context records for.
func (c *Context) Device() *Device { return c.dev }

// Stats returns the context counters.
func (c *Context) Stats() Stats {
	return Stats{Flushes: c.flushes, Dispatches: c.dispatches, Pending: c.pending}
}

// commandEncoder returns the open encoder, creating it on first use, and
// counts the access toward the backlog.
func (c *Context) commandEncoder() (gpucore.CommandEncoder, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.encoder == nil {
		enc, err := c.dev.gpu.CreateCommandEncoder("ttce context")
		if err != nil {
			return nil, fmt.Errorf("ttce: create command encoder: %w", err)
		}
		c.encoder = enc
	}
	c.pending++
	return c.encoder, nil
}

// checkBacklog flushes once more accesses than the threshold are pending.
func (c *Context) checkBacklog() error {
	if c.pending > c.dev.backlogThreshold {
		c.dev.logger.Debug("ttce: backlog threshold exceeded, flushing", "pending", c.pending)
		return c.Flush()
	}
	return nil
}

// retire schedules release to run after the work recorded so far completes.
func (c *Context) retire(release func()) {
	c.retired = append(c.retired, release)
}

// Flush submits the open encoder, or an empty submission when there is
// none, and resets the backlog counter. When the encoder fails to finish
// its commands are dropped and the resources they held are released with
// the next completed submission.
func (c *Context) Flush() error {
	if c.closed {
		return ErrClosed
	}
	enc := c.encoder
	c.encoder = nil
	c.pending = 0
	c.inFlight = append(c.inFlight, c.retired...)
	c.retired = nil

	var buffers []gpucore.CommandBufferID
	if enc != nil {
		cb, err := enc.Finish()
		if err != nil {
			enc.Discard()
			return fmt.Errorf("ttce: finish command encoder: %w", err)
		}
		buffers = append(buffers, cb)
	}

	if err := c.dev.gpu.Submit(buffers); err != nil {
		return fmt.Errorf("ttce: submit: %w", err)
	}
	c.flushes++

	idle, err := c.dev.gpu.Poll(false)
	if err != nil {
		return fmt.Errorf("ttce: poll: %w", err)
	}
	if idle {
		c.releaseInFlight()
	}
	return nil
}

func (c *Context) releaseInFlight() {
	for _, release := range c.inFlight {
		release()
	}
	c.inFlight = nil
}

// Close submits outstanding work, waits for the GPU and releases the
// context's transient resources. Close is idempotent.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	err := c.Flush()
	c.closed = true
	if _, perr := c.dev.gpu.Poll(true); perr != nil && err == nil {
		err = fmt.Errorf("ttce: poll: %w", perr)
	}
	c.inFlight = append(c.inFlight, c.retired...)
	c.retired = nil
	c.releaseInFlight()
	return err
}
