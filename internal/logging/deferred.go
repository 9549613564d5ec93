package logging

import (
	"bytes"
	"io"
	"sync"
)

// Deferred buffers writes until Flush, then passes them straight through.
// It keeps log lines from tearing a full-screen display.
type Deferred struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	out     io.Writer
	flushed bool
}

// NewDeferred returns a Deferred that will eventually write to out.
func NewDeferred(out io.Writer) *Deferred {
	return &Deferred{out: out}
}

func (d *Deferred) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushed {
		return d.out.Write(p)
	}
	return d.buf.Write(p)
}

// Flush writes everything buffered so far and disables buffering.
func (d *Deferred) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushed {
		return nil
	}
	d.flushed = true
	_, err := d.buf.WriteTo(d.out)
	return err
}
