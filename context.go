package audiowire

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Context is the shared runtime context senders and receivers attach
// to. It tracks open sessions so teardown order stays explicit: Close
// fails with ErrContextBusy while any session remains open.
type Context struct {
	mu     sync.Mutex
	id     string
	refs   int
	closed bool
}

// NewContext creates a new runtime context.
func NewContext() *Context {
	id := uuid.NewString()

	logrus.WithFields(logrus.Fields{
		"function":   "NewContext",
		"context_id": id,
	}).Info("Creating new audiowire context")

	return &Context{id: id}
}

// ID returns the context's unique identifier.
func (c *Context) ID() string {
	return c.id
}

// Close shuts the context down.
//
// Returns:
//   - error: ErrContextBusy if sessions remain open, ErrClosed if
//     already closed
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.refs > 0 {
		return ErrContextBusy
	}
	c.closed = true

	logrus.WithFields(logrus.Fields{
		"function":   "Context.Close",
		"context_id": c.id,
	}).Info("Closed audiowire context")

	return nil
}

// acquire registers a new session and returns its stream ID.
func (c *Context) acquire() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	c.refs++
	return uuid.NewString(), nil
}

// release unregisters a session.
func (c *Context) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs > 0 {
		c.refs--
	}
}
