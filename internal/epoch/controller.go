// Package epoch implements the request-validity protocol shared by every
// component that commits the result of asynchronous work.
//
// A Token is captured when work starts and must still equal the live
// (counter, subject) pair at every checkpoint for the work's result to be
// committed. Bump invalidates all outstanding tokens.
package epoch

import (
	"fmt"
	"sync"
)

// Token is the validity token captured by asynchronous work
type Token struct {
	Counter uint64 `json:"counter"`
	Subject string `json:"subject"`
}

func (t Token) String() string {
	return fmt.Sprintf("%d/%s", t.Counter, t.Subject)
}

// Controller owns the epoch counter and the currently tracked subject
type Controller struct {
	mu      sync.RWMutex
	counter uint64
	subject string
}

// New creates a controller tracking subject at counter zero
func New(subject string) *Controller {
	return &Controller{subject: subject}
}

// Current returns the live (counter, subject) pair
func (c *Controller) Current() Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Token{Counter: c.counter, Subject: c.subject}
}

// Subject returns the currently tracked subject
func (c *Controller) Subject() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subject
}

// Bump increments the counter unconditionally. A non-empty newSubject that
// differs from the current one also replaces the subject.
func (c *Controller) Bump(newSubject string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	if newSubject != "" && newSubject != c.subject {
		c.subject = newSubject
	}
	return c.counter
}

// Valid reports whether t still matches the live pair
func (c *Controller) Valid(t Token) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked(t)
}

// CommitIf runs commit while holding the controller's read lock, but only
// if t is still valid. No Bump can interleave between the check and the
// commit. commit must not call Bump.
func (c *Controller) CommitIf(t Token, commit func()) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked(t) {
		return false
	}
	commit()
	return true
}

func (c *Controller) validLocked(t Token) bool {
	return t.Counter == c.counter && t.Subject == c.subject
}
