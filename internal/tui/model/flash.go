package model

import (
	"sync"
	"time"
)

// Flash is a single status-line notice that disappears after a deadline.
// The zero value is ready to use.
type Flash struct {
	mu    sync.RWMutex
	text  string
	until time.Time
	now   func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Set replaces the notice; it shows for d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = msg
	f.until = f.clock().Add(d)
}

// Get returns the notice, or "" once it expired.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.clock().Before(f.until) {
		return ""
	}
	return f.text
}
