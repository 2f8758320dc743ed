package session

import "sync"

// PermissionGate reports and requests camera permission
type PermissionGate interface {
	Granted() bool
	Request()
}

// ToggleGate is a PermissionGate whose grant is set by the client
type ToggleGate struct {
	mu        sync.Mutex
	granted   bool
	requested int
}

// NewToggleGate creates a ToggleGate
func NewToggleGate(granted bool) *ToggleGate {
	return &ToggleGate{granted: granted}
}

func (g *ToggleGate) Granted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted
}

// Request records that the user was asked for permission
func (g *ToggleGate) Request() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requested++
}

// Requests returns how many times permission was requested
func (g *ToggleGate) Requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requested
}

// Set grants or revokes permission
func (g *ToggleGate) Set(granted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.granted = granted
}
