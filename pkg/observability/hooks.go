// Package observability lets programs watch the HTTP traffic the client
// generates without coupling the library to any metrics or tracing backend.
//
// The client reports every exchange with a devpi server as an Event. A
// program registers a Hooks implementation once at startup and forwards the
// events to whatever backend it uses (OpenTelemetry, Prometheus, plain
// counters). The default implementation discards everything, so the library
// costs nothing when unobserved.
//
//	observability.SetHooks(&promHooks{})
//	defer observability.Reset()
package observability

import (
	"context"
	"sync"
	"time"
)

// Event describes one HTTP exchange with a devpi server.
type Event struct {
	Method string
	Host   string
	Path   string

	// StatusCode is zero until a response arrives.
	StatusCode int

	// Duration is the time from request start to response, zero on Started
	// events.
	Duration time.Duration

	// Err is set on Failed events only.
	Err error
}

// Hooks receives events for every request the client issues. Implementations
// must be safe for concurrent use.
type Hooks interface {
	// Started fires before the request is sent.
	Started(ctx context.Context, ev Event)

	// Completed fires when a response arrives, regardless of status code.
	Completed(ctx context.Context, ev Event)

	// Failed fires when the exchange dies below HTTP: connection failures,
	// timeouts, truncated bodies.
	Failed(ctx context.Context, ev Event)
}

// NopHooks discards all events.
type NopHooks struct{}

func (NopHooks) Started(context.Context, Event)   {}
func (NopHooks) Completed(context.Context, Event) {}
func (NopHooks) Failed(context.Context, Event)    {}

var (
	mu      sync.RWMutex
	current Hooks = NopHooks{}
)

// SetHooks registers the hooks all clients report to. Call it once at
// startup, before issuing requests. A nil argument is ignored.
func SetHooks(h Hooks) {
	mu.Lock()
	defer mu.Unlock()
	if h != nil {
		current = h
	}
}

// Current returns the registered hooks.
func Current() Hooks {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Reset restores the discarding default. Mainly for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = NopHooks{}
}
