// Package server – pending.go is the rendezvous registry: the tool-execution
// worker parks a request here and blocks on its latch; the HTTP handler
// resolves it by id. Each record is created, resolved and removed exactly
// once; double resolution returns false without touching the record.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/clawrun/pkg/clawrun/agent"
)

// waitTimeout bounds how long a worker parks on an unresolved request. An
// unsubscribed client simply lets the tool time out harmlessly.
const waitTimeout = time.Hour

type pendingRecord[T any] struct {
	payload  any
	latch    chan T // buffered 1; the single-shot result slot
	created  time.Time
	resolved bool
}

// PendingRegistry maps opaque ids to parked requests. Shared across all
// request workers through its mutex.
type PendingRegistry[T any] struct {
	mu      sync.Mutex
	records map[string]*pendingRecord[T]
}

// NewPendingRegistry creates an empty registry.
func NewPendingRegistry[T any]() *PendingRegistry[T] {
	return &PendingRegistry[T]{records: make(map[string]*pendingRecord[T])}
}

// Create mints a fresh id and parks the payload.
func (p *PendingRegistry[T]) Create(payload any) string {
	id := uuid.NewString()
	p.mu.Lock()
	p.records[id] = &pendingRecord[T]{
		payload: payload,
		latch:   make(chan T, 1),
		created: time.Now(),
	}
	p.mu.Unlock()
	return id
}

// Resolve delivers the result and wakes the waiter. Returns false when the
// id is unknown or already resolved.
func (p *PendingRegistry[T]) Resolve(id string, result T) bool {
	p.mu.Lock()
	rec, ok := p.records[id]
	if !ok || rec.resolved {
		p.mu.Unlock()
		return false
	}
	rec.resolved = true
	p.mu.Unlock()

	rec.latch <- result
	return true
}

// Wait blocks until the record resolves, the timeout passes or the context
// is cancelled. The record is removed on every path.
func (p *PendingRegistry[T]) Wait(ctx context.Context, id string) (T, error) {
	var zero T
	p.mu.Lock()
	rec, ok := p.records[id]
	p.mu.Unlock()
	if !ok {
		return zero, agent.ErrConfirmationTimeout
	}
	defer p.Remove(id)

	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	select {
	case result := <-rec.latch:
		return result, nil
	case <-timer.C:
		return zero, agent.ErrConfirmationTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Remove drops the record.
func (p *PendingRegistry[T]) Remove(id string) {
	p.mu.Lock()
	delete(p.records, id)
	p.mu.Unlock()
}

// Get returns the parked payload, for inspection endpoints.
func (p *PendingRegistry[T]) Get(id string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[id]
	if !ok {
		return nil, false
	}
	return rec.payload, true
}

// Len reports the number of in-flight records.
func (p *PendingRegistry[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
