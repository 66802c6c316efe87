package httpapi

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/booking"
)

// DraftRegistry keeps one booking wizard per draft id. Each wizard belongs to
// the user who opened it and is driven by one request at a time.
type DraftRegistry struct {
	newOrchestrator func() *booking.Orchestrator
	now             func() time.Time

	mu     sync.Mutex
	drafts map[string]*draftSession
}

type draftSession struct {
	mu      sync.Mutex
	owner   string
	o       *booking.Orchestrator
	touched time.Time
}

func NewDraftRegistry(newOrchestrator func() *booking.Orchestrator) *DraftRegistry {
	return &DraftRegistry{newOrchestrator: newOrchestrator, now: time.Now, drafts: make(map[string]*draftSession)}
}

// Open starts a wizard for owner and returns its id.
func (d *DraftRegistry) Open(owner string) (string, booking.State) {
	id := uuid.NewString()
	ds := &draftSession{owner: owner, o: d.newOrchestrator(), touched: d.now()}
	d.mu.Lock()
	d.drafts[id] = ds
	d.mu.Unlock()
	return id, ds.o.State()
}

// With runs fn with exclusive access to the owner's wizard id.
func (d *DraftRegistry) With(id, owner string, fn func(o *booking.Orchestrator) error) error {
	d.mu.Lock()
	ds, ok := d.drafts[id]
	d.mu.Unlock()
	if !ok || ds.owner != owner {
		return fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.touched = d.now()
	return fn(ds.o)
}

// Close discards the wizard.
func (d *DraftRegistry) Close(id, owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ds, ok := d.drafts[id]
	if !ok || ds.owner != owner {
		return fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
	}
	delete(d.drafts, id)
	return nil
}

// Sweep drops wizards untouched for longer than maxIdle and returns how many went.
func (d *DraftRegistry) Sweep(maxIdle time.Duration) int {
	cutoff := d.now().Add(-maxIdle)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, ds := range d.drafts {
		if ds.mu.TryLock() {
			if ds.touched.Before(cutoff) {
				delete(d.drafts, id)
				n++
			}
			ds.mu.Unlock()
		}
	}
	return n
}
