package trap

import (
	"fmt"
	"sync"

	"caller"
	"msi"
)

// Handler runs in response to one vector firing. hasErrorCode is false for
// vectors without a CPU-pushed error code.
type Handler func(frame *InterruptFrame, errorCode uint64, hasErrorCode bool)

// Dispatcher routes a vector number to a registered Handler. The fixed
// exception/timer vectors are wired once at boot; vectors in the dynamic
// range (56-63, the MSI vector pool reserved for PCI device interrupts)
// can be registered and released at runtime.
type Dispatcher struct {
	mu       sync.RWMutex
	fixed    map[uint8]Handler
	dynamic  map[msi.Msivec_t]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		fixed:   make(map[uint8]Handler),
		dynamic: make(map[msi.Msivec_t]Handler),
	}
}

// Register wires a handler to a fixed vector (an exception vector or the
// timer IRQ). Panics on a duplicate registration, a boot-time bug.
func (d *Dispatcher) Register(vector uint8, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fixed[vector]; ok {
		panic(fmt.Sprintf("trap: vector %d already registered", vector))
	}
	d.fixed[vector] = h
}

// RegisterDynamic allocates a free vector from the MSI-style pool and wires
// h to it, for handlers installed after boot (e.g. a hot-plugged device).
func (d *Dispatcher) RegisterDynamic(h Handler) uint8 {
	vec := msi.Msi_alloc()
	d.mu.Lock()
	d.dynamic[vec] = h
	d.mu.Unlock()
	return uint8(vec)
}

// Release tears down a dynamically registered handler and returns its
// vector to the pool.
func (d *Dispatcher) Release(vector uint8) {
	d.mu.Lock()
	delete(d.dynamic, msi.Msivec_t(vector))
	d.mu.Unlock()
	msi.Msi_free(msi.Msivec_t(vector))
}

// Dispatch looks up vector and invokes its handler. It panics with a
// structured message for an unregistered vector, standing in for an
// unhandled-exception kernel panic path.
func (d *Dispatcher) Dispatch(vector uint8, frame *InterruptFrame, errorCode uint64, hasErrorCode bool) {
	d.mu.RLock()
	h, ok := d.fixed[vector]
	if !ok {
		h, ok = d.dynamic[msi.Msivec_t(vector)]
	}
	d.mu.RUnlock()
	if !ok {
		caller.Callerdump(1)
		panic(fmt.Sprintf("trap: unhandled vector %d (error=%d user=%v)", vector, errorCode, frame.FromUser()))
	}
	h(frame, errorCode, hasErrorCode)
}
