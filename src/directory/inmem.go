package directory

import (
	"context"
	"sync"
)

// InmemDirectory is a process-local Directory. It can be shared by several
// nodes running in the same process.
type InmemDirectory struct {
	sync.RWMutex
	entries map[string]string
}

// NewInmemDirectory creates an empty InmemDirectory.
func NewInmemDirectory() *InmemDirectory {
	return &InmemDirectory{
		entries: make(map[string]string),
	}
}

// Register implements the Directory interface.
func (d *InmemDirectory) Register(ctx context.Context, id, addr string) error {
	d.Lock()
	defer d.Unlock()
	d.entries[id] = addr
	return nil
}

// Lookup implements the Directory interface.
func (d *InmemDirectory) Lookup(ctx context.Context, id string) (string, error) {
	d.RLock()
	defer d.RUnlock()

	addr, ok := d.entries[id]
	if !ok {
		return "", notFound(id)
	}
	return addr, nil
}

// Unregister implements the Directory interface.
func (d *InmemDirectory) Unregister(ctx context.Context, id string) error {
	d.Lock()
	defer d.Unlock()
	delete(d.entries, id)
	return nil
}

// Reconnect implements the Directory interface. It is a no-op.
func (d *InmemDirectory) Reconnect(ctx context.Context) error {
	return nil
}

// List returns a copy of all the bindings.
func (d *InmemDirectory) List() map[string]string {
	d.RLock()
	defer d.RUnlock()

	res := make(map[string]string, len(d.entries))
	for id, addr := range d.entries {
		res[id] = addr
	}
	return res
}
