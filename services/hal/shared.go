package hal

import "sync"

// SharedI2C serialises transactions from several drivers onto one bus. Each
// Tx holds the lock for the whole write-then-read exchange.
type SharedI2C struct {
	mu  sync.Mutex
	bus I2C
}

func NewSharedI2C(bus I2C) *SharedI2C {
	if s, ok := bus.(*SharedI2C); ok {
		return s
	}
	return &SharedI2C{bus: bus}
}

func (s *SharedI2C) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bus.Tx(addr, w, r)
}

// Buses caches one SharedI2C per bus id so that every device on the same
// physical bus shares a lock.
type Buses struct {
	mu   sync.Mutex
	p    Platform
	open map[string]*SharedI2C
}

func NewBuses(p Platform) *Buses {
	return &Buses{p: p, open: map[string]*SharedI2C{}}
}

// ByID returns the shared handle for bus id, opening it on first use.
func (b *Buses) ByID(id string) (I2C, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.open[id]; ok {
		return s, nil
	}
	raw, err := b.p.I2C(id)
	if err != nil {
		return nil, err
	}
	s := NewSharedI2C(raw)
	b.open[id] = s
	return s, nil
}
