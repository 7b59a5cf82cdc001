package mhz

import "sync"

// Simulator is an in-memory sensor answering read requests written to it. It
// implements Port.
type Simulator struct {
	mu      sync.Mutex
	pending []byte

	// PPM returns the concentration to report.
	PPM func() uint16
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) != frameLen || p[0] != startByte || Checksum(p) != p[8] {
		return len(p), nil
	}
	if p[2] == cmdReadCO2 {
		var ppm uint16 = 400
		if s.PPM != nil {
			ppm = s.PPM()
		}
		f := [frameLen]byte{startByte, cmdReadCO2, byte(ppm >> 8), byte(ppm)}
		f[8] = Checksum(f[:])
		s.pending = append(s.pending, f[:]...)
	}
	return len(p), nil
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}
