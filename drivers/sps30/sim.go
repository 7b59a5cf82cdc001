package sps30

import (
	"encoding/binary"
	"math"
	"sync"
)

// Simulator is an in-memory SPS30 that answers SHDLC requests written to it.
// It implements Port.
type Simulator struct {
	mu        sync.Mutex
	measuring bool
	pending   []byte

	// Next returns the sample for a read; ok=false simulates "no new data".
	Next func() (s Sample, ok bool)
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p) < 2 || p[0] != flag || p[len(p)-1] != flag {
		return len(p), nil
	}
	// Requests have no state byte; decode by inserting a zero one.
	raw := unstuff(p[1 : len(p)-1])
	if len(raw) < 4 || Checksum(raw[:len(raw)-1]) != raw[len(raw)-1] {
		return len(p), nil
	}
	cmd := raw[1]
	switch cmd {
	case cmdStart:
		s.measuring = true
		s.pending = append(s.pending, EncodeResponse(cmd, 0, nil)...)
	case cmdStop, cmdReset:
		s.measuring = false
		s.pending = append(s.pending, EncodeResponse(cmd, 0, nil)...)
	case cmdFanClean:
		s.pending = append(s.pending, EncodeResponse(cmd, 0, nil)...)
	case cmdDeviceInfo:
		s.pending = append(s.pending, EncodeResponse(cmd, 0, []byte("00080000\x00"))...)
	case cmdRead:
		if !s.measuring {
			s.pending = append(s.pending, EncodeResponse(cmd, 0x43, nil)...)
			break
		}
		var data []byte
		if s.Next != nil {
			if smp, ok := s.Next(); ok {
				data = encodeSample(smp)
			}
		}
		s.pending = append(s.pending, EncodeResponse(cmd, 0, data)...)
	default:
		s.pending = append(s.pending, EncodeResponse(cmd, 0x02, nil)...)
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

func unstuff(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == escape && i+1 < len(b) {
			i++
			out = append(out, b[i]^xorBit)
			continue
		}
		out = append(out, b[i])
	}
	return out
}

func encodeSample(s Sample) []byte {
	vals := [...]float32{
		s.MassPM1_0, s.MassPM2_5, s.MassPM4_0, s.MassPM10,
		s.NumPM0_5, s.NumPM1_0, s.NumPM2_5, s.NumPM4_0, s.NumPM10,
		s.TypicalSize,
	}
	out := make([]byte, 0, sampleLen)
	for _, v := range vals {
		out = binary.BigEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}
