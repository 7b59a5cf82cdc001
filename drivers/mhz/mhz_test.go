package mhz

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type loopPort struct {
	written bytes.Buffer
	reply   bytes.Buffer
	resets  int
}

func (p *loopPort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *loopPort) Read(b []byte) (int, error) {
	if p.reply.Len() == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return p.reply.Read(b)
}
func (p *loopPort) ResetInput() error { p.resets++; return nil }

func TestCommand_KnownFrame(t *testing.T) {
	f := Command(cmdReadCO2)
	require.Equal(t, [9]byte{0xFF, 0x01, 0x86, 0, 0, 0, 0, 0, 0x79}, f)
}

func TestCO2(t *testing.T) {
	reply := [9]byte{0xFF, 0x86, 0x02, 0x60, 0x47, 0x00, 0x00, 0x00}
	reply[8] = Checksum(reply[:])

	p := &loopPort{}
	p.reply.Write([]byte{0x00, 0x13}) // line noise before the frame
	p.reply.Write(reply[:])

	d := New(p)
	ppm, err := d.CO2(100 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0260), ppm)
	require.Equal(t, 1, p.resets)

	want := Command(cmdReadCO2)
	require.Equal(t, want[:], p.written.Bytes())
}

func TestCO2_TimeoutAndChecksum(t *testing.T) {
	d := New(&loopPort{})
	_, err := d.CO2(5 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	p := &loopPort{}
	p.reply.Write([]byte{0xFF, 0x86, 0x01, 0x90, 0, 0, 0, 0, 0x00})
	_, err = New(p).CO2(50 * time.Millisecond)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestCO2AgainstSimulator(t *testing.T) {
	sim := &Simulator{PPM: func() uint16 { return 1234 }}
	ppm, err := New(sim).CO2(20 * time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, uint16(1234), ppm)
}
