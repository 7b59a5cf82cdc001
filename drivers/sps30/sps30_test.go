package sps30

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_StartMeasurement(t *testing.T) {
	// Datasheet example: start measurement, float format.
	require.Equal(t,
		[]byte{0x7E, 0x00, 0x00, 0x02, 0x01, 0x03, 0xF9, 0x7E},
		EncodeRequest(cmdStart, []byte{0x01, 0x03}))
}

func TestByteStuffing(t *testing.T) {
	data := []byte{0x7E, 0x7D, 0x11, 0x13, 0x42}
	f := EncodeResponse(cmdRead, 0, data)
	for _, b := range f[1 : len(f)-1] {
		require.NotEqual(t, byte(flag), b)
	}
	cmd, state, got, err := DecodeResponse(f[1 : len(f)-1])
	require.NoError(t, err)
	require.Equal(t, byte(cmdRead), cmd)
	require.Zero(t, state)
	require.Equal(t, data, got)
}

func TestDecodeResponse_Checksum(t *testing.T) {
	f := EncodeResponse(cmdStop, 0, nil)
	body := f[1 : len(f)-1]
	body[len(body)-1] ^= 0x01
	_, _, _, err := DecodeResponse(body)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestReadAgainstSimulator(t *testing.T) {
	want := Sample{MassPM1_0: 1.5, MassPM2_5: 2.5, MassPM4_0: 4, MassPM10: 10,
		NumPM0_5: 5, NumPM1_0: 6, NumPM2_5: 7, NumPM4_0: 8, NumPM10: 9, TypicalSize: 0.6}
	fresh := true
	sim := &Simulator{Next: func() (Sample, bool) {
		ok := fresh
		fresh = false
		return want, ok
	}}
	d := New(sim)

	pt, err := d.ProductType()
	require.NoError(t, err)
	require.Equal(t, "00080000", pt)

	// Reading before Start is rejected with a device state.
	_, _, err = d.Read(50 * time.Millisecond)
	var se StateError
	require.ErrorAs(t, err, &se)

	require.NoError(t, d.Start())
	got, ok, err := d.Read(50 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	_, ok, err = d.Read(50 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok, "second read has no new data")
}

type silentPort struct{}

func (silentPort) Write(p []byte) (int, error) { return len(p), nil }
func (silentPort) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func TestTimeout(t *testing.T) {
	_, _, err := New(silentPort{}).Read(5 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}
