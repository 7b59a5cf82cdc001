package hal

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// overlapBus fails the test if two transactions are ever in flight at once.
type overlapBus struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	calls    atomic.Int32
}

func (b *overlapBus) Tx(addr uint16, w, r []byte) error {
	if b.inFlight.Add(1) > 1 {
		b.overlap.Store(true)
	}
	time.Sleep(200 * time.Microsecond)
	b.calls.Add(1)
	b.inFlight.Add(-1)
	return nil
}

func TestSharedI2C_SerialisesTransactions(t *testing.T) {
	raw := &overlapBus{}
	s := NewSharedI2C(raw)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = s.Tx(0x44, []byte{0x24, 0x00}, nil)
			}
		}()
	}
	wg.Wait()
	require.False(t, raw.overlap.Load())
	require.EqualValues(t, 80, raw.calls.Load())
}

func TestNewSharedI2C_DoesNotDoubleWrap(t *testing.T) {
	s := NewSharedI2C(&overlapBus{})
	require.Same(t, s, NewSharedI2C(s))
}
