// mailbox/mailbox_test.go
package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sensenode/types"
)

func reading(p types.Priority, v float32) types.Item {
	return types.ReadingItem(p, types.R(types.KindBrightness, v))
}

func valueOf(t *testing.T, it types.Item) float32 {
	t.Helper()
	r, ok := it.Payload.(types.Reading)
	require.True(t, ok, "payload %T is not a reading", it.Payload)
	return r.Value
}

func TestReceive_MostUrgentFirstRegardlessOfArrival(t *testing.T) {
	c := New[types.Item](8)
	require.True(t, c.TryPublish(reading(types.PrioRoutine, 1)))
	require.True(t, c.TryPublish(reading(types.PrioMedium, 2)))
	require.True(t, c.TryPublish(reading(types.PrioFault, 3)))
	require.True(t, c.TryPublish(types.CriticalItem("boom")))

	ctx := context.Background()
	first, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, types.PrioCritical, first.Priority)

	var got []float32
	for i := 0; i < 3; i++ {
		it, err := c.Receive(ctx)
		require.NoError(t, err)
		got = append(got, valueOf(t, it))
	}
	require.Equal(t, []float32{3, 2, 1}, got)
}

func TestEqualPriorityIsFIFO(t *testing.T) {
	c := New[types.Item](8)
	for i := 0; i < 5; i++ {
		c.TryPublish(reading(types.PrioRoutine, float32(i)))
	}
	for i := 0; i < 5; i++ {
		it, ok := c.TryReceive()
		require.True(t, ok)
		require.Equal(t, float32(i), valueOf(t, it))
	}
	_, ok := c.TryReceive()
	require.False(t, ok)
}

func TestTryPublish_DropsNewestWhenFull(t *testing.T) {
	c := New[types.Item](3)
	var dropped []types.Item
	c.OnDrop = func(it types.Item) { dropped = append(dropped, it) }

	for i := 0; i < 3; i++ {
		require.True(t, c.TryPublish(reading(types.PrioRoutine, float32(i))))
	}
	require.False(t, c.TryPublish(reading(types.PrioHigh, 99)))
	require.Len(t, dropped, 1)
	require.Equal(t, float32(99), valueOf(t, dropped[0]))
	require.Equal(t, 3, c.Len())

	// Accepted items survive untouched.
	for i := 0; i < 3; i++ {
		it, ok := c.TryReceive()
		require.True(t, ok)
		require.Equal(t, float32(i), valueOf(t, it))
	}
}

func TestReceive_WaitsForPublish(t *testing.T) {
	c := New[types.Item](4)
	got := make(chan types.Item, 1)
	go func() {
		it, err := c.Receive(context.Background())
		if err == nil {
			got <- it
		}
	}()

	time.Sleep(10 * time.Millisecond)
	c.TryPublish(reading(types.PrioHigh, 7))

	select {
	case it := <-got:
		require.Equal(t, float32(7), valueOf(t, it))
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken")
	}
}

func TestReceive_HonoursDeadline(t *testing.T) {
	c := New[types.Item](4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPublish_WaitsForRoom(t *testing.T) {
	c := New[types.Item](1)
	require.True(t, c.TryPublish(reading(types.PrioRoutine, 1)))

	done := make(chan error, 1)
	go func() {
		done <- c.Publish(context.Background(), types.CriticalItem("late"))
	}()

	select {
	case <-done:
		t.Fatal("Publish returned while full")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := c.TryReceive()
	require.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Publish did not complete after room was made")
	}
	it, ok := c.TryReceive()
	require.True(t, ok)
	require.Equal(t, types.PrioCritical, it.Priority)
}

func TestConcurrentProducers(t *testing.T) {
	c := New[types.Item](DefaultCapacity)
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if c.TryPublish(reading(types.PrioRoutine, float32(i))) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, DefaultCapacity, accepted)
	require.Equal(t, DefaultCapacity, c.Len())
}
