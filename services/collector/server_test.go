package collector

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensenode/codec"
	"sensenode/metrics"
	"sensenode/types"
)

type recordSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []codec.Batch
	ch  chan codec.Batch
}

func newRecordSink(name string) *recordSink {
	return &recordSink{name: name, ch: make(chan codec.Batch, 16)}
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Forward(_ context.Context, b codec.Batch, _ time.Time) error {
	s.mu.Lock()
	s.got = append(s.got, b)
	s.mu.Unlock()
	s.ch <- b
	return s.err
}

func serve(t *testing.T, m *metrics.Metrics, sinks ...Sink) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(Config{ReadTimeout: time.Second}, sinks, m, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})
	return ln.Addr().String()
}

func send(t *testing.T, c net.Conn, b codec.Batch) {
	t.Helper()
	frame, err := codec.Marshal(b)
	require.NoError(t, err)
	_, err = c.Write(frame)
	require.NoError(t, err)
}

func recv(t *testing.T, s *recordSink) codec.Batch {
	t.Helper()
	select {
	case b := <-s.ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("nothing forwarded")
		return codec.Batch{}
	}
}

func TestFramesReachEverySink(t *testing.T) {
	a, b := newRecordSink("a"), newRecordSink("b")
	b.err = errors.New("broker down")
	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	addr := serve(t, m, a, b)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	want := codec.Batch{Node: "n1", Seq: 0, Payloads: []types.Payload{
		types.R(types.KindCO2, 612),
		types.Critical{Cause: "all_buses_faulted"},
	}}
	send(t, c, want)
	require.Equal(t, want, recv(t, a))
	require.Equal(t, want, recv(t, b), "a failing sink still sees the batch")

	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "sensenode_collector_forward_errors_total")
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSequenceGapsAreCounted(t *testing.T) {
	s := newRecordSink("s")
	reg := prometheus.NewRegistry()
	addr := serve(t, metrics.NewWith(reg), s)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	for _, seq := range []uint32{3, 4, 7} {
		send(t, c, codec.Batch{Node: "n2", Seq: seq, Payloads: []types.Payload{types.R(types.KindHumidity, 40)}})
		recv(t, s)
	}
	require.Eventually(t, func() bool {
		return testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sensenode_collector_sequence_gaps_total Frames missing between consecutive sequence numbers, by node.
# TYPE sensenode_collector_sequence_gaps_total counter
sensenode_collector_sequence_gaps_total{node="n2"} 2
`), "sensenode_collector_sequence_gaps_total") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestBadFrameClosesConnection(t *testing.T) {
	s := newRecordSink("s")
	reg := prometheus.NewRegistry()
	addr := serve(t, metrics.NewWith(reg), s)

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	frame, err := codec.Marshal(codec.Batch{Node: "n3", Payloads: []types.Payload{types.R(types.KindPressure, 1013)}})
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xff // corrupt the checksum
	_, err = c.Write(frame)
	require.NoError(t, err)

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = c.Read(make([]byte, 1))
	require.Error(t, err, "server should hang up")
	require.Empty(t, s.got)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sensenode_collector_decode_errors_total Frames the collector failed to decode.
# TYPE sensenode_collector_decode_errors_total counter
sensenode_collector_decode_errors_total 1
`), "sensenode_collector_decode_errors_total"))
}

func TestTrackRestart(t *testing.T) {
	srv := New(Config{}, nil, nil, zap.NewNop())
	require.Zero(t, srv.track("n", 10))
	require.Equal(t, uint32(4), srv.track("n", 15))
	require.Zero(t, srv.track("n", 0), "restart")
	require.Zero(t, srv.track("n", 1))
}
