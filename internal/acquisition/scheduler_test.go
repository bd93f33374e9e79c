package acquisition

import (
	"context"
	"edgeml/internal/channel"
	"edgeml/internal/drainer"
	"edgeml/internal/sensor"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// slowDevice reports one accel group per tick and takes body of fake time
type slowDevice struct {
	clock  *fakeClock
	body   []time.Duration
	calls  int
	cancel context.CancelFunc
}

func (d *slowDevice) Name() string                      { return "slow" }
func (d *slowDevice) Layout() sensor.Layout             { return sensor.Layout{{Kind: channel.Accel, Width: 6}} }
func (d *slowDevice) Init() error                       { return nil }
func (d *slowDevice) Enable(kinds []channel.Kind) error { return nil }
func (d *slowDevice) Close() error                      { return nil }

func (d *slowDevice) Pending() (sensor.Status, error) {
	i := d.calls
	d.calls++
	d.clock.advance(d.body[i%len(d.body)])
	if d.cancel != nil && d.calls == len(d.body) {
		d.cancel()
	}
	return sensor.Status{Groups: 1}, nil
}

func (d *slowDevice) ReadGroups(dst []byte, n int) error {
	for i := range dst[:n*6] {
		dst[i] = byte(d.calls)
	}
	return nil
}

type recordSink struct {
	appends map[channel.Kind]int
}

func (s *recordSink) Append(kind channel.Kind, data []byte) error {
	if s.appends == nil {
		s.appends = make(map[channel.Kind]int)
	}
	s.appends[kind] += len(data)
	return nil
}

func TestResidual(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{3 * time.Millisecond, 7 * time.Millisecond},
		{10 * time.Millisecond, 0},
		{14 * time.Millisecond, 0},
	}
	for _, c := range cases {
		if got := Residual(10*time.Millisecond, c.elapsed); got != c.want {
			t.Errorf("Residual(10ms, %v) = %v, want %v", c.elapsed, got, c.want)
		}
	}
}

func TestRunSleepsRemainderOfPeriod(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{now: time.Unix(0, 0)}
	dev := &slowDevice{
		clock:  clock,
		body:   []time.Duration{3 * time.Millisecond, 3 * time.Millisecond, 12 * time.Millisecond, 1 * time.Millisecond},
		cancel: cancel,
	}
	sink := &recordSink{}
	s := New(sink, []*drainer.Drainer{drainer.New(dev, 32, 8)}, WithClock(clock), WithPeriod(10*time.Millisecond))

	if err := s.Run(ctx); err != context.Canceled {
		t.Fatalf("Run = %v", err)
	}

	// the overrun tick sleeps not at all, the others sleep out the period
	want := []time.Duration{7 * time.Millisecond, 7 * time.Millisecond, 9 * time.Millisecond}
	if len(clock.sleeps) < len(want) {
		t.Fatalf("sleeps = %v", clock.sleeps)
	}
	for i, w := range want {
		if clock.sleeps[i] != w {
			t.Errorf("sleep %d = %v, want %v", i, clock.sleeps[i], w)
		}
	}

	st := s.Stats()
	if st.Ticks != 4 {
		t.Errorf("ticks = %d", st.Ticks)
	}
	if st.Overruns != 1 || st.Lag != 2*time.Millisecond || st.MaxElapsed != 12*time.Millisecond {
		t.Errorf("stats = %+v", st)
	}
	if sink.appends[channel.Accel] != 4*6 {
		t.Errorf("appended %d accel bytes", sink.appends[channel.Accel])
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clock := &fakeClock{now: time.Unix(0, 0)}
	dev := &slowDevice{clock: clock, body: []time.Duration{time.Millisecond}}
	s := New(&recordSink{}, []*drainer.Drainer{drainer.New(dev, 32, 8)}, WithClock(clock))
	if err := s.Run(ctx); err != context.Canceled {
		t.Fatalf("Run = %v", err)
	}
	if dev.calls != 0 {
		t.Error("no tick expected after cancel")
	}
}

type faultyDevice struct{ slowDevice }

func (d *faultyDevice) Pending() (sensor.Status, error) {
	return sensor.Status{}, errFault
}

var errFault = errors.New("nak")

func TestTickSkipsFaultedDevice(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	good := &slowDevice{clock: clock, body: []time.Duration{0}}
	bad := &faultyDevice{}
	sink := &recordSink{}
	dBad := drainer.New(bad, 32, 8)
	s := New(sink, []*drainer.Drainer{dBad, drainer.New(good, 32, 8)}, WithClock(clock))

	s.Tick()
	s.Tick()

	if sink.appends[channel.Accel] != 2*6 {
		t.Errorf("appended %d accel bytes", sink.appends[channel.Accel])
	}
	if st := dBad.Stats(); st.ConsecutiveFaults != 2 {
		t.Errorf("faulted stats = %+v", st)
	}
	if len(s.Drainers()) != 2 {
		t.Error("drainers")
	}
}
