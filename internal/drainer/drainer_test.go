package drainer

import (
	"bytes"
	"edgeml/internal/channel"
	"edgeml/internal/sensor"
	"errors"
	"testing"
)

var errBus = errors.New("bus nak")

// fifoDevice serves interleaved accel/gyro groups; group g carries byte 2g in
// its accel slot and 2g+1 in its gyro slot
type fifoDevice struct {
	pending    int
	overrun    bool
	next       int
	reads      []int
	failAt     int
	pendingErr error
}

var layout = sensor.Layout{
	{Kind: channel.Accel, Width: 6},
	{Kind: channel.Gyro, Width: 6},
}

func (f *fifoDevice) Name() string                      { return "fake" }
func (f *fifoDevice) Layout() sensor.Layout             { return layout }
func (f *fifoDevice) Init() error                       { return nil }
func (f *fifoDevice) Enable(kinds []channel.Kind) error { return nil }
func (f *fifoDevice) Close() error                      { return nil }

func (f *fifoDevice) Pending() (sensor.Status, error) {
	if f.pendingErr != nil {
		return sensor.Status{}, f.pendingErr
	}
	st := sensor.Status{Groups: f.pending, Overrun: f.overrun}
	f.overrun = false
	return st, nil
}

func (f *fifoDevice) ReadGroups(dst []byte, n int) error {
	f.reads = append(f.reads, n)
	if f.failAt > 0 && len(f.reads) == f.failAt {
		return errBus
	}
	for g := 0; g < n; g++ {
		copy(dst[g*12:], bytes.Repeat([]byte{byte(2 * f.next)}, 6))
		copy(dst[g*12+6:], bytes.Repeat([]byte{byte(2*f.next + 1)}, 6))
		f.next++
	}
	f.pending -= n
	return nil
}

func TestDrainChunksAndDemuxes(t *testing.T) {
	cases := []struct {
		name     string
		pending  int
		maxBurst int
		maxChunk int
		want     int
	}{
		{"single chunk", 5, 32, 8, 5},
		{"several chunks", 20, 32, 8, 20},
		{"capped burst", 40, 32, 8, 32},
		{"chunk of one", 3, 32, 1, 3},
		{"chunk above burst", 10, 4, 16, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dev := &fifoDevice{pending: c.pending}
			d := New(dev, c.maxBurst, c.maxChunk)
			burst := d.NewBurst()

			got, err := d.Tick(burst)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("groups = %d, want %d", got, c.want)
			}
			total := 0
			for _, n := range dev.reads {
				if n > d.MaxChunk() {
					t.Errorf("read of %d groups exceeds chunk %d", n, d.MaxChunk())
				}
				total += n
			}
			if total != c.want {
				t.Errorf("requested %d groups in total, want %d", total, c.want)
			}
			if len(burst.Data(channel.Accel)) != c.want*6 || len(burst.Data(channel.Gyro)) != c.want*6 {
				t.Errorf("per-channel lengths %d/%d, want %d", len(burst.Data(channel.Accel)), len(burst.Data(channel.Gyro)), c.want*6)
			}
			accel := burst.Data(channel.Accel)
			gyro := burst.Data(channel.Gyro)
			for g := 0; g < c.want; g++ {
				if accel[g*6] != byte(2*g) || gyro[g*6] != byte(2*g+1) {
					t.Fatalf("group %d demuxed as accel %d gyro %d", g, accel[g*6], gyro[g*6])
				}
			}
			if dev.pending != c.pending-c.want {
				t.Errorf("left %d in fifo, want %d", dev.pending, c.pending-c.want)
			}
		})
	}
}

func TestTickNothingPending(t *testing.T) {
	dev := &fifoDevice{}
	d := New(dev, 32, 8)
	burst := d.NewBurst()
	n, err := d.Tick(burst)
	if err != nil || n != 0 {
		t.Fatalf("Tick = %d, %v", n, err)
	}
	if len(dev.reads) != 0 {
		t.Error("no read expected when fifo is empty")
	}
}

func TestTickOverrunIsCountedAndDrained(t *testing.T) {
	dev := &fifoDevice{pending: 32, overrun: true}
	d := New(dev, 32, 8)
	n, err := d.Tick(d.NewBurst())
	if err != nil {
		t.Fatal(err)
	}
	if n != 32 {
		t.Errorf("drained %d", n)
	}
	if s := d.Stats(); s.Overruns != 1 || s.Groups != 32 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTickFaultSkipsBurst(t *testing.T) {
	dev := &fifoDevice{pending: 20, failAt: 2}
	d := New(dev, 32, 8)
	burst := d.NewBurst()
	n, err := d.Tick(burst)
	if !errors.Is(err, errBus) {
		t.Fatalf("err = %v", err)
	}
	if n != 0 || burst.Groups() != 0 || len(burst.Data(channel.Accel)) != 0 {
		t.Error("faulted burst must be empty")
	}
	s := d.Stats()
	if s.Faults != 1 || s.ConsecutiveFaults != 1 {
		t.Errorf("stats = %+v", s)
	}

	dev.failAt = 0
	if _, err := d.Tick(burst); err != nil {
		t.Fatal(err)
	}
	if d.Stats().ConsecutiveFaults != 0 {
		t.Error("a good tick must reset consecutive faults")
	}
}

func TestTickPendingFault(t *testing.T) {
	dev := &fifoDevice{pendingErr: errBus}
	d := New(dev, 32, 8)
	if _, err := d.Tick(d.NewBurst()); !errors.Is(err, errBus) {
		t.Errorf("err = %v", err)
	}
}

func TestDrainRespectsRequest(t *testing.T) {
	dev := &fifoDevice{pending: 30}
	d := New(dev, 32, 8)
	burst := d.NewBurst()
	n, err := d.Drain(10, burst)
	if err != nil || n != 10 {
		t.Fatalf("Drain = %d, %v", n, err)
	}
	if dev.pending != 20 {
		t.Errorf("pending = %d", dev.pending)
	}
}
