package sim

import (
	"edgeml/internal/channel"
	"edgeml/internal/sensor"
	"encoding/binary"
	"github.com/pkg/errors"
	"math"
	"sync"
	"time"
)

var ErrUnderflow = errors.New("read beyond pending groups")

// Device produces synthetic sine samples at a fixed output data rate into a
// bounded virtual FIFO. It stands in for hardware when no bus is present.
type Device struct {
	lock    sync.Mutex
	name    string
	layout  sensor.Layout
	odr     float64
	depth   int
	now     func() time.Time
	last    time.Time
	carry   float64
	pending int
	overrun bool
	seq     uint64
	enabled bool
}

// New returns a simulated device producing kinds interleaved in the given
// order at odr groups per second with a FIFO of depth groups
func New(name string, kinds []channel.Kind, odr float64, depth int) *Device {
	layout := make(sensor.Layout, 0, len(kinds))
	for _, k := range kinds {
		layout = append(layout, sensor.Slot{Kind: k, Width: k.SampleWidth()})
	}
	return &Device{
		name:   name,
		layout: layout,
		odr:    odr,
		depth:  depth,
		now:    time.Now,
	}
}

// WithClock replaces the time source
func (d *Device) WithClock(now func() time.Time) *Device {
	d.now = now
	return d
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Layout() sensor.Layout {
	return d.layout
}

func (d *Device) Init() error {
	return nil
}

func (d *Device) Enable(kinds []channel.Kind) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, k := range kinds {
		if d.layout.Has(k) {
			d.enabled = true
		}
	}
	d.last = d.now()
	return nil
}

// advance accrues the groups produced since the last call
func (d *Device) advance() {
	now := d.now()
	elapsed := now.Sub(d.last).Seconds()
	d.last = now
	if elapsed <= 0 {
		return
	}
	produced := elapsed*d.odr + d.carry
	whole := math.Floor(produced)
	d.carry = produced - whole
	d.pending += int(whole)
	if d.pending > d.depth {
		d.seq += uint64(d.pending - d.depth)
		d.pending = d.depth
		d.overrun = true
	}
}

func (d *Device) Pending() (sensor.Status, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.enabled {
		return sensor.Status{}, sensor.ErrNotEnabled
	}
	d.advance()
	st := sensor.Status{Groups: d.pending, Overrun: d.overrun}
	d.overrun = false
	return st, nil
}

// ReadGroups emits n groups; every axis carries a sine of the group sequence
// number, phase shifted per slot and axis
func (d *Device) ReadGroups(dst []byte, n int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.enabled {
		return sensor.ErrNotEnabled
	}
	if n > d.pending {
		return ErrUnderflow
	}
	off := 0
	for g := 0; g < n; g++ {
		t := float64(d.seq) / d.odr
		for si, s := range d.layout {
			for a := 0; a+2 <= s.Width; a += 2 {
				phase := float64(si*3 + a/2)
				v := int16(8192 * math.Sin(2*math.Pi*5*t+phase))
				binary.LittleEndian.PutUint16(dst[off+a:], uint16(v))
			}
			if s.Width%2 == 1 {
				dst[off+s.Width-1] = byte(d.seq)
			}
			off += s.Width
		}
		d.seq++
	}
	d.pending -= n
	return nil
}

func (d *Device) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.enabled = false
	return nil
}

var _ sensor.Device = (*Device)(nil)
