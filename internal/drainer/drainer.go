package drainer

import (
	"edgeml/internal/sensor"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync/atomic"
)

const (
	DefaultMaxBurst = 32
	DefaultMaxChunk = 8
)

// Stats counts the drainer activity of one device
type Stats struct {
	Device            string `json:"device"`
	Groups            uint64 `json:"groups"`
	Overruns          uint64 `json:"overruns"`
	Faults            uint64 `json:"faults"`
	ConsecutiveFaults uint64 `json:"consecutive_faults"`
}

// Drainer moves the sample backlog of one device into per-channel bursts. At
// most maxBurst groups are taken per tick; the rest stays in the device FIFO
// for the next tick. Each device read asks for at most maxChunk groups.
type Drainer struct {
	dev      sensor.Device
	maxBurst int
	maxChunk int

	groups      atomic.Uint64
	overruns    atomic.Uint64
	faults      atomic.Uint64
	consecutive atomic.Uint64
}

func New(dev sensor.Device, maxBurst int, maxChunk int) *Drainer {
	if maxBurst <= 0 {
		maxBurst = DefaultMaxBurst
	}
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	if maxChunk > maxBurst {
		maxChunk = maxBurst
	}
	return &Drainer{dev: dev, maxBurst: maxBurst, maxChunk: maxChunk}
}

func (d *Drainer) Device() sensor.Device {
	return d.dev
}

func (d *Drainer) MaxBurst() int {
	return d.maxBurst
}

func (d *Drainer) MaxChunk() int {
	return d.maxChunk
}

// NewBurst allocates a burst large enough for one tick of this device
func (d *Drainer) NewBurst() *sensor.Burst {
	return sensor.NewBurst(d.dev.Layout(), d.maxBurst)
}

// PendingCount returns the sample-groups waiting in the device. A device
// overrun is logged as data loss and counted; the count is still returned.
func (d *Drainer) PendingCount() (int, error) {
	st, err := d.dev.Pending()
	if err != nil {
		return 0, errors.Wrapf(err, "%s pending", d.dev.Name())
	}
	if st.Overrun {
		d.overruns.Add(1)
		log.Warnf("%s fifo overrun, samples lost", d.dev.Name())
	}
	return st.Groups, nil
}

// Drain reads up to n sample-groups in chunks of at most maxChunk groups and
// demultiplexes them into burst. It returns the groups actually retrieved.
func (d *Drainer) Drain(n int, burst *sensor.Burst) (int, error) {
	if n > d.maxBurst {
		n = d.maxBurst
	}
	if m := burst.MaxGroups(); n > m {
		n = m
	}
	done := 0
	for done < n {
		k := n - done
		if k > d.maxChunk {
			k = d.maxChunk
		}
		raw := burst.Raw(k)
		if err := d.dev.ReadGroups(raw, k); err != nil {
			return done, errors.Wrapf(err, "%s read %d groups", d.dev.Name(), k)
		}
		burst.Demux(raw, k)
		done += k
	}
	d.groups.Add(uint64(done))
	return done, nil
}

// Tick runs one acquisition pass for the device: query, then drain into a
// reset burst. On a bus fault the burst is left empty for this tick.
func (d *Drainer) Tick(burst *sensor.Burst) (int, error) {
	burst.Reset()
	pending, err := d.PendingCount()
	if err == nil && pending > 0 {
		_, err = d.Drain(pending, burst)
	}
	if err != nil {
		burst.Reset()
		d.faults.Add(1)
		d.consecutive.Add(1)
		return 0, err
	}
	d.consecutive.Store(0)
	return burst.Groups(), nil
}

func (d *Drainer) Stats() Stats {
	return Stats{
		Device:            d.dev.Name(),
		Groups:            d.groups.Load(),
		Overruns:          d.overruns.Load(),
		Faults:            d.faults.Load(),
		ConsecutiveFaults: d.consecutive.Load(),
	}
}
