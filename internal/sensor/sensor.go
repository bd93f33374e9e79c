package sensor

import (
	"edgeml/internal/channel"
	"github.com/pkg/errors"
)

var ErrNotEnabled = errors.New("device not enabled")

// Slot is one channel record inside a sample-group
type Slot struct {
	Kind  channel.Kind
	Width int
}

// Layout is the fixed order of channel records within one sample-group, as
// laid out by the device datasheet
type Layout []Slot

// GroupWidth returns the bytes of one sample-group
func (l Layout) GroupWidth() int {
	w := 0
	for _, s := range l {
		w += s.Width
	}
	return w
}

// Has reports whether the layout carries kind k
func (l Layout) Has(k channel.Kind) bool {
	for _, s := range l {
		if s.Kind == k {
			return true
		}
	}
	return false
}

// Status is a pending-count query result. Overrun is set when the device FIFO
// saturated before it was drained; those samples are lost.
type Status struct {
	Groups  int
	Overrun bool
}

// Setup is the enable call parameters of a device
type Setup struct {
	FullScale float32
	ODR       float32
	FIFO      bool
}

// Device is the capability the drainer needs from a sensor chip. Register
// layouts stay behind it.
type Device interface {
	Name() string
	// Layout describes one sample-group
	Layout() Layout
	Init() error
	// Enable configures the device for the channels in kinds only
	Enable(kinds []channel.Kind) error
	// Pending queries how many sample-groups are waiting
	Pending() (Status, error)
	// ReadGroups reads n sample-groups, interleaved per Layout, into dst.
	// len(dst) is at least n*Layout().GroupWidth().
	ReadGroups(dst []byte, n int) error
	Close() error
}

// Burst holds the samples drained from one device during one tick, split per
// channel. It is sized once for the largest burst and reused every tick.
type Burst struct {
	layout Layout
	raw    []byte
	data   [][]byte
	groups int
}

func NewBurst(layout Layout, maxGroups int) *Burst {
	b := &Burst{
		layout: layout,
		raw:    make([]byte, maxGroups*layout.GroupWidth()),
		data:   make([][]byte, len(layout)),
	}
	for i, s := range layout {
		b.data[i] = make([]byte, 0, maxGroups*s.Width)
	}
	return b
}

// MaxGroups returns the group capacity of the burst
func (b *Burst) MaxGroups() int {
	if w := b.layout.GroupWidth(); w > 0 {
		return len(b.raw) / w
	}
	return 0
}

// Raw returns scratch space for n raw sample-groups
func (b *Burst) Raw(n int) []byte {
	return b.raw[:n*b.layout.GroupWidth()]
}

// Reset empties every channel stream
func (b *Burst) Reset() {
	for i := range b.data {
		b.data[i] = b.data[i][:0]
	}
	b.groups = 0
}

// Demux splits n interleaved sample-groups from raw into the channel streams
func (b *Burst) Demux(raw []byte, n int) {
	off := 0
	for g := 0; g < n; g++ {
		for i, s := range b.layout {
			b.data[i] = append(b.data[i], raw[off:off+s.Width]...)
			off += s.Width
		}
	}
	b.groups += n
}

// Groups returns the sample-groups collected since the last Reset
func (b *Burst) Groups() int {
	return b.groups
}

// Each calls fn for every channel stream in layout order
func (b *Burst) Each(fn func(kind channel.Kind, data []byte)) {
	for i, s := range b.layout {
		fn(s.Kind, b.data[i])
	}
}

// Data returns the stream of kind k
func (b *Burst) Data(k channel.Kind) []byte {
	for i, s := range b.layout {
		if s.Kind == k {
			return b.data[i]
		}
	}
	return nil
}
