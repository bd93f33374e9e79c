package frame

import (
	"edgeml/internal/buffer"
	"edgeml/internal/channel"
	"github.com/pkg/errors"
	"sync"
)

// MaxClasses bounds the probability vector, as the engine's frame does
const MaxClasses = 50

var (
	ErrNoChannels      = errors.New("engine reported no enabled channels")
	ErrDuplicateKind   = errors.New("duplicate channel kind")
	ErrInvalidKind     = errors.New("invalid channel kind")
	ErrTooManyClasses  = errors.New("class count exceeds probability vector")
	ErrStorageMismatch = errors.New("channel storage length differs from capacity")
)

// ChannelSpec is one entry of the engine-reported channel requirements.
// Storage is optional; when set the buffer uses it instead of allocating.
type ChannelSpec struct {
	Kind     channel.Kind
	Capacity int
	Storage  []byte
}

// Spec is what the engine reports at init
type Spec struct {
	Channels   []ChannelSpec
	ClassCount int
}

// ChannelData is a copy of one channel window taken for inference
type ChannelData struct {
	Kind  channel.Kind
	Width int
	Data  []byte
}

// Input is the engine input assembled from all channel windows. Each window is
// internally consistent; windows of different channels may come from
// adjacent ticks.
type Input struct {
	Channels []ChannelData
}

// Get returns the window of kind k
func (in *Input) Get(k channel.Kind) (ChannelData, bool) {
	for _, c := range in.Channels {
		if c.Kind == k {
			return c, true
		}
	}
	return ChannelData{}, false
}

type entry struct {
	ch  channel.Channel
	buf *buffer.Buffer
}

// Frame is the channel registry: the enabled channels in engine order, each
// with its buffer, plus the probability vector of the last classification.
type Frame struct {
	entries    []entry
	index      map[channel.Kind]int
	classCount int

	probLock sync.Mutex
	probs    [MaxClasses]float32
}

// New builds the registry from the engine spec, honoring capacities exactly
func New(spec *Spec) (*Frame, error) {
	if spec == nil || len(spec.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if spec.ClassCount < 0 || spec.ClassCount > MaxClasses {
		return nil, ErrTooManyClasses
	}
	f := &Frame{
		entries:    make([]entry, 0, len(spec.Channels)),
		index:      make(map[channel.Kind]int, len(spec.Channels)),
		classCount: spec.ClassCount,
	}
	for _, cs := range spec.Channels {
		if !cs.Kind.Valid() {
			return nil, errors.Wrapf(ErrInvalidKind, "kind %d", cs.Kind)
		}
		if _, ok := f.index[cs.Kind]; ok {
			return nil, errors.Wrap(ErrDuplicateKind, cs.Kind.String())
		}
		ch := channel.New(cs.Kind)

		var (
			buf *buffer.Buffer
			err error
		)
		if cs.Storage != nil {
			if len(cs.Storage) != cs.Capacity {
				return nil, errors.Wrap(ErrStorageMismatch, cs.Kind.String())
			}
			buf, err = buffer.NewWithStorage(cs.Storage, ch.Width)
		} else {
			buf, err = buffer.New(cs.Capacity, ch.Width)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s capacity %d", cs.Kind, cs.Capacity)
		}

		f.index[cs.Kind] = len(f.entries)
		f.entries = append(f.entries, entry{ch: ch, buf: buf})
	}
	return f, nil
}

// Channels returns the enabled channels in engine order
func (f *Frame) Channels() []channel.Channel {
	res := make([]channel.Channel, len(f.entries))
	for i, e := range f.entries {
		res[i] = e.ch
	}
	return res
}

func (f *Frame) Enabled(k channel.Kind) bool {
	_, ok := f.index[k]
	return ok
}

func (f *Frame) Buffer(k channel.Kind) (*buffer.Buffer, bool) {
	i, ok := f.index[k]
	if !ok {
		return nil, false
	}
	return f.entries[i].buf, true
}

// Append routes data to the buffer of kind k. Kinds the engine did not ask
// for are dropped.
func (f *Frame) Append(k channel.Kind, data []byte) error {
	buf, ok := f.Buffer(k)
	if !ok {
		return nil
	}
	return buf.Append(data)
}

// Snapshot copies every channel window into dst, reusing its storage. Each
// channel lock is held only while that channel is copied.
func (f *Frame) Snapshot(dst *Input) {
	if cap(dst.Channels) < len(f.entries) {
		dst.Channels = make([]ChannelData, len(f.entries))
	}
	dst.Channels = dst.Channels[:len(f.entries)]
	for i, e := range f.entries {
		cd := &dst.Channels[i]
		cd.Kind = e.ch.Kind
		cd.Width = e.ch.Width
		cd.Data = e.buf.Snapshot(cd.Data)
	}
}

func (f *Frame) ClassCount() int {
	return f.classCount
}

// SetProbabilities stores the class probabilities of the last classification.
// Values beyond the class count are ignored.
func (f *Frame) SetProbabilities(p []float32) {
	f.probLock.Lock()
	defer f.probLock.Unlock()
	f.probs = [MaxClasses]float32{}
	copy(f.probs[:f.classCount], p)
}

// Probabilities returns a copy of the probability vector
func (f *Frame) Probabilities() []float32 {
	f.probLock.Lock()
	defer f.probLock.Unlock()
	res := make([]float32, f.classCount)
	copy(res, f.probs[:f.classCount])
	return res
}

// Reset clears every channel buffer
func (f *Frame) Reset() {
	for _, e := range f.entries {
		e.buf.Reset()
	}
}
