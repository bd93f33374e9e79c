package buffer

import (
	"github.com/pkg/errors"
	"sync"
)

var (
	ErrCapacity   = errors.New("capacity must be a positive multiple of the sample width")
	ErrMisaligned = errors.New("data length is not a whole number of samples")
)

// Buffer is a fixed-capacity byte region holding the most recent whole samples
// of one channel. When full, appends evict the oldest bytes. Readers see a
// "last N bytes" window; there is no pop.
//
// A Buffer is safe for one producer and any number of readers.
type Buffer struct {
	lock    sync.Mutex
	storage []byte
	end     int
	width   int
}

// New allocates a buffer of capacity bytes for samples of width bytes
func New(capacity int, width int) (*Buffer, error) {
	if width <= 0 || capacity <= 0 || capacity%width != 0 {
		return nil, ErrCapacity
	}
	return &Buffer{
		storage: make([]byte, capacity),
		width:   width,
	}, nil
}

// NewWithStorage wraps caller-owned storage. The capacity is len(storage).
func NewWithStorage(storage []byte, width int) (*Buffer, error) {
	if width <= 0 || len(storage) == 0 || len(storage)%width != 0 {
		return nil, ErrCapacity
	}
	return &Buffer{
		storage: storage,
		width:   width,
	}, nil
}

// Append inserts data, a whole number of samples, after the newest sample.
// Data longer than the capacity is clamped to its newest capacity bytes.
func (b *Buffer) Append(data []byte) error {
	length := len(data)
	if length == 0 {
		return nil
	}
	if length%b.width != 0 {
		return ErrMisaligned
	}

	capacity := len(b.storage)
	if length > capacity {
		data = data[length-capacity:]
		length = capacity
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if free := capacity - b.end; free < length {
		evict := length - free
		copy(b.storage, b.storage[evict:b.end])
		b.end -= evict
	}
	copy(b.storage[b.end:], data)
	b.end += length
	return nil
}

// View calls fn with the valid window while holding the lock. fn must not
// retain the slice or block.
func (b *Buffer) View(fn func(window []byte)) {
	b.lock.Lock()
	defer b.lock.Unlock()
	fn(b.storage[:b.end])
}

// Snapshot copies the valid window into dst, growing it if needed
func (b *Buffer) Snapshot(dst []byte) []byte {
	b.lock.Lock()
	defer b.lock.Unlock()
	dst = append(dst[:0], b.storage[:b.end]...)
	return dst
}

// Len returns the number of valid bytes
func (b *Buffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.end
}

// Samples returns the number of whole samples held
func (b *Buffer) Samples() int {
	return b.Len() / b.width
}

func (b *Buffer) Cap() int {
	return len(b.storage)
}

func (b *Buffer) Width() int {
	return b.width
}

// Reset forgets every stored sample
func (b *Buffer) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.end = 0
}
