package pcm

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"os"
	"sync"
)

// SampleWidth is the size of one signed 16-bit little-endian PCM sample
const SampleWidth = 2

const readChunk = 1024

var ErrShortRead = errors.New("not enough buffered pcm samples")

// Source is a PCM sample backlog filled by an audio front end
type Source interface {
	// Available returns the number of buffered samples
	Available() int
	// Read copies len(dst)/SampleWidth samples into dst
	Read(dst []byte) error
	// Overrun reports and clears the lost-samples flag
	Overrun() bool
	Close() error
}

// Stream buffers samples read from an s16le stream, such as a pipe from an
// audio capture tool. When the backlog is full the oldest samples are dropped
// and the overrun flag is raised.
type Stream struct {
	lock    sync.Mutex
	r       io.ReadCloser
	backlog []byte
	max     int
	overrun bool
	err     error
	done    chan struct{}
	detach  bool
}

// NewStream starts reading r. maxSamples bounds the backlog.
func NewStream(r io.ReadCloser, maxSamples int) *Stream {
	s := &Stream{
		r:       r,
		backlog: make([]byte, 0, maxSamples*SampleWidth),
		max:     maxSamples * SampleWidth,
		done:    make(chan struct{}),
	}
	go s.fill()
	return s
}

// OpenStream opens a file or fifo of raw s16le samples; "-" is stdin
func OpenStream(path string, maxSamples int) (*Stream, error) {
	if path == "-" {
		s := NewStream(io.NopCloser(os.Stdin), maxSamples)
		s.detach = true
		return s, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open pcm source")
	}
	return NewStream(f, maxSamples), nil
}

func (s *Stream) fill() {
	defer close(s.done)
	buf := make([]byte, readChunk)
	var carry []byte
	for {
		n, err := s.r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%SampleWidth
			s.push(data[:whole])
			carry = append([]byte(nil), data[whole:]...)
		}
		if err != nil {
			if err != io.EOF {
				log.Warnf("pcm source stopped: %v", err)
			}
			s.lock.Lock()
			s.err = err
			s.lock.Unlock()
			return
		}
	}
}

func (s *Stream) push(data []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(data) > s.max {
		data = data[len(data)-s.max:]
		s.overrun = true
	}
	if free := s.max - len(s.backlog); free < len(data) {
		drop := len(data) - free
		s.backlog = append(s.backlog[:0], s.backlog[drop:]...)
		s.overrun = true
	}
	s.backlog = append(s.backlog, data...)
}

func (s *Stream) Available() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.backlog) / SampleWidth
}

func (s *Stream) Read(dst []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(dst) > len(s.backlog) {
		return ErrShortRead
	}
	n := copy(dst, s.backlog)
	s.backlog = append(s.backlog[:0], s.backlog[n:]...)
	return nil
}

func (s *Stream) Overrun() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	o := s.overrun
	s.overrun = false
	return o
}

// Err returns the error that stopped the reader, io.EOF included
func (s *Stream) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

// Close stops the reader and waits for it to exit. A stdin reader cannot be
// interrupted and is left behind.
func (s *Stream) Close() error {
	err := s.r.Close()
	if !s.detach {
		<-s.done
	}
	return err
}

var _ Source = (*Stream)(nil)
