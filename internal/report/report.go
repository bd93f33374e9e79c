package report

import (
	"edgeml/internal/inference"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"io"
	"sync"
	"sync/atomic"
)

// Sink publishes prediction lines to the log and, when set, to a writer such
// as a serial port. Lines end with CRLF like a terminal println.
type Sink struct {
	lock   sync.Mutex
	w      io.Writer
	closer io.Closer
	lines  atomic.Uint64
}

func New(w io.Writer) *Sink {
	s := &Sink{w: w}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Open returns a serial sink for name, or a log-only sink when name is empty
func Open(name string, baud int) (*Sink, error) {
	if name == "" {
		return New(nil), nil
	}
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open report port %s", name)
	}
	log.Infof("reporting predictions to %s @ %d baud", name, baud)
	return New(port), nil
}

func (s *Sink) Report(res inference.Result) error {
	line := res.String()
	log.Infoln(line)
	s.lines.Add(1)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.w == nil {
		return nil
	}
	if _, err := io.WriteString(s.w, line+"\r\n"); err != nil {
		return errors.Wrap(err, "write prediction")
	}
	return nil
}

// Lines returns how many predictions were reported
func (s *Sink) Lines() uint64 {
	return s.lines.Load()
}

func (s *Sink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer, s.w = nil, nil
	return err
}
