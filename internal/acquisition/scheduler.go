package acquisition

import (
	"context"
	"edgeml/internal/channel"
	"edgeml/internal/drainer"
	"edgeml/internal/sensor"
	log "github.com/sirupsen/logrus"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	DefaultPeriod       = 10 * time.Millisecond
	DefaultDiagInterval = 10 * time.Second
)

// Sink receives the per-channel samples of each tick
type Sink interface {
	Append(kind channel.Kind, data []byte) error
}

// Stats describes the timing of the acquisition loop. Overruns are ticks
// whose body took at least one period; Lag is the time they ran over.
type Stats struct {
	Ticks       uint64        `json:"ticks"`
	Overruns    uint64        `json:"overruns"`
	LastElapsed time.Duration `json:"last_elapsed"`
	MaxElapsed  time.Duration `json:"max_elapsed"`
	Lag         time.Duration `json:"lag"`
}

type source struct {
	drainer *drainer.Drainer
	burst   *sensor.Burst
}

// Scheduler drains every device once per period into the sink. Ticks never
// overlap; the only suspension point is the end-of-tick sleep.
type Scheduler struct {
	period       time.Duration
	clock        Clock
	priority     int
	diagInterval time.Duration
	sink         Sink
	sources      []source

	ticks       atomic.Uint64
	overruns    atomic.Uint64
	lastElapsed atomic.Int64
	maxElapsed  atomic.Int64
	lag         atomic.Int64
}

type Option func(*Scheduler)

func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPriority sets the nice value of the acquisition thread; 0 leaves it
func WithPriority(nice int) Option {
	return func(s *Scheduler) { s.priority = nice }
}

func WithDiagInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.diagInterval = d
		}
	}
}

// New builds a scheduler over drainers. Each drainer gets its own burst,
// allocated once and reused every tick.
func New(sink Sink, drainers []*drainer.Drainer, opts ...Option) *Scheduler {
	s := &Scheduler{
		period:       DefaultPeriod,
		clock:        SystemClock,
		diagInterval: DefaultDiagInterval,
		sink:         sink,
		sources:      make([]source, 0, len(drainers)),
	}
	for _, o := range opts {
		o(s)
	}
	for _, d := range drainers {
		s.sources = append(s.sources, source{drainer: d, burst: d.NewBurst()})
	}
	return s
}

func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Residual returns how long to sleep after a tick body that took elapsed
func Residual(period, elapsed time.Duration) time.Duration {
	if elapsed < period {
		return period - elapsed
	}
	return 0
}

// Tick drains every device once and appends each burst to the sink. A device
// fault is logged and only that device is skipped.
func (s *Scheduler) Tick() {
	for _, src := range s.sources {
		n, err := src.drainer.Tick(src.burst)
		if err != nil {
			log.Warnf("acquisition: %v", err)
			continue
		}
		if n == 0 {
			continue
		}
		src.burst.Each(func(kind channel.Kind, data []byte) {
			if err := s.sink.Append(kind, data); err != nil {
				log.Warnf("acquisition: append %s: %v", kind, err)
			}
		})
	}
}

func (s *Scheduler) record(elapsed time.Duration) {
	s.ticks.Add(1)
	s.lastElapsed.Store(int64(elapsed))
	if int64(elapsed) > s.maxElapsed.Load() {
		s.maxElapsed.Store(int64(elapsed))
	}
	if elapsed >= s.period {
		s.overruns.Add(1)
		s.lag.Add(int64(elapsed - s.period))
	}
}

// Run executes ticks until ctx is done. It pins itself to an OS thread so the
// configured priority applies to the loop only.
func (s *Scheduler) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := setThreadPriority(s.priority); err != nil {
		log.Warnf("acquisition: cannot set thread priority %d: %v", s.priority, err)
	}
	log.Infof("acquisition started: %d devices, period %v", len(s.sources), s.period)

	diagLastCheck := s.clock.Now()
	diagLastTicks := s.ticks.Load()
	diagLastOverruns := s.overruns.Load()

	for {
		select {
		case <-ctx.Done():
			log.Infof("acquisition stopped after %d ticks", s.ticks.Load())
			return ctx.Err()
		default:
		}

		start := s.clock.Now()
		s.Tick()
		end := s.clock.Now()
		elapsed := end.Sub(start)
		s.record(elapsed)

		if diag := end.Sub(diagLastCheck); diag >= s.diagInterval {
			ticks, overruns := s.ticks.Load(), s.overruns.Load()
			log.Debugf("acquisition tps: %3.1f, overruns: %d, max elapsed: %v",
				float64(ticks-diagLastTicks)/diag.Seconds(), overruns-diagLastOverruns, time.Duration(s.maxElapsed.Load()))
			diagLastCheck, diagLastTicks, diagLastOverruns = end, ticks, overruns
		}

		if d := Residual(s.period, elapsed); d > 0 {
			s.clock.Sleep(ctx, d)
		}
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:       s.ticks.Load(),
		Overruns:    s.overruns.Load(),
		LastElapsed: time.Duration(s.lastElapsed.Load()),
		MaxElapsed:  time.Duration(s.maxElapsed.Load()),
		Lag:         time.Duration(s.lag.Load()),
	}
}

// Drainers returns the drainers in tick order
func (s *Scheduler) Drainers() []*drainer.Drainer {
	res := make([]*drainer.Drainer, len(s.sources))
	for i, src := range s.sources {
		res[i] = src.drainer
	}
	return res
}
