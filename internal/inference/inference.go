package inference

import (
	"edgeml/internal/frame"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"strings"
	"sync"
	"time"
)

var ErrEngineNotReady = errors.New("engine not ready")

// Engine is the contract of the classification engine. Init reports the
// channels it needs and their capacities; a nil spec means not ready.
type Engine interface {
	Name() string
	Init() (*frame.Spec, error)
	// Sensitivity returns the per-class sensitivity vector and the class count
	Sensitivity() ([]float32, int)
	PredictionInterval() time.Duration
	Classify(in *frame.Input) (int, []float32, error)
}

// Result is one classification outcome
type Result struct {
	Class int       `json:"class"`
	Probs []float32 `json:"probs"`
}

// String renders the prediction line, e.g. "PRED: 1, 0.10, 0.90"
func (r Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PRED: %d", r.Class)
	for _, p := range r.Probs {
		fmt.Fprintf(&sb, ", %.2f", p)
	}
	return sb.String()
}

// Setup initializes the engine and builds the frame from what it reports.
// Any failure is reported as ErrEngineNotReady.
func Setup(e Engine) (*frame.Frame, error) {
	spec, err := e.Init()
	if err != nil {
		return nil, errors.Wrapf(ErrEngineNotReady, "%s: %v", e.Name(), err)
	}
	if spec == nil {
		return nil, errors.Wrap(ErrEngineNotReady, e.Name())
	}
	f, err := frame.New(spec)
	if err != nil {
		return nil, errors.Wrapf(ErrEngineNotReady, "%s: %v", e.Name(), err)
	}
	sens, classes := e.Sensitivity()
	log.Infof("engine %s ready: %d channels, %d classes, sensitivity %v, prediction interval %v",
		e.Name(), len(spec.Channels), classes, sens, e.PredictionInterval())
	return f, nil
}

// Adapter runs the engine over the frame. Buffer locks are held only while
// the windows are copied; the engine runs on the copy.
type Adapter struct {
	engine Engine
	frame  *frame.Frame

	lock  sync.Mutex
	input frame.Input
}

func NewAdapter(e Engine, f *frame.Frame) *Adapter {
	return &Adapter{engine: e, frame: f}
}

func (a *Adapter) Engine() Engine {
	return a.engine
}

func (a *Adapter) Frame() *frame.Frame {
	return a.frame
}

// Classify snapshots the frame, runs the engine once and records the
// probabilities in the frame.
func (a *Adapter) Classify() (Result, error) {
	if a.engine == nil || a.frame == nil {
		return Result{}, ErrEngineNotReady
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	a.frame.Snapshot(&a.input)
	class, probs, err := a.engine.Classify(&a.input)
	if err != nil {
		return Result{}, errors.Wrap(err, "classify")
	}
	a.frame.SetProbabilities(probs)
	return Result{Class: class, Probs: a.frame.Probabilities()}, nil
}
