package engine

import (
	"edgeml/internal/channel"
	"edgeml/internal/frame"
	"edgeml/internal/inference"
	"encoding/binary"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"math"
	"os"
	"sync/atomic"
	"time"
)

const DefaultPredictionInterval = 200 * time.Millisecond

var ErrInvalidManifest = errors.New("invalid engine manifest")

// ChannelManifest asks for a window of Samples samples of one kind
type ChannelManifest struct {
	Kind    string `yaml:"kind"`
	Samples int    `yaml:"samples"`
}

// RuleManifest votes for Class with a score of rms(Channel)/Threshold
type RuleManifest struct {
	Class     string  `yaml:"class"`
	Channel   string  `yaml:"channel"`
	Threshold float64 `yaml:"threshold"`
}

// Manifest describes a threshold engine. The first class is the rest class,
// which scores 1 and wins when no rule crosses its threshold.
type Manifest struct {
	Name                 string            `yaml:"name"`
	PredictionIntervalMs int               `yaml:"prediction_interval_ms"`
	Classes              []string          `yaml:"classes"`
	Sensitivity          []float32         `yaml:"sensitivity"`
	Channels             []ChannelManifest `yaml:"channels"`
	Rules                []RuleManifest    `yaml:"rules"`
}

type rule struct {
	class     int
	kind      channel.Kind
	threshold float64
}

// model is what Init derives from the manifest. It is published whole and
// never modified afterwards.
type model struct {
	spec        *frame.Spec
	rules       []rule
	sensitivity []float32
	interval    time.Duration
}

// Threshold is a reference engine scoring classes by channel signal energy.
// Init may run again while Classify is in flight on another goroutine.
type Threshold struct {
	manifest Manifest
	model    atomic.Pointer[model]
}

// Load reads a manifest file
func Load(path string) (*Threshold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	return Parse(data)
}

// Parse decodes a YAML manifest
func Parse(data []byte) (*Threshold, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(ErrInvalidManifest, err.Error())
	}
	return New(m), nil
}

// New returns an engine for m; the manifest is validated by Init
func New(m Manifest) *Threshold {
	if m.Name == "" {
		m.Name = "threshold"
	}
	return &Threshold{manifest: m}
}

// SetPredictionInterval overrides the manifest interval when d is positive
func (e *Threshold) SetPredictionInterval(d time.Duration) {
	if d > 0 {
		e.manifest.PredictionIntervalMs = int(d / time.Millisecond)
	}
}

func (e *Threshold) Name() string {
	return e.manifest.Name
}

func (e *Threshold) Init() (*frame.Spec, error) {
	m := &e.manifest
	if len(m.Classes) == 0 || len(m.Classes) > frame.MaxClasses {
		return nil, errors.Wrapf(ErrInvalidManifest, "%d classes", len(m.Classes))
	}
	if len(m.Channels) == 0 {
		return nil, errors.Wrap(ErrInvalidManifest, "no channels")
	}
	if len(m.Sensitivity) > len(m.Classes) {
		return nil, errors.Wrap(ErrInvalidManifest, "more sensitivities than classes")
	}

	spec := &frame.Spec{ClassCount: len(m.Classes)}
	for _, cm := range m.Channels {
		k, err := channel.ParseKind(cm.Kind)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidManifest, err.Error())
		}
		if cm.Samples <= 0 {
			return nil, errors.Wrapf(ErrInvalidManifest, "%s: %d samples", k, cm.Samples)
		}
		spec.Channels = append(spec.Channels, frame.ChannelSpec{Kind: k, Capacity: cm.Samples * k.SampleWidth()})
	}

	classIndex := make(map[string]int, len(m.Classes))
	for i, c := range m.Classes {
		classIndex[c] = i
	}
	rules := make([]rule, 0, len(m.Rules))
	for _, rm := range m.Rules {
		ci, ok := classIndex[rm.Class]
		if !ok || ci == 0 {
			return nil, errors.Wrapf(ErrInvalidManifest, "rule class %q", rm.Class)
		}
		k, err := channel.ParseKind(rm.Channel)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidManifest, err.Error())
		}
		if rm.Threshold <= 0 {
			return nil, errors.Wrapf(ErrInvalidManifest, "rule %s threshold %v", rm.Class, rm.Threshold)
		}
		rules = append(rules, rule{class: ci, kind: k, threshold: rm.Threshold})
	}

	interval := DefaultPredictionInterval
	if m.PredictionIntervalMs > 0 {
		interval = time.Duration(m.PredictionIntervalMs) * time.Millisecond
	}
	sens, _ := e.Sensitivity()
	e.model.Store(&model{spec: spec, rules: rules, sensitivity: sens, interval: interval})
	return spec, nil
}

// Sensitivity pads the manifest vector with 1 up to the class count
func (e *Threshold) Sensitivity() ([]float32, int) {
	n := len(e.manifest.Classes)
	res := make([]float32, n)
	for i := range res {
		res[i] = 1
		if i < len(e.manifest.Sensitivity) {
			res[i] = e.manifest.Sensitivity[i]
		}
	}
	return res, n
}

// PredictionInterval is zero until Init succeeds
func (e *Threshold) PredictionInterval() time.Duration {
	if md := e.model.Load(); md != nil {
		return md.interval
	}
	return 0
}

// Classes returns the class labels in index order
func (e *Threshold) Classes() []string {
	return e.manifest.Classes
}

func (e *Threshold) Classify(in *frame.Input) (int, []float32, error) {
	md := e.model.Load()
	if md == nil {
		return 0, nil, inference.ErrEngineNotReady
	}
	sens, n := md.sensitivity, len(md.sensitivity)
	scores := make([]float64, n)
	scores[0] = 1
	for _, r := range md.rules {
		cd, ok := in.Get(r.kind)
		if !ok {
			continue
		}
		scores[r.class] += RMS(cd) / r.threshold
	}

	class, best, sum := 0, -1.0, 0.0
	for i := range scores {
		scores[i] *= float64(sens[i])
		sum += scores[i]
		if scores[i] > best {
			class, best = i, scores[i]
		}
	}
	probs := make([]float32, n)
	if sum > 0 {
		for i, s := range scores {
			probs[i] = float32(s / sum)
		}
	}
	return class, probs, nil
}

// RMS returns the root mean square over every axis value of a window.
// Samples are little endian signed integers of width 1, 2 or 4 per value.
func RMS(cd frame.ChannelData) float64 {
	size := 2
	switch cd.Width {
	case 1:
		size = 1
	case 4:
		size = 4
	}
	count := len(cd.Data) / size
	if count == 0 {
		return 0
	}
	acc := 0.0
	for i := 0; i < count; i++ {
		var v float64
		switch size {
		case 1:
			v = float64(int8(cd.Data[i]))
		case 2:
			v = float64(int16(binary.LittleEndian.Uint16(cd.Data[2*i:])))
		case 4:
			v = float64(int32(binary.LittleEndian.Uint32(cd.Data[4*i:])))
		}
		acc += v * v
	}
	return math.Sqrt(acc / float64(count))
}

var _ inference.Engine = (*Threshold)(nil)

// Default is the engine used when no manifest is configured: motion against
// rest over the inertial channels
func Default() *Threshold {
	return New(Manifest{
		Name:                 "motion",
		PredictionIntervalMs: int(DefaultPredictionInterval / time.Millisecond),
		Classes:              []string{"idle", "motion", "rotation"},
		Channels: []ChannelManifest{
			{Kind: "accel", Samples: 100},
			{Kind: "gyro", Samples: 100},
			{Kind: "mag", Samples: 10},
		},
		Rules: []RuleManifest{
			{Class: "motion", Channel: "accel", Threshold: 4096},
			{Class: "rotation", Channel: "gyro", Threshold: 4096},
		},
	})
}
