package inference

import (
	"edgeml/internal/channel"
	"edgeml/internal/frame"
	"errors"
	"testing"
	"time"
)

type fakeEngine struct {
	spec    *frame.Spec
	initErr error
	class   int
	probs   []float32
	seen    []byte
	calls   int
}

func (e *fakeEngine) Name() string                      { return "fake" }
func (e *fakeEngine) Init() (*frame.Spec, error)        { return e.spec, e.initErr }
func (e *fakeEngine) Sensitivity() ([]float32, int)     { return []float32{0.5, 0.5}, 2 }
func (e *fakeEngine) PredictionInterval() time.Duration { return 100 * time.Millisecond }

func (e *fakeEngine) Classify(in *frame.Input) (int, []float32, error) {
	e.calls++
	cd, _ := in.Get(channel.Microphone)
	e.seen = append([]byte(nil), cd.Data...)
	return e.class, e.probs, nil
}

func micSpec() *frame.Spec {
	return &frame.Spec{
		Channels:   []frame.ChannelSpec{{Kind: channel.Microphone, Capacity: 8}},
		ClassCount: 2,
	}
}

func TestResultString(t *testing.T) {
	cases := []struct {
		r    Result
		want string
	}{
		{Result{Class: 1, Probs: []float32{0.1, 0.9}}, "PRED: 1, 0.10, 0.90"},
		{Result{Class: 0, Probs: []float32{1}}, "PRED: 0, 1.00"},
		{Result{Class: 2}, "PRED: 2"},
		{Result{Class: 0, Probs: []float32{0.125, 0.875}}, "PRED: 0, 0.12, 0.88"},
	}
	for _, c := range cases {
		if got := c.r.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestSetupNotReady(t *testing.T) {
	cases := []struct {
		name string
		e    *fakeEngine
	}{
		{"init error", &fakeEngine{initErr: errors.New("model missing")}},
		{"nil spec", &fakeEngine{}},
		{"no channels", &fakeEngine{spec: &frame.Spec{ClassCount: 2}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f, err := Setup(c.e)
			if !errors.Is(err, ErrEngineNotReady) {
				t.Fatalf("err = %v", err)
			}
			if f != nil {
				t.Error("no frame expected")
			}
		})
	}
}

func TestAdapterClassify(t *testing.T) {
	e := &fakeEngine{spec: micSpec(), class: 1, probs: []float32{0.25, 0.75}}
	f, err := Setup(e)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Append(channel.Microphone, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}); err != nil {
		t.Fatal(err)
	}

	a := NewAdapter(e, f)
	res, err := a.Classify()
	if err != nil {
		t.Fatal(err)
	}
	if res.Class != 1 || len(res.Probs) != 2 || res.Probs[1] != 0.75 {
		t.Errorf("result = %+v", res)
	}
	if string(e.seen) != string([]byte{3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("engine saw %v", e.seen)
	}
	if p := f.Probabilities(); p[0] != 0.25 {
		t.Errorf("frame probabilities = %v", p)
	}
	if res.String() != "PRED: 1, 0.25, 0.75" {
		t.Errorf("line = %q", res.String())
	}
}

func TestAdapterWithoutEngine(t *testing.T) {
	a := NewAdapter(nil, nil)
	if _, err := a.Classify(); !errors.Is(err, ErrEngineNotReady) {
		t.Errorf("err = %v", err)
	}
}
