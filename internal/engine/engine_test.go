package engine

import (
	"edgeml/internal/channel"
	"edgeml/internal/frame"
	"edgeml/internal/inference"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func int16Window(kind channel.Kind, values ...int16) frame.ChannelData {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}
	return frame.ChannelData{Kind: kind, Width: kind.SampleWidth(), Data: data}
}

func TestLoadManifest(t *testing.T) {
	e, err := Load("testdata/gesture.yaml")
	if err != nil {
		t.Fatal(err)
	}
	spec, err := e.Init()
	if err != nil {
		t.Fatal(err)
	}
	if spec.ClassCount != 3 || len(spec.Channels) != 2 {
		t.Fatalf("spec = %+v", spec)
	}
	if spec.Channels[0].Kind != channel.Accel || spec.Channels[0].Capacity != 24 {
		t.Errorf("accel channel = %+v", spec.Channels[0])
	}
	if spec.Channels[1].Kind != channel.Microphone || spec.Channels[1].Capacity != 16 {
		t.Errorf("microphone channel = %+v", spec.Channels[1])
	}
	if e.PredictionInterval() != 250*time.Millisecond {
		t.Errorf("interval = %v", e.PredictionInterval())
	}
	sens, n := e.Sensitivity()
	if n != 3 || sens[2] != 1 {
		t.Errorf("sensitivity = %v, %d", sens, n)
	}
	if e.Name() != "gesture" || len(e.Classes()) != 3 {
		t.Errorf("name %q classes %v", e.Name(), e.Classes())
	}
}

func TestInitRejectsBadManifest(t *testing.T) {
	cases := []struct {
		name string
		m    Manifest
	}{
		{"no classes", Manifest{Channels: []ChannelManifest{{"accel", 4}}}},
		{"no channels", Manifest{Classes: []string{"idle"}}},
		{"unknown kind", Manifest{Classes: []string{"idle"}, Channels: []ChannelManifest{{"sonar", 4}}}},
		{"zero samples", Manifest{Classes: []string{"idle"}, Channels: []ChannelManifest{{"accel", 0}}}},
		{"rule on rest class", Manifest{
			Classes:  []string{"idle", "shake"},
			Channels: []ChannelManifest{{"accel", 4}},
			Rules:    []RuleManifest{{"idle", "accel", 10}},
		}},
		{"rule unknown class", Manifest{
			Classes:  []string{"idle", "shake"},
			Channels: []ChannelManifest{{"accel", 4}},
			Rules:    []RuleManifest{{"wave", "accel", 10}},
		}},
		{"zero threshold", Manifest{
			Classes:  []string{"idle", "shake"},
			Channels: []ChannelManifest{{"accel", 4}},
			Rules:    []RuleManifest{{"shake", "accel", 0}},
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(c.m).Init(); !errors.Is(err, ErrInvalidManifest) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("classes: [")); !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("err = %v", err)
	}
}

func TestRMS(t *testing.T) {
	cases := []struct {
		name string
		cd   frame.ChannelData
		want float64
	}{
		{"empty", frame.ChannelData{Width: 2}, 0},
		{"int16", int16Window(channel.Microphone, 3, -4, 3, -4), math.Sqrt(12.5)},
		{"axes", int16Window(channel.Accel, 100, -100, 100), 100},
		{"int8", frame.ChannelData{Width: 1, Data: []byte{0xFE, 2}}, 2},
		{"int32", frame.ChannelData{Width: 4, Data: []byte{0x10, 0x27, 0, 0}}, 10000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := RMS(c.cd); math.Abs(got-c.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, c.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	e, err := Load("testdata/gesture.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Init(); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		accel int16
		mic   int16
		want  int
	}{
		{"quiet", 10, 10, 0},
		{"shaking", 3000, 10, 1},
		{"loud", 10, 8000, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := &frame.Input{Channels: []frame.ChannelData{
				int16Window(channel.Accel, c.accel, c.accel, c.accel),
				int16Window(channel.Microphone, c.mic, -c.mic),
			}}
			class, probs, err := e.Classify(in)
			if err != nil {
				t.Fatal(err)
			}
			if class != c.want {
				t.Errorf("class = %d (%v), want %d", class, probs, c.want)
			}
			sum := float32(0)
			for _, p := range probs {
				sum += p
			}
			if len(probs) != 3 || math.Abs(float64(sum-1)) > 1e-5 {
				t.Errorf("probs = %v", probs)
			}
		})
	}
}

func TestClassifyBeforeInit(t *testing.T) {
	e := New(Manifest{Classes: []string{"idle"}})
	if _, _, err := e.Classify(&frame.Input{}); !errors.Is(err, inference.ErrEngineNotReady) {
		t.Errorf("err = %v", err)
	}
}

func TestPredictionIntervalOverride(t *testing.T) {
	e := New(Manifest{Classes: []string{"idle"}, Channels: []ChannelManifest{{"accel", 4}}})
	e.SetPredictionInterval(50 * time.Millisecond)
	if _, err := e.Init(); err != nil {
		t.Fatal(err)
	}
	if e.PredictionInterval() != 50*time.Millisecond {
		t.Errorf("interval = %v", e.PredictionInterval())
	}

	d := New(Manifest{Classes: []string{"idle"}, Channels: []ChannelManifest{{"accel", 4}}})
	if _, err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if d.PredictionInterval() != DefaultPredictionInterval {
		t.Errorf("default interval = %v", d.PredictionInterval())
	}
}

func TestDefaultEngine(t *testing.T) {
	e := Default()
	spec, err := e.Init()
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Channels) != 3 || spec.ClassCount != 3 {
		t.Errorf("spec = %+v", spec)
	}
}

func TestReinitWhileClassifying(t *testing.T) {
	e := Default()
	if _, err := e.Init(); err != nil {
		t.Fatal(err)
	}
	in := &frame.Input{Channels: []frame.ChannelData{
		int16Window(channel.Accel, 9000, -9000, 9000),
		int16Window(channel.Gyro, 1, 1, 1),
	}}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				class, probs, err := e.Classify(in)
				if err != nil || class != 1 || len(probs) != 3 {
					t.Errorf("classify = %d %v %v", class, probs, err)
					return
				}
				if e.PredictionInterval() != DefaultPredictionInterval {
					t.Errorf("interval = %v", e.PredictionInterval())
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if _, err := e.Init(); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}
