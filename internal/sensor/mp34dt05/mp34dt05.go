package mp34dt05

import (
	"edgeml/internal/channel"
	"edgeml/internal/pcm"
	"edgeml/internal/sensor"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultSetup is 16 kHz mono PCM at full 16-bit scale
var DefaultSetup = sensor.Setup{FullScale: 32768, ODR: 16000, FIFO: false}

// SamplesPerTick is the PCM block taken each 10 ms tick at 16 kHz
const SamplesPerTick = 160

var layout = sensor.Layout{
	{Kind: channel.Microphone, Width: channel.Microphone.SampleWidth()},
}

// Microphone is the MP34DT05 PDM microphone. The PDM front end delivers PCM
// into a Source; one sample-group is one PCM sample.
type Microphone struct {
	src     pcm.Source
	setup   sensor.Setup
	enabled bool
}

func New(src pcm.Source, setup sensor.Setup) *Microphone {
	return &Microphone{src: src, setup: setup}
}

func (d *Microphone) Name() string {
	return "mp34dt05"
}

func (d *Microphone) Layout() sensor.Layout {
	return layout
}

func (d *Microphone) Init() error {
	if d.src == nil {
		return errors.New("mp34dt05: no pcm source")
	}
	return nil
}

func (d *Microphone) Enable(kinds []channel.Kind) error {
	for _, k := range kinds {
		if k == channel.Microphone {
			d.enabled = true
			log.Infof("mp34dt05 enabled: %vHz pcm", d.setup.ODR)
		}
	}
	return nil
}

func (d *Microphone) Pending() (sensor.Status, error) {
	if !d.enabled {
		return sensor.Status{}, sensor.ErrNotEnabled
	}
	return sensor.Status{
		Groups:  d.src.Available(),
		Overrun: d.src.Overrun(),
	}, nil
}

func (d *Microphone) ReadGroups(dst []byte, n int) error {
	if !d.enabled {
		return sensor.ErrNotEnabled
	}
	return d.src.Read(dst[:n*pcm.SampleWidth])
}

func (d *Microphone) Close() error {
	d.enabled = false
	if d.src == nil {
		return nil
	}
	return d.src.Close()
}

var _ sensor.Device = (*Microphone)(nil)
