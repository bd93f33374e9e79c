package pipeline

import (
	"edgeml/internal/bus"
	"edgeml/internal/channel"
	"edgeml/internal/config"
	"edgeml/internal/drainer"
	"edgeml/internal/pcm"
	"edgeml/internal/sensor"
	"edgeml/internal/sensor/lsm9ds1"
	"edgeml/internal/sensor/mp34dt05"
	"edgeml/internal/sensor/sim"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const simFIFODepth = 32
const simDefaultODR = 100

// deviceSet owns the devices of one run and whatever they sit on
type deviceSet struct {
	devices  []sensor.Device
	drainers []*drainer.Drainer
	closers  []func() error
}

func (s *deviceSet) add(dev sensor.Device, maxBurst, maxChunk int) {
	s.devices = append(s.devices, dev)
	s.drainers = append(s.drainers, drainer.New(dev, maxBurst, maxChunk))
}

// Close powers devices down, then releases buses and streams
func (s *deviceSet) Close() error {
	var first error
	for _, d := range s.devices {
		if err := d.Close(); err != nil {
			log.Warnf("close %s: %v", d.Name(), err)
			if first == nil {
				first = err
			}
		}
	}
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.devices, s.drainers, s.closers = nil, nil, nil
	return first
}

func wants(kinds []channel.Kind, layout sensor.Layout) []channel.Kind {
	var res []channel.Kind
	for _, k := range kinds {
		if layout.Has(k) {
			res = append(res, k)
		}
	}
	return res
}

func has(kinds []channel.Kind, ks ...channel.Kind) bool {
	for _, k := range kinds {
		for _, want := range ks {
			if k == want {
				return true
			}
		}
	}
	return false
}

// openDevices creates the devices serving kinds, initializes and enables
// them. Kinds no device can serve are reported and left empty.
func openDevices(opt *config.EdgeMLOpt, kinds []channel.Kind) (*deviceSet, error) {
	set := &deviceSet{}
	var err error
	switch opt.Bus.Backend {
	case config.BackendSim:
		buildSimDevices(set, opt, kinds)
	default:
		err = buildPeriphDevices(set, opt, kinds)
	}
	if err != nil {
		_ = set.Close()
		return nil, err
	}
	set.enable(kinds)
	return set, nil
}

// enable initializes every device and enables the kinds it serves. A device
// that fails is closed and dropped; the others keep running without it.
func (s *deviceSet) enable(kinds []channel.Kind) {
	served := map[channel.Kind]bool{}
	devices, drainers := s.devices[:0], s.drainers[:0]
	for i, dev := range s.devices {
		enabled := wants(kinds, dev.Layout())
		err := dev.Init()
		if err != nil {
			err = errors.Wrapf(err, "init %s", dev.Name())
		} else if err = dev.Enable(enabled); err != nil {
			err = errors.Wrapf(err, "enable %s", dev.Name())
		}
		if err != nil {
			log.Errorf("%v, device dropped", err)
			if cerr := dev.Close(); cerr != nil {
				log.Debugf("close %s: %v", dev.Name(), cerr)
			}
			continue
		}
		for _, k := range enabled {
			served[k] = true
		}
		devices, drainers = append(devices, dev), append(drainers, s.drainers[i])
		log.Infof("device %s enabled for %v", dev.Name(), enabled)
	}
	s.devices, s.drainers = devices, drainers
	for _, k := range kinds {
		if !served[k] {
			log.Warnf("no device provides channel %s, its buffer stays empty", k)
		}
	}
}

func buildPeriphDevices(set *deviceSet, opt *config.EdgeMLOpt, kinds []channel.Kind) error {
	dev := &opt.Devices
	needBus := (dev.IMU.Enabled && has(kinds, channel.Accel, channel.Gyro)) ||
		(dev.Mag.Enabled && has(kinds, channel.Mag))
	if needBus {
		b, err := bus.Open(opt.Bus.Name, opt.Bus.SpeedKHz, opt.Bus.MaxTransfer)
		if err != nil {
			return err
		}
		set.closers = append(set.closers, b.Close)

		if dev.IMU.Enabled && has(kinds, channel.Accel, channel.Gyro) {
			imu := lsm9ds1.NewIMU(b, uint8(dev.IMU.Address),
				sensor.Setup{FullScale: dev.IMU.AccelFullScale, ODR: dev.IMU.AccelODR, FIFO: true},
				sensor.Setup{FullScale: dev.IMU.GyroFullScale, ODR: dev.IMU.GyroODR, FIFO: true})
			set.add(imu, dev.IMU.MaxBurst, dev.IMU.MaxChunk)
		}
		if dev.Mag.Enabled && has(kinds, channel.Mag) {
			mag := lsm9ds1.NewMag(b, uint8(dev.Mag.Address), sensor.Setup{FullScale: dev.Mag.FullScale, ODR: dev.Mag.ODR})
			set.add(mag, 1, 1)
		}
	}

	if dev.Microphone.Enabled && has(kinds, channel.Microphone) {
		stream, err := pcm.OpenStream(dev.Microphone.Source, 4*dev.Microphone.MaxBurst)
		if err != nil {
			return err
		}
		set.closers = append(set.closers, stream.Close)
		mic := mp34dt05.New(stream, sensor.Setup{FullScale: mp34dt05.DefaultSetup.FullScale, ODR: float32(dev.Microphone.SampleRate)})
		set.add(mic, dev.Microphone.MaxBurst, dev.Microphone.MaxBurst)
	}
	return nil
}

// buildSimDevices mirrors the hardware set with synthetic devices and adds
// one for every other kind the engine asks for
func buildSimDevices(set *deviceSet, opt *config.EdgeMLOpt, kinds []channel.Kind) {
	dev := &opt.Devices
	covered := map[channel.Kind]bool{}
	if dev.IMU.Enabled && has(kinds, channel.Accel, channel.Gyro) {
		set.add(sim.New("sim-imu", []channel.Kind{channel.Accel, channel.Gyro}, float64(dev.IMU.AccelODR), lsm9ds1.FIFODepth),
			dev.IMU.MaxBurst, dev.IMU.MaxChunk)
		covered[channel.Accel], covered[channel.Gyro] = true, true
	}
	if dev.Mag.Enabled && has(kinds, channel.Mag) {
		set.add(sim.New("sim-mag", []channel.Kind{channel.Mag}, float64(dev.Mag.ODR), 1), 1, 1)
		covered[channel.Mag] = true
	}
	if dev.Microphone.Enabled && has(kinds, channel.Microphone) {
		burst := dev.Microphone.MaxBurst
		set.add(sim.New("sim-mic", []channel.Kind{channel.Microphone}, float64(dev.Microphone.SampleRate), 4*burst), burst, burst)
		covered[channel.Microphone] = true
	}
	for _, k := range kinds {
		if covered[k] {
			continue
		}
		set.add(sim.New(fmt.Sprintf("sim-%s", k), []channel.Kind{k}, simDefaultODR, simFIFODepth), simFIFODepth, simFIFODepth)
	}
}

// probeDevices checks the WHO_AM_I of every configured bus device
func probeDevices(opt *config.EdgeMLOpt) ([]string, error) {
	if opt.Bus.Backend == config.BackendSim {
		return []string{"sim backend: synthetic devices, nothing to probe"}, nil
	}
	b, err := bus.Open(opt.Bus.Name, opt.Bus.SpeedKHz, opt.Bus.MaxTransfer)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	return probeBus(b, opt)
}

func probeBus(b bus.Bus, opt *config.EdgeMLOpt) ([]string, error) {
	var res []string
	found := 0
	check := func(name string, addr int, probe func(bus.Bus, uint8) (bool, error)) {
		ok, err := probe(b, uint8(addr))
		switch {
		case err != nil:
			res = append(res, fmt.Sprintf("%s @0x%02x: %v", name, addr, err))
		case ok:
			found++
			res = append(res, fmt.Sprintf("%s @0x%02x: ok", name, addr))
		default:
			res = append(res, fmt.Sprintf("%s @0x%02x: unexpected WHO_AM_I", name, addr))
		}
	}
	if opt.Devices.IMU.Enabled {
		check("lsm9ds1", opt.Devices.IMU.Address, lsm9ds1.ProbeIMU)
	}
	if opt.Devices.Mag.Enabled {
		check("lsm9ds1-mag", opt.Devices.Mag.Address, lsm9ds1.ProbeMag)
	}
	if found == 0 {
		return res, errors.New("no valid devices found")
	}
	return res, nil
}
