package lsm9ds1

import (
	"edgeml/internal/bus"
	"edgeml/internal/channel"
	"edgeml/internal/sensor"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var magLayout = sensor.Layout{
	{Kind: channel.Mag, Width: channel.Mag.SampleWidth()},
}

// Mag is the LSM9DS1 magnetometer. It has no FIFO: at most one new sample is
// pending, signalled by the data-ready bit.
type Mag struct {
	bus     bus.Bus
	addr    uint8
	setup   sensor.Setup
	enabled bool
}

func NewMag(b bus.Bus, addr uint8, setup sensor.Setup) *Mag {
	if addr == 0 {
		addr = AddrMag
	}
	return &Mag{bus: b, addr: addr, setup: setup}
}

func (d *Mag) Name() string {
	return "lsm9ds1-mag"
}

func (d *Mag) Layout() sensor.Layout {
	return magLayout
}

// ProbeMag reports whether an LSM9DS1 magnetometer answers at addr
func ProbeMag(b bus.Bus, addr uint8) (bool, error) {
	return bus.Probe(b, addr, regWhoAmI, whoAmIMag)
}

func (d *Mag) Init() error {
	ok, err := ProbeMag(d.bus, d.addr)
	if err != nil {
		return errors.Wrap(err, "lsm9ds1 mag who_am_i")
	}
	if !ok {
		return errors.Wrapf(ErrWrongDevice, "lsm9ds1 mag at 0x%02x", d.addr)
	}
	return nil
}

// Enable starts continuous conversion in high performance mode
func (d *Mag) Enable(kinds []channel.Kind) error {
	want := false
	for _, k := range kinds {
		if k == channel.Mag {
			want = true
		}
	}
	if !want {
		return nil
	}
	odr, fs := pick(odrM, d.setup.ODR), pick(fsM, d.setup.FullScale)
	writes := []struct {
		reg uint8
		val uint8
	}{
		{regCtrl1M, ctrl1MTempComp | ctrl1MHighPerf | odr.bits<<2},
		{regCtrl2M, fs.bits << 5},
		{regCtrl3M, 0x00},
		{regCtrl4M, ctrl4MHighPerf},
	}
	for _, w := range writes {
		if err := d.bus.WriteReg(d.addr, w.reg, w.val); err != nil {
			return errors.Wrapf(err, "lsm9ds1 mag write 0x%02x", w.reg)
		}
	}
	d.enabled = true
	if odr.value != d.setup.ODR || fs.value != d.setup.FullScale {
		log.Warnf("lsm9ds1 mag: requested %vgauss @ %vHz, applied %vgauss @ %vHz",
			d.setup.FullScale, d.setup.ODR, fs.value, odr.value)
	}
	log.Infof("lsm9ds1 mag enabled: %vgauss @ %vHz", fs.value, odr.value)
	return nil
}

// Applied returns the setup the device is programmed with: the requested
// rate and range rounded down to the nearest supported values
func (d *Mag) Applied() sensor.Setup {
	return sensor.Setup{
		FullScale: pick(fsM, d.setup.FullScale).value,
		ODR:       pick(odrM, d.setup.ODR).value,
		FIFO:      false,
	}
}

func (d *Mag) Pending() (sensor.Status, error) {
	if !d.enabled {
		return sensor.Status{}, sensor.ErrNotEnabled
	}
	var status [1]byte
	if err := d.bus.ReadReg(d.addr, regStatusM, status[:]); err != nil {
		return sensor.Status{}, err
	}
	st := sensor.Status{Overrun: status[0]&statusMZYXOR != 0}
	if status[0]&statusMZYXDA != 0 {
		st.Groups = 1
	}
	return st, nil
}

func (d *Mag) ReadGroups(dst []byte, n int) error {
	if !d.enabled {
		return sensor.ErrNotEnabled
	}
	w := magLayout.GroupWidth()
	for i := 0; i < n; i++ {
		if err := d.bus.ReadReg(d.addr, regOutXLM, dst[i*w:(i+1)*w]); err != nil {
			return errors.Wrap(err, "lsm9ds1 mag read")
		}
	}
	return nil
}

// Close switches the magnetometer to power-down mode
func (d *Mag) Close() error {
	if !d.enabled {
		return nil
	}
	d.enabled = false
	return d.bus.WriteReg(d.addr, regCtrl3M, 0x03)
}

var _ sensor.Device = (*Mag)(nil)
