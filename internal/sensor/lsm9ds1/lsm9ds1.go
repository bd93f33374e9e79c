package lsm9ds1

import (
	"edgeml/internal/bus"
	"edgeml/internal/channel"
	"edgeml/internal/sensor"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrWrongDevice = errors.New("unexpected WHO_AM_I value")

// DefaultAccel and DefaultGyro are the setups the models are trained with.
// The magnetometer runs at most at 80Hz, so the 100Hz of DefaultMag is
// applied as 80Hz; see Mag.Applied.
var (
	DefaultAccel = sensor.Setup{FullScale: 16, ODR: 952, FIFO: true}
	DefaultGyro  = sensor.Setup{FullScale: 2000, ODR: 952, FIFO: true}
	DefaultMag   = sensor.Setup{FullScale: 16, ODR: 100, FIFO: false}
)

// imuLayout is the accel/gyro FIFO record: one accelerometer sample followed
// by one gyroscope sample, 3 axes of int16 each
var imuLayout = sensor.Layout{
	{Kind: channel.Accel, Width: channel.Accel.SampleWidth()},
	{Kind: channel.Gyro, Width: channel.Gyro.SampleWidth()},
}

// IMU is the accelerometer and gyroscope of an LSM9DS1 sharing one FIFO
type IMU struct {
	bus     bus.Bus
	addr    uint8
	accel   sensor.Setup
	gyro    sensor.Setup
	enabled bool
}

func NewIMU(b bus.Bus, addr uint8, accel, gyro sensor.Setup) *IMU {
	if addr == 0 {
		addr = AddrAccelGyro
	}
	return &IMU{bus: b, addr: addr, accel: accel, gyro: gyro}
}

func (d *IMU) Name() string {
	return "lsm9ds1"
}

func (d *IMU) Layout() sensor.Layout {
	return imuLayout
}

// ProbeIMU reports whether an LSM9DS1 accel/gyro answers at addr
func ProbeIMU(b bus.Bus, addr uint8) (bool, error) {
	return bus.Probe(b, addr, regWhoAmI, whoAmIAccelGyro)
}

// Init checks the chip identity and enables register auto-increment with
// block data update
func (d *IMU) Init() error {
	ok, err := ProbeIMU(d.bus, d.addr)
	if err != nil {
		return errors.Wrap(err, "lsm9ds1 who_am_i")
	}
	if !ok {
		return errors.Wrapf(ErrWrongDevice, "lsm9ds1 at 0x%02x", d.addr)
	}
	return d.bus.WriteReg(d.addr, regCtrl8, ctrl8BDU|ctrl8IfInc)
}

// Enable powers the accelerometer and gyroscope requested by kinds and
// starts the FIFO in continuous mode when either setup asks for it
func (d *IMU) Enable(kinds []channel.Kind) error {
	var accelOn, gyroOn bool
	for _, k := range kinds {
		switch k {
		case channel.Accel:
			accelOn = true
		case channel.Gyro:
			gyroOn = true
		}
	}

	fifo := false
	if accelOn {
		v := lookup(odrXL, d.accel.ODR)<<5 | lookup(fsXL, d.accel.FullScale)<<3
		if err := d.bus.WriteReg(d.addr, regCtrl6XL, v); err != nil {
			return errors.Wrap(err, "lsm9ds1 accel enable")
		}
		fifo = fifo || d.accel.FIFO
		log.Infof("lsm9ds1 accel enabled: %vg @ %vHz, fifo=%v", d.accel.FullScale, d.accel.ODR, d.accel.FIFO)
	}
	if gyroOn {
		v := lookup(odrG, d.gyro.ODR)<<5 | lookup(fsG, d.gyro.FullScale)<<3
		if err := d.bus.WriteReg(d.addr, regCtrl1G, v); err != nil {
			return errors.Wrap(err, "lsm9ds1 gyro enable")
		}
		fifo = fifo || d.gyro.FIFO
		log.Infof("lsm9ds1 gyro enabled: %vdps @ %vHz, fifo=%v", d.gyro.FullScale, d.gyro.ODR, d.gyro.FIFO)
	}
	if fifo {
		if err := d.bus.WriteReg(d.addr, regCtrl9, ctrl9FIFOEn); err != nil {
			return errors.Wrap(err, "lsm9ds1 fifo enable")
		}
		if err := d.bus.WriteReg(d.addr, regFIFOCtrl, fifoModeCont); err != nil {
			return errors.Wrap(err, "lsm9ds1 fifo mode")
		}
	}
	d.enabled = accelOn || gyroOn
	return nil
}

// Pending reads FIFO_SRC: the unread sample-group count and the overrun flag
func (d *IMU) Pending() (sensor.Status, error) {
	if !d.enabled {
		return sensor.Status{}, sensor.ErrNotEnabled
	}
	var src [1]byte
	if err := d.bus.ReadReg(d.addr, regFIFOSrc, src[:]); err != nil {
		return sensor.Status{}, err
	}
	return sensor.Status{
		Groups:  int(src[0] & fifoSrcCount),
		Overrun: src[0]&fifoSrcOverrun != 0,
	}, nil
}

// ReadGroups pops n records from the FIFO. Each record is one accelerometer
// read followed by one gyroscope read.
func (d *IMU) ReadGroups(dst []byte, n int) error {
	if !d.enabled {
		return sensor.ErrNotEnabled
	}
	aw := imuLayout[0].Width
	gw := imuLayout[1].Width
	off := 0
	for i := 0; i < n; i++ {
		if err := d.bus.ReadReg(d.addr, regOutXXL, dst[off:off+aw]); err != nil {
			return errors.Wrapf(err, "lsm9ds1 accel group %d", i)
		}
		off += aw
		if err := d.bus.ReadReg(d.addr, regOutXG, dst[off:off+gw]); err != nil {
			return errors.Wrapf(err, "lsm9ds1 gyro group %d", i)
		}
		off += gw
	}
	return nil
}

// Close powers the accelerometer and gyroscope down
func (d *IMU) Close() error {
	if !d.enabled {
		return nil
	}
	d.enabled = false
	if err := d.bus.WriteReg(d.addr, regCtrl1G, 0); err != nil {
		return err
	}
	return d.bus.WriteReg(d.addr, regCtrl6XL, 0)
}

var _ sensor.Device = (*IMU)(nil)
