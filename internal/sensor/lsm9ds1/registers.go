package lsm9ds1

// Register map of the LSM9DS1 inertial module. The accelerometer and
// gyroscope share one i2c address and one FIFO; the magnetometer has its own.
const (
	AddrAccelGyro = 0x6B
	AddrMag       = 0x1E

	regWhoAmI = 0x0F

	whoAmIAccelGyro = 0x68
	whoAmIMag       = 0x3D

	regCtrl1G    = 0x10
	regOutXG     = 0x18
	regCtrl6XL   = 0x20
	regCtrl8     = 0x22
	regCtrl9     = 0x23
	regOutXXL    = 0x28
	regFIFOCtrl  = 0x2E
	regFIFOSrc   = 0x2F
	regCtrl1M    = 0x20
	regCtrl2M    = 0x21
	regCtrl3M    = 0x22
	regCtrl4M    = 0x23
	regStatusM   = 0x27
	regOutXLM    = 0x28
	ctrl8BDU     = 0x40
	ctrl8IfInc   = 0x04
	ctrl9FIFOEn  = 0x02
	fifoModeCont = 0xC0

	fifoSrcCount   = 0x3F
	fifoSrcOverrun = 0x40

	statusMZYXDA = 0x08
	statusMZYXOR = 0x80

	ctrl1MTempComp = 0x80
	ctrl1MHighPerf = 0x60
	ctrl4MHighPerf = 0x08
)

// FIFODepth is the number of sample-groups the accel/gyro FIFO holds
const FIFODepth = 32

type code struct {
	value float32
	bits  uint8
}

// odrXL maps accelerometer output data rates (Hz) to CTRL_REG6_XL ODR bits
var odrXL = []code{{10, 1}, {50, 2}, {119, 3}, {238, 4}, {476, 5}, {952, 6}}

// odrG maps gyroscope output data rates (Hz) to CTRL_REG1_G ODR bits
var odrG = []code{{14.9, 1}, {59.5, 2}, {119, 3}, {238, 4}, {476, 5}, {952, 6}}

// fsXL maps accelerometer full scale (g) to FS_XL bits
var fsXL = []code{{2, 0}, {4, 2}, {8, 3}, {16, 1}}

// fsG maps gyroscope full scale (dps) to FS_G bits
var fsG = []code{{245, 0}, {500, 1}, {2000, 3}}

// odrM maps magnetometer output data rates (Hz) to CTRL_REG1_M DO bits
var odrM = []code{{0.625, 0}, {1.25, 1}, {2.5, 2}, {5, 3}, {10, 4}, {20, 5}, {40, 6}, {80, 7}}

// fsM maps magnetometer full scale (gauss) to CTRL_REG2_M FS bits
var fsM = []code{{4, 0}, {8, 1}, {12, 2}, {16, 3}}

// pick returns the largest table entry not above v, or the smallest entry.
// Tables are sorted by value.
func pick(table []code, v float32) code {
	res := table[0]
	for _, c := range table {
		if c.value <= v {
			res = c
		}
	}
	return res
}

func lookup(table []code, v float32) uint8 {
	return pick(table, v).bits
}
