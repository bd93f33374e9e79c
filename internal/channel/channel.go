package channel

import "fmt"

// Kind identifies a physical sensor stream. The order matches the sensor type
// list reported by the inference engine and must not be changed.
type Kind uint8

const (
	None Kind = iota
	Accel
	Gyro
	Mag
	Pressure
	Temperature
	Humidity
	Microphone
	AccelLowPower
	AccelHighSensitive
	TemperatureExt1
	Proximity
	Ambient
	Light
	kindMax
)

const AxisNumber = 3

var kindNames = [...]string{
	None:               "none",
	Accel:              "accel",
	Gyro:               "gyro",
	Mag:                "mag",
	Pressure:           "pressure",
	Temperature:        "temperature",
	Humidity:           "humidity",
	Microphone:         "microphone",
	AccelLowPower:      "accel_lowpower",
	AccelHighSensitive: "accel_highsensitive",
	TemperatureExt1:    "temperature_ext1",
	Proximity:          "proximity",
	Ambient:            "ambient",
	Light:              "light",
}

// sampleWidths holds the bytes of one sample per kind
var sampleWidths = [...]int{
	None:               0,
	Accel:              2 * AxisNumber,
	Gyro:               2 * AxisNumber,
	Mag:                2 * AxisNumber,
	Pressure:           4,
	Temperature:        2,
	Humidity:           2,
	Microphone:         2,
	AccelLowPower:      2 * AxisNumber,
	AccelHighSensitive: 2 * AxisNumber,
	TemperatureExt1:    2,
	Proximity:          1,
	Ambient:            2,
	Light:              2,
}

func (k Kind) String() string {
	if k < kindMax {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k names a real sensor stream
func (k Kind) Valid() bool {
	return k > None && k < kindMax
}

// SampleWidth returns the fixed size in bytes of one sample of kind k, or 0
// for unknown kinds.
func (k Kind) SampleWidth() int {
	if k < kindMax {
		return sampleWidths[k]
	}
	return 0
}

// ParseKind resolves a kind from its name
func ParseKind(name string) (Kind, error) {
	for k := Accel; k < kindMax; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown channel kind: %q", name)
}

// Kinds lists every valid kind in engine order
func Kinds() []Kind {
	res := make([]Kind, 0, kindMax-1)
	for k := Accel; k < kindMax; k++ {
		res = append(res, k)
	}
	return res
}

// Channel describes one enabled sensor stream. It is created once when the
// engine reports its requirements and never changes afterwards.
type Channel struct {
	Kind    Kind
	Width   int
	Enabled bool
}

func New(kind Kind) Channel {
	return Channel{
		Kind:    kind,
		Width:   kind.SampleWidth(),
		Enabled: kind.Valid(),
	}
}

func (c Channel) String() string {
	return fmt.Sprintf("%s(%dB)", c.Kind, c.Width)
}
