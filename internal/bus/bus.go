package bus

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"sync"
	"sync/atomic"
)

// DefaultMaxTransfer is the largest single register read, in bytes
const DefaultMaxTransfer = 192

var (
	ErrTransferTooLarge = errors.New("bus transfer exceeds maximum size")
	ErrClosed           = errors.New("bus closed")
)

// Bus is the synchronous register access a sensor device needs
type Bus interface {
	// ReadReg reads len(data) bytes starting at register reg of device addr
	ReadReg(addr uint8, reg uint8, data []byte) error
	// WriteReg writes data starting at register reg of device addr
	WriteReg(addr uint8, reg uint8, data ...byte) error
	// MaxTransfer returns the largest accepted transfer in bytes
	MaxTransfer() int
}

// Stats counts bus traffic
type Stats struct {
	Transfers uint64
	Faults    uint64
}

// I2C is a Bus over a periph i2c bus
type I2C struct {
	lock        sync.Mutex
	bus         i2c.Bus
	closer      func() error
	maxTransfer int
	transfers   atomic.Uint64
	faults      atomic.Uint64
}

// New wraps an already opened periph bus
func New(b i2c.Bus, maxTransfer int) *I2C {
	if maxTransfer <= 0 {
		maxTransfer = DefaultMaxTransfer
	}
	return &I2C{bus: b, maxTransfer: maxTransfer}
}

// Open initializes the host drivers and opens the named i2c bus. An empty
// name selects the first bus found.
func Open(name string, speedKHz int, maxTransfer int) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	if speedKHz > 0 {
		if err := bc.SetSpeed(physic.Frequency(speedKHz) * physic.KiloHertz); err != nil {
			log.Warnf("i2c bus %s: cannot set speed %dkHz: %v", bc, speedKHz, err)
		}
	}
	b := New(bc, maxTransfer)
	b.closer = bc.Close
	log.Infof("opened i2c bus %s, max transfer %d bytes", bc, b.maxTransfer)
	return b, nil
}

func (b *I2C) ReadReg(addr uint8, reg uint8, data []byte) error {
	if len(data) > b.maxTransfer {
		return errors.Wrapf(ErrTransferTooLarge, "read %d bytes from 0x%02x:0x%02x", len(data), addr, reg)
	}
	return b.tx(addr, []byte{reg}, data)
}

func (b *I2C) WriteReg(addr uint8, reg uint8, data ...byte) error {
	if len(data) > b.maxTransfer {
		return errors.Wrapf(ErrTransferTooLarge, "write %d bytes to 0x%02x:0x%02x", len(data), addr, reg)
	}
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return b.tx(addr, w, nil)
}

func (b *I2C) tx(addr uint8, w, r []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.bus == nil {
		return ErrClosed
	}
	b.transfers.Add(1)
	if err := b.bus.Tx(uint16(addr), w, r); err != nil {
		b.faults.Add(1)
		return errors.Wrapf(err, "i2c tx 0x%02x reg 0x%02x", addr, w[0])
	}
	return nil
}

func (b *I2C) MaxTransfer() int {
	return b.maxTransfer
}

func (b *I2C) Stats() Stats {
	return Stats{Transfers: b.transfers.Load(), Faults: b.faults.Load()}
}

func (b *I2C) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.bus == nil {
		return "i2c(closed)"
	}
	return b.bus.String()
}

// Close releases the bus if it was opened by Open
func (b *I2C) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.bus == nil {
		return nil
	}
	b.bus = nil
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Probe reads the identity register of addr and compares it with want
func Probe(b Bus, addr uint8, reg uint8, want byte) (bool, error) {
	var id [1]byte
	if err := b.ReadReg(addr, reg, id[:]); err != nil {
		return false, err
	}
	return id[0] == want, nil
}
