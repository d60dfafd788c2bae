package st95

import (
	"time"

	"tinygo.org/x/drivers"
)

// NewSPIBus adapts a drivers.SPI transport, hardware peripheral or bit-bang,
// to the driver's Bus interface. The underlying Tx blocks until the transfer
// finishes so the timeout parameters are not consulted, and a configured SPI
// peripheral is always ready for the next transfer.
func NewSPIBus(spi drivers.SPI) Bus {
	return &spiBus{spi: spi}
}

type spiBus struct {
	spi drivers.SPI
}

func (b *spiBus) Transmit(w []byte, _ time.Duration) error {
	return b.spi.Tx(w, nil)
}

func (b *spiBus) Receive(r []byte, _ time.Duration) error {
	return b.spi.Tx(nil, r)
}

func (b *spiBus) Ready() bool { return true }
