//go:build linux && !tinygo

package st95

import (
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// RPiPins names the Broadcom GPIO numbers wired to the EEPROM's control
// lines. WP and HOLD may be zero when strapped high in hardware.
type RPiPins struct {
	CS   uint8
	WP   uint8
	HOLD uint8
}

// NewRPiDevice opens the Raspberry Pi SPI0 peripheral through /dev/gpiomem
// and returns an initialized Device. Chip select is driven manually through
// a plain GPIO so it can bracket command sequences spanning several
// transfers; leave the hardware CE lines unconnected.
//
// The caller should CloseRPi when done with the device.
func NewRPiDevice(pins RPiPins, cfg Config) (*Device, error) {
	if err := rpio.Open(); err != nil {
		return nil, err
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, err
	}
	rpio.SpiSpeed(5_000_000)
	out := func(n uint8) outputPin {
		pin := rpio.Pin(n)
		pin.Output()
		pin.High()
		return func(high bool) {
			if high {
				pin.High()
			} else {
				pin.Low()
			}
		}
	}
	var wp, hold outputPin
	if pins.WP != 0 {
		wp = out(pins.WP)
	}
	if pins.HOLD != 0 {
		hold = out(pins.HOLD)
	}
	d := New(rpiBus{}, out(pins.CS), wp, hold)
	if err := d.Init(cfg); err != nil {
		rpio.SpiEnd(rpio.Spi0)
		rpio.Close()
		return nil, err
	}
	return d, nil
}

// CloseRPi releases the SPI peripheral and the GPIO memory mapping.
func CloseRPi() error {
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}

// rpiBus drives transfers through go-rpio's process-wide SPI state. The
// peripheral blocks for the duration of a transfer, so timeouts are not
// consulted and the bus is always ready.
type rpiBus struct{}

func (rpiBus) Transmit(w []byte, _ time.Duration) error {
	rpio.SpiTransmit(w...)
	return nil
}

func (rpiBus) Receive(r []byte, _ time.Duration) error {
	copy(r, rpio.SpiReceive(len(r)))
	return nil
}

func (rpiBus) Ready() bool { return true }
