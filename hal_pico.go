//go:build pico

package st95

import (
	"machine"
)

// PicoPins is the Raspberry Pi Pico wiring of the EEPROM's control lines.
type PicoPins struct {
	CS machine.Pin
	// WP and HOLD may be machine.NoPin when strapped high in hardware.
	WP   machine.Pin
	HOLD machine.Pin
}

// DefaultPicoPins wires CS to GPIO17 next to the SPI0 pins and assumes WP
// and HOLD strapped high.
func DefaultPicoPins() PicoPins {
	return PicoPins{CS: machine.GPIO17, WP: machine.NoPin, HOLD: machine.NoPin}
}

// NewPicoDevice configures SPI0 on its default pins (SCK=GPIO18, SDO=GPIO19,
// SDI=GPIO16) at 5MHz mode 0 and returns an initialized Device.
func NewPicoDevice(pins PicoPins, cfg Config) (*Device, error) {
	out := machine.PinConfig{Mode: machine.PinOutput}
	pins.CS.Configure(out)
	pins.CS.High()
	var wp, hold outputPin
	if pins.WP != machine.NoPin {
		pins.WP.Configure(out)
		pins.WP.High()
		wp = pins.WP.Set
	}
	if pins.HOLD != machine.NoPin {
		pins.HOLD.Configure(out)
		pins.HOLD.High()
		hold = pins.HOLD.Set
	}
	spi := machine.SPI0
	err := spi.Configure(machine.SPIConfig{
		Frequency: 5_000_000,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	d := New(NewSPIBus(spi), pins.CS.Set, wp, hold)
	if err := d.Init(cfg); err != nil {
		return nil, err
	}
	return d, nil
}
