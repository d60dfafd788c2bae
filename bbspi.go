//go:build tinygo

package st95

import (
	"device"
	"machine"
)

// SPIbb is a dumb bit-bang implementation of SPI protocol that is hardcoded
// to mode 0, which is what the ST95 speaks. Useful on boards whose hardware
// SPI pins are taken. Wrap it with NewSPIBus to obtain a Bus.
type SPIbb struct {
	SCK   machine.Pin
	SDI   machine.Pin
	SDO   machine.Pin
	Delay uint32
}

// Configure sets up the SCK and SDO pins as outputs, SDI as input, and sets
// SCK low (mode 0 idle level).
func (s *SPIbb) Configure() {
	s.SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDO.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDI.Configure(machine.PinConfig{Mode: machine.PinInput})
	s.SCK.Low()
	s.SDO.Low()
	if s.Delay == 0 {
		s.Delay = 1
	}
}

// Tx matches the signature of machine.SPI.Tx and sends w while filling r.
// Either slice may be nil.
func (s *SPIbb) Tx(w []byte, r []byte) error {
	switch {
	case len(w) == len(r):
		for i, b := range w {
			r[i] = s.transfer(b)
		}
	case len(r) == 0:
		for _, b := range w {
			s.transfer(b)
		}
	case len(w) == 0:
		for i := range r {
			r[i] = s.transfer(0)
		}
	default:
		for i := 0; i < len(w) || i < len(r); i++ {
			var b byte
			if i < len(w) {
				b = w[i]
			}
			got := s.transfer(b)
			if i < len(r) {
				r[i] = got
			}
		}
	}
	return nil
}

// Transfer matches the signature of machine.SPI.Transfer and shifts a single
// byte. Never returns an error.
func (s *SPIbb) Transfer(b byte) (out byte, _ error) {
	return s.transfer(b), nil
}

//go:inline
func (s *SPIbb) transfer(b byte) (out byte) {
	for shift := 7; shift >= 0; shift-- {
		out |= b2u8(s.bitTransfer(b&(1<<shift) != 0)) << shift
	}
	return out
}

//go:inline
func (s *SPIbb) bitTransfer(b bool) bool {
	s.SDO.Set(b)
	s.delay()
	s.SCK.High()
	s.delay()
	inputBit := s.SDI.Get()
	s.delay()
	s.SCK.Low()
	s.delay()
	return inputBit
}

// delay represents a quarter of the clock cycle
//
//go:inline
func (s *SPIbb) delay() {
	for i := uint32(0); i < s.Delay; i++ {
		device.Asm("nop")
	}
}

//go:inline
func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
